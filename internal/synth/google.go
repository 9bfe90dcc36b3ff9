package synth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	googleTTSPath = "/translate_tts"

	// maxChunkRunes is the longest text the Translate endpoint accepts per call.
	maxChunkRunes = 100

	defaultGoogleBaseURL = "https://translate.google.com"
	defaultTimeout       = 30 * time.Second
	maxAudioBytes        = 32 << 20
)

// GoogleEngine speaks through the Google Translate TTS endpoint. Long text
// is split into chunks whose MP3 frames are concatenated.
type GoogleEngine struct {
	httpClient *http.Client
	baseURL    string
}

func NewGoogleEngine(baseURL string, timeout time.Duration) *GoogleEngine {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultGoogleBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GoogleEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (e *GoogleEngine) Name() string { return "google" }

func (e *GoogleEngine) Synthesize(ctx context.Context, req Request) (Audio, error) {
	chunks := splitText(req.Text, maxChunkRunes)
	if len(chunks) == 0 {
		return Audio{}, ErrTextEmpty
	}

	lang := req.Language
	if lang == "" {
		lang = "en"
	}

	var buf bytes.Buffer
	for i, chunk := range chunks {
		if err := e.fetchChunk(ctx, &buf, lang, chunk, i, len(chunks)); err != nil {
			return Audio{}, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}

	return Audio{Data: buf.Bytes(), ContentType: ContentTypeMP3}, nil
}

func (e *GoogleEngine) fetchChunk(ctx context.Context, w *bytes.Buffer, lang, chunk string, idx, total int) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", chunk)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+googleTTSPath+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", ContentTypeMP3)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach speech service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("speech service returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	n, err := io.Copy(w, io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return fmt.Errorf("failed to read audio data: %w", err)
	}
	if n == 0 {
		return ErrEmptyAudio
	}
	return nil
}

// splitText breaks text into pieces of at most limit runes, preferring
// whitespace boundaries. Words longer than limit are hard split.
func splitText(text string, limit int) []string {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	var (
		chunks  []string
		current []rune
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, string(current))
			current = current[:0]
		}
	}

	for _, word := range words {
		runes := []rune(word)
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		if len(current) > 0 && len(current)+1+len(runes) > limit {
			flush()
		}
		if len(current) > 0 {
			current = append(current, ' ')
		}
		current = append(current, runes...)
	}
	flush()
	return chunks
}
