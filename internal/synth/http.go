package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"

	defaultHTTPBaseURL = "http://localhost:8000"
	defaultTemperature = 0.75
)

// HTTPEngine is a client for a standalone TTS HTTP service.
type HTTPEngine struct {
	httpClient  *http.Client
	baseURL     string
	temperature float64
}

// speechRequest is the JSON payload of a generation request.
type speechRequest struct {
	Text        string  `json:"text"`
	Language    string  `json:"language"`
	Temperature float64 `json:"temperature"`
}

// ServiceError is the structured error body returned by the service.
type ServiceError struct {
	Status    int    `json:"-"`
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

func (e *ServiceError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("speech service error (%d): %s (code: %s)", e.Status, e.Detail, e.ErrorCode)
	}
	return fmt.Sprintf("speech service error (%d): %s", e.Status, e.Detail)
}

func NewHTTPEngine(baseURL string, timeout time.Duration, temperature float64) *HTTPEngine {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultHTTPBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &HTTPEngine{
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: temperature,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, ErrTextEmpty
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}

	body, err := json.Marshal(speechRequest{
		Text:        req.Text,
		Language:    lang,
		Temperature: e.temperature,
	})
	if err != nil {
		return Audio{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+apiGenerateSpeech, bytes.NewReader(body))
	if err != nil {
		return Audio{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/*")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to send request to speech service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Audio{}, parseServiceError(resp)
	}

	contentType := resp.Header.Get("Content-Type")
	if _, ok := Extension(contentType); !ok {
		return Audio{}, fmt.Errorf("unexpected content type %q", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return Audio{}, fmt.Errorf("failed to read audio data: %w", err)
	}
	if len(data) == 0 {
		return Audio{}, ErrEmptyAudio
	}

	return Audio{Data: data, ContentType: contentType}, nil
}

// HealthCheck reports whether the service answers on its health endpoint.
func (e *HTTPEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}
	return nil
}

func parseServiceError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	svcErr := &ServiceError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, svcErr); err == nil && svcErr.Detail != "" {
		return svcErr
	}
	svcErr.Detail = strings.TrimSpace(string(raw))
	if svcErr.Detail == "" {
		svcErr.Detail = resp.Status
	}
	return svcErr
}

// AsServiceError extracts a ServiceError from err's chain.
func AsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	ok := errors.As(err, &svcErr)
	return svcErr, ok
}
