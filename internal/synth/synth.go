// Package synth converts text to audio through an external speech engine.
package synth

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/ragyverse/apiserver/config"
)

const (
	ContentTypeMP3 = "audio/mpeg"
	ContentTypeWAV = "audio/wav"
)

var (
	ErrTextEmpty  = errors.New("text cannot be empty")
	ErrEmptyAudio = errors.New("received empty audio data")
)

// Request is a single synthesis job.
type Request struct {
	Text     string
	Language string
}

// Audio is the encoded result of a synthesis job.
type Audio struct {
	Data        []byte
	ContentType string
}

// Engine produces audio for text.
type Engine interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
	Name() string
}

// New builds the engine selected by cfg.
func New(cfg config.SynthConfig) (Engine, error) {
	switch cfg.Engine {
	case config.EngineGoogle, "":
		return NewGoogleEngine(cfg.GoogleBaseURL, cfg.Timeout), nil
	case config.EngineHTTP:
		return NewHTTPEngine(cfg.HTTPBaseURL, cfg.Timeout, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unsupported synthesis engine %q", cfg.Engine)
	}
}

// Extension maps an audio media type to the file extension used for storage.
func Extension(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(contentType))
	}
	switch mediaType {
	case ContentTypeMP3, "audio/mp3":
		return ".mp3", true
	case ContentTypeWAV, "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return ".wav", true
	default:
		return "", false
	}
}
