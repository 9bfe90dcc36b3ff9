package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ragyverse/apiserver/internal/apperr"
	"github.com/ragyverse/apiserver/internal/clock"
	"github.com/ragyverse/apiserver/internal/idgen"
	"github.com/ragyverse/apiserver/internal/logging"
	"github.com/ragyverse/apiserver/internal/metrics"
	"github.com/ragyverse/apiserver/internal/storage"
	"github.com/ragyverse/apiserver/internal/synth"
	"github.com/ragyverse/apiserver/types"
)

// ArtifactStore persists and serves generated audio.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (storage.Object, error)
}

// EventPublisher announces finished conversions.
type EventPublisher interface {
	PublishJSON(ctx context.Context, channel string, v any) (string, error)
}

type ConvertInput struct {
	Text     string `json:"text" validate:"required"`
	Question string `json:"question"`
	Language string `json:"language" validate:"omitempty,bcp47_language_tag"`
}

type ConversionResult struct {
	AudioID  string
	AudioURL string
}

type ConversionConfig struct {
	DefaultLanguage string
	PublicBaseURL   string
	EventChannel    string
}

// ConversionService turns text into a stored audio artifact and records it
// in the caller's history.
type ConversionService struct {
	engine  synth.Engine
	store   ArtifactStore
	history HistoryRepository
	events  EventPublisher
	ids     *idgen.Generator
	clock   clock.Clock
	cfg     ConversionConfig
}

// NewConversionService wires the workflow. events may be nil.
func NewConversionService(
	engine synth.Engine,
	store ArtifactStore,
	history HistoryRepository,
	events EventPublisher,
	clk clock.Clock,
	cfg ConversionConfig,
) *ConversionService {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &ConversionService{
		engine:  engine,
		store:   store,
		history: history,
		events:  events,
		ids:     idgen.NewGenerator(),
		clock:   clk,
		cfg:     cfg,
	}
}

// Convert synthesizes in.Text for user. Nothing is written when the text is
// blank or synthesis fails. A failed history write is logged and counted but
// does not fail the request, since the artifact is already retrievable.
func (s *ConversionService) Convert(ctx context.Context, user types.User, in ConvertInput) (ConversionResult, error) {
	// whitespace-only text counts as missing
	if strings.TrimSpace(in.Text) == "" {
		in.Text = ""
	}
	if err := validateInput(in); err != nil {
		return ConversionResult{}, err
	}
	lang := in.Language
	if lang == "" {
		lang = s.cfg.DefaultLanguage
	}

	engine := s.engine.Name()
	logger := logging.FromContext(ctx).With("username", user.Username, "engine", engine)
	id := s.ids.NewArtifactID()

	start := time.Now()
	audio, err := s.engine.Synthesize(ctx, synth.Request{Text: in.Text, Language: lang})
	metrics.SynthesisDurationSeconds.WithLabelValues(engine).Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "synthesis_error"
		if svcErr, ok := synth.AsServiceError(err); ok {
			outcome = "service_rejected"
			logger.Warn("speech service rejected request",
				"status", svcErr.Status,
				"error_code", svcErr.ErrorCode,
				"detail", svcErr.Detail,
			)
		}
		metrics.ConversionsTotal.WithLabelValues(engine, outcome).Inc()
		return ConversionResult{}, apperr.ErrSynthesis.WithCause(err)
	}

	ext, ok := synth.Extension(audio.ContentType)
	if !ok {
		metrics.ConversionsTotal.WithLabelValues(engine, "synthesis_error").Inc()
		return ConversionResult{}, apperr.ErrSynthesis.WithCause(fmt.Errorf("unsupported audio type %q", audio.ContentType))
	}
	key := id + ext

	if err := s.store.Put(ctx, key, bytes.NewReader(audio.Data), int64(len(audio.Data)), audio.ContentType); err != nil {
		metrics.ConversionsTotal.WithLabelValues(engine, "artifact_error").Inc()
		return ConversionResult{}, apperr.ErrArtifactWrite.WithCause(err)
	}
	exists, err := s.store.Exists(ctx, key)
	if err == nil && !exists {
		err = errors.New("artifact missing after write")
	}
	if err != nil {
		metrics.ConversionsTotal.WithLabelValues(engine, "artifact_error").Inc()
		return ConversionResult{}, apperr.ErrArtifactWrite.WithCause(err)
	}

	now := s.clock.Now()
	if _, err := s.history.Append(ctx, types.HistoryEntry{
		Username:  user.Username,
		Action:    types.ActionTextToSpeech,
		Question:  in.Question,
		Answer:    in.Text,
		AudioFile: id,
		Timestamp: now,
	}); err != nil {
		metrics.HistoryWriteFailuresTotal.Inc()
		logger.Error("history write failed", "audio_file", id, "error", err)
	}

	result := ConversionResult{
		AudioID:  id,
		AudioURL: s.cfg.PublicBaseURL + "/audio/" + id,
	}
	metrics.ConversionsTotal.WithLabelValues(engine, "ok").Inc()
	logger.Info("speech generated", "audio_file", id, "bytes", len(audio.Data), "language", lang)

	s.publish(ctx, logger, types.ConversionEvent{
		ID:         uuid.NewString(),
		Username:   user.Username,
		AudioFile:  id,
		AudioURL:   result.AudioURL,
		Language:   lang,
		TextLength: len([]rune(in.Text)),
		CreatedAt:  now,
	})
	return result, nil
}

func (s *ConversionService) publish(ctx context.Context, logger *slog.Logger, event types.ConversionEvent) {
	if s.events == nil || s.cfg.EventChannel == "" {
		return
	}
	if _, err := s.events.PublishJSON(ctx, s.cfg.EventChannel, event); err != nil {
		metrics.EventPublishFailuresTotal.Inc()
		logger.Warn("conversion event not published", "audio_file", event.AudioFile, "error", err)
	}
}
