package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ragyverse/apiserver/internal/services"
)

// SpeechHandler serves conversions and the history they leave behind.
type SpeechHandler struct {
	conversions *services.ConversionService
	history     *services.HistoryService
}

func NewSpeechHandler(conversions *services.ConversionService, history *services.HistoryService) *SpeechHandler {
	return &SpeechHandler{conversions: conversions, history: history}
}

// SpeechRouter registers the authenticated speech routes.
func SpeechRouter(
	r chi.Router,
	conversions *services.ConversionService,
	history *services.HistoryService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewSpeechHandler(conversions, history)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/convert_to_speech", handler.Convert)
		r.Get("/history", handler.History)
	})
}

type ConvertResponse struct {
	AudioURL string `json:"audio_url"`
}

func (h *SpeechHandler) Convert(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	var req services.ConvertInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	res, err := h.conversions.Convert(r.Context(), user, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ConvertResponse{AudioURL: res.AudioURL})
}

func (h *SpeechHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	entries, err := h.history.Recent(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}
