package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ragyverse/apiserver/internal/apperr"
	"github.com/ragyverse/apiserver/internal/services"
)

type AudioHandler struct {
	audio      *services.AudioService
	checkOwner bool
}

func NewAudioHandler(audio *services.AudioService, checkOwner bool) *AudioHandler {
	return &AudioHandler{audio: audio, checkOwner: checkOwner}
}

// AudioRouter registers GET /audio/{audioID}. With a non-nil authMiddleware
// the caller must also own the file.
func AudioRouter(r chi.Router, audio *services.AudioService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewAudioHandler(audio, authMiddleware != nil)

	if authMiddleware != nil {
		r.With(authMiddleware).Get("/audio/{audioID}", handler.Serve)
	} else {
		r.Get("/audio/{audioID}", handler.Serve)
	}
}

func (h *AudioHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "audioID")

	if h.checkOwner {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		owned, err := h.audio.OwnedBy(r.Context(), user.Username, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if !owned {
			writeAppError(w, r, apperr.ErrNotFound)
			return
		}
	}

	art, err := h.audio.Open(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer art.Body.Close()

	w.Header().Set("Content-Type", art.ContentType)
	if rs, ok := art.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, art.Name, art.ModTime, rs)
		return
	}

	if art.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(art.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, art.Body)
}
