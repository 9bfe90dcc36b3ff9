package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ragyverse/apiserver/internal/apperr"
	"github.com/ragyverse/apiserver/internal/logging"
	"github.com/ragyverse/apiserver/internal/metrics"
	"github.com/ragyverse/apiserver/types"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextUserKey contextKey = "user"

// ErrorResponse is the error payload of every failed request. Message
// repeats Error for clients that read the message key.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// MessageResponse carries a human readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

// UserFromContext returns the user placed in ctx by RequireAuth.
func UserFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Message: message, Code: code})
}

// writeAppError renders err using the request error taxonomy. Anything
// outside it is logged and reported as a bare 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context())

	appErr, ok := apperr.From(err)
	if !ok {
		logger.Error("request failed", "error", err)
		metrics.DomainErrorsTotal.WithLabelValues("internal", "500").Inc()
		writeError(w, http.StatusInternalServerError, "internal error", "internal")
		return
	}

	metrics.DomainErrorsTotal.WithLabelValues(string(appErr.Code), strconv.Itoa(appErr.Status)).Inc()

	message := appErr.Message
	switch appErr.Code {
	case apperr.CodeSynthesis, apperr.CodeArtifactWrite:
		logger.Error("conversion failed", "code", appErr.Code, "error", err)
		message = appErr.Error()
	default:
		logger.Debug("request rejected", "code", appErr.Code, "error", err)
	}
	writeError(w, appErr.Status, message, string(appErr.Code))
}

// decodeJSON reads a JSON body into dst. Bodies that are missing, malformed
// or too large count as missing fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.ErrMissingField
		}
		return apperr.ErrMissingField.WithMessage("invalid request body").WithCause(err)
	}
	return nil
}
