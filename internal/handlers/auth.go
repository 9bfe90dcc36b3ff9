package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ragyverse/apiserver/internal/apperr"
	"github.com/ragyverse/apiserver/internal/logging"
	"github.com/ragyverse/apiserver/internal/metrics"
	"github.com/ragyverse/apiserver/internal/services"
	"github.com/ragyverse/apiserver/types"
)

const (
	msgRegistered = "User registered successfully!"
	msgLoggedIn   = "Login successful!"
)

// Authenticator resolves an Authorization header to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (types.User, error)
}

// AuthHandler provides registration and login endpoints.
type AuthHandler struct {
	userService *services.UserService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, userService *services.UserService) {
	handler := NewAuthHandler(userService)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
}

// RequireAuth rejects requests without a valid bearer token and injects the
// authenticated user into the request context. Every token failure gets the
// same response; the precise reason is only logged.
func RequireAuth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if !errors.Is(err, apperr.ErrMissingToken) && !errors.Is(err, apperr.ErrInvalidToken) {
					writeAppError(w, r, err)
					return
				}
				code := apperr.CodeInvalidToken
				if errors.Is(err, apperr.ErrMissingToken) {
					code = apperr.CodeMissingToken
				}
				metrics.AuthFailuresTotal.WithLabelValues(string(code)).Inc()
				logging.FromContext(r.Context()).Info("unauthorized request", "code", code, "error", err)

				w.Header().Set("WWW-Authenticate", `Bearer realm="ttsapi"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}

			ctx := logging.WithContext(withUser(r.Context(), user),
				logging.FromContext(r.Context()).With("username", user.Username))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	user, err := h.userService.Register(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("user registered", "username", user.Username)
	writeJSON(w, http.StatusCreated, MessageResponse{Message: msgRegistered})
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	res, err := h.userService.Login(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Message:  msgLoggedIn,
		Token:    res.Token,
		Username: res.Username,
	})
}

type LoginResponse struct {
	Message  string `json:"message"`
	Token    string `json:"token"`
	Username string `json:"username"`
}
