package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ragyverse/apiserver/internal/apperr"
	"github.com/ragyverse/apiserver/internal/store"
	"github.com/ragyverse/apiserver/types"
)

// UserLookup resolves a username to a stored user.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
}

// Authenticator turns an Authorization header into a known user.
type Authenticator struct {
	tokens *TokenService
	users  UserLookup
}

func NewAuthenticator(tokens *TokenService, users UserLookup) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate validates header and loads its user. A token naming a user
// that no longer exists is rejected as invalid.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (types.User, error) {
	token, err := BearerToken(header)
	if err != nil {
		return types.User{}, err
	}

	username, err := a.tokens.Verify(token)
	if err != nil {
		return types.User{}, err
	}

	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.ErrInvalidToken.WithCause(fmt.Errorf("unknown user %q", username))
		}
		return types.User{}, err
	}
	return user, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperr.ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperr.ErrMissingToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", apperr.ErrMissingToken
	}
	return token, nil
}
