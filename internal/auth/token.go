// Package auth issues and verifies bearer tokens and resolves them to users.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ragyverse/apiserver/internal/apperr"
	"github.com/ragyverse/apiserver/internal/clock"
)

const DefaultTokenTTL = 24 * time.Hour

// Claims is the signed token payload.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 tokens with a process-wide secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewTokenService(secret string, ttl time.Duration, clk clock.Clock) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clk,
	}
}

// Issue returns a token for username that expires after the configured TTL.
func (s *TokenService) Issue(username string) (string, error) {
	now := s.clock.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify returns the username carried by tokenString. Any failure is
// reported as apperr.ErrInvalidToken with the parse error as cause.
func (s *TokenService) Verify(tokenString string) (string, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return "", apperr.ErrInvalidToken.WithCause(err)
	}
	if !token.Valid {
		return "", apperr.ErrInvalidToken
	}
	if strings.TrimSpace(claims.Username) == "" {
		return "", apperr.ErrInvalidToken.WithCause(errors.New("missing username"))
	}
	return claims.Username, nil
}

// TTL reports the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
