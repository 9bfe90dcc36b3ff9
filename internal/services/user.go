package services

import (
	"context"
	"errors"
	"strings"

	"github.com/ragyverse/apiserver/internal/apperr"
	"github.com/ragyverse/apiserver/internal/clock"
	"github.com/ragyverse/apiserver/internal/store"
	"github.com/ragyverse/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

type TokenIssuer interface {
	Issue(username string) (string, error)
}

// RegisterInput holds the credentials of a new account. bcrypt only reads the
// first 72 bytes of a password, so longer ones are refused.
type RegisterInput struct {
	Username string `json:"username" validate:"required,maxbytes=150"`
	Password string `json:"password" validate:"required,maxbytes=72"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token    string
	Username string
}

// UserService encapsulates registration and login.
type UserService struct {
	repo   UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	clock  clock.Clock
}

func NewUserService(repo UserRepository, hasher PasswordHasher, tokens TokenIssuer, clk clock.Clock) *UserService {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &UserService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		clock:  clk,
	}
}

// Register creates an account. An existing username yields
// apperr.ErrDuplicateUser and leaves the stored account untouched.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validateInput(in); err != nil {
		return types.User{}, err
	}

	if _, err := s.repo.GetByUsername(ctx, in.Username); err == nil {
		return types.User{}, apperr.ErrDuplicateUser
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return types.User{}, apperr.ErrInvalidField.WithMessage("password must be at most 72 bytes").WithCause(err)
		}
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     in.Username,
		PasswordHash: hashed,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, apperr.ErrDuplicateUser
		}
		return types.User{}, err
	}
	return user, nil
}

// Login checks credentials and issues a token. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validateInput(in); err != nil {
		return LoginResult{}, err
	}

	user, err := s.repo.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, apperr.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	ok, err := s.hasher.Compare(user.PasswordHash, in.Password)
	if err != nil {
		return LoginResult{}, apperr.ErrInvalidCredentials.WithCause(err)
	}
	if !ok {
		return LoginResult{}, apperr.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, Username: user.Username}, nil
}
