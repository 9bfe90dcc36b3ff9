// Package apperr defines the request-level error taxonomy shared by the
// workflows and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeMissingField       Code = "missing_field"
	CodeInvalidField       Code = "invalid_field"
	CodeDuplicateUser      Code = "duplicate_user"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeMissingToken       Code = "missing_token"
	CodeInvalidToken       Code = "invalid_token"
	CodeSynthesis          Code = "synthesis_error"
	CodeArtifactWrite      Code = "artifact_write_error"
	CodeNotFound           Code = "not_found"
)

// Error is a terminal per-request failure with an HTTP status.
type Error struct {
	Code    Code
	Status  int
	Message string
	cause   error
}

var (
	ErrMissingField       = New(CodeMissingField, http.StatusBadRequest, "missing required fields")
	ErrInvalidField       = New(CodeInvalidField, http.StatusBadRequest, "invalid request field")
	ErrDuplicateUser      = New(CodeDuplicateUser, http.StatusBadRequest, "user already exists")
	ErrInvalidCredentials = New(CodeInvalidCredentials, http.StatusUnauthorized, "invalid credentials")
	ErrMissingToken       = New(CodeMissingToken, http.StatusUnauthorized, "token is missing")
	ErrInvalidToken       = New(CodeInvalidToken, http.StatusUnauthorized, "token is invalid")
	ErrSynthesis          = New(CodeSynthesis, http.StatusInternalServerError, "error generating speech")
	ErrArtifactWrite      = New(CodeArtifactWrite, http.StatusInternalServerError, "failed to create audio file")
	ErrNotFound           = New(CodeNotFound, http.StatusNotFound, "audio file not found")
)

func New(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same code, so derived copies still compare
// equal to the package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

// From extracts an *Error from err's chain.
func From(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
