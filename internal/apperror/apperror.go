// Package apperror defines the closed error taxonomy shared by the service
// and handler layers.
//
// Services return errors wrapping one of the sentinel values below; handlers
// map them to HTTP status codes with errors.Is and extract the human-readable
// message (plus the conflicting provider, where relevant) with errors.As.
// Callers never inspect error strings.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream failure")
)

// AppError carries the structured fields of a domain error.
type AppError struct {
	Err      error  // sentinel this error wraps
	Message  string // human-readable message, safe to return to clients
	Field    string // optional: input field causing a validation error
	Provider string // optional: login method a conflicting account already uses
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound returns an AppError for a missing resource. Use only where
// revealing existence is safe (e.g. profile fetch); enumeration-sensitive
// flows use Unauthorized or a generic success instead.
func NotFound(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ValidationFailed returns an AppError for missing or malformed input.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict returns an AppError for a duplicate resource.
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// RequiresOAuth returns a Conflict naming the provider an existing account
// already uses, so the caller can point the user at that login method.
func RequiresOAuth(provider, message string) *AppError {
	return &AppError{
		Err:      ErrConflict,
		Message:  message,
		Provider: provider,
	}
}

// Unauthorized returns an AppError with a deliberately generic message: bad
// password, unknown email, and expired credentials are indistinguishable to
// the caller.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Upstream wraps a failure from an external collaborator (e.g. the email
// provider). Handlers surface it as a generic internal error.
func Upstream(err error, message string) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUpstream, err),
		Message: message,
	}
}
