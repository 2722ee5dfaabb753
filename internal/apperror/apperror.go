// Package apperror defines the error taxonomy shared by every component of
// the try-on client.
//
// Each category is a sentinel error. Constructors wrap the sentinel in an
// *AppError carrying the human-readable message, so callers can both branch
// on the category (errors.Is) and show the message (errors.As / Error()).
//
//	ErrUnauthorized  → 401/403 from any endpoint; the controller logs the user out
//	ErrValidation    → 4xx with a detail; shown to the user, no state change
//	ErrNetwork       → transport failure; shown for that operation only
//	ErrGeneration    → backend reported a synthesis failure; selection kept
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrValidation    = errors.New("validation error")
	ErrNetwork       = errors.New("network error")
	ErrGeneration    = errors.New("generation failed")
	ErrConflict      = errors.New("conflict")
	ErrNotFound      = errors.New("not found")
	ErrLoginRequired = errors.New("login required")
)

type AppError struct {
	Err     error  // category sentinel
	Message string // Human-readable error message, shown verbatim
	Field   string // Optional: field causing the error
	Status  int    // Optional: HTTP status the backend answered with
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Unauthorized is the uniform "re-authenticate" signal.
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "please log in again"
	}
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Network wraps a transport failure. The cause stays reachable through
// errors.Is / errors.As on the returned error.
func Network(op string, cause error) error {
	return fmt.Errorf("%w: %w", &AppError{
		Err:     ErrNetwork,
		Message: fmt.Sprintf("%s: network failure", op),
	}, cause)
}

func GenerationFailed(message string) *AppError {
	return &AppError{
		Err:     ErrGeneration,
		Message: message,
	}
}

// Conflict reports an operation that cannot start because another one of
// the same kind is still running (e.g. a second generate click).
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// LoginRequired marks work that was skipped because no credential exists.
func LoginRequired() *AppError {
	return &AppError{
		Err:     ErrLoginRequired,
		Message: "Please log in to use.",
	}
}

// Message returns the user-facing text of err: the AppError message when
// there is one, err.Error() otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// IsUnauthorized reports whether err demands a logout.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
