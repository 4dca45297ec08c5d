// Package apperror defines the domain error taxonomy for the pipeline.
// Callers match on the sentinel errors with errors.Is; AppError carries the
// human-readable message and implements Unwrap so the chain stays intact.
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a row the caller asked for does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation means an input row or argument failed validation.
	// Per-row validation failures are skipped and counted, never fatal.
	ErrValidation = errors.New("validation error")
	// ErrConflict means a write collided with a uniqueness constraint
	// (typically movies.imdb_id).
	ErrConflict = errors.New("conflict")
	// ErrUnavailable means an external collaborator failed transiently and
	// the operation may be retried.
	ErrUnavailable = errors.New("unavailable")
)

type AppError struct {
	Err     error  // sentinel the error wraps
	Message string // human-readable error message
	Field   string // optional: input field or column causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Unavailable returns an AppError for a transient external failure.
// The Enricher retries these with backoff before giving up.
func Unavailable(service, message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: fmt.Sprintf("%s unavailable: %s", service, message),
		Field:   service,
	}
}
