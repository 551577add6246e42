// Package errors defines the three error categories the outbox, DLQ and
// consumer use cases report: invalid input (bad batch sizes, malformed ids,
// rejected payloads), not found (events or letters absent from their table)
// and conflict (a letter held by a worker, a consumed id raced in by another
// instance). Typed errors like EventInProcessError and ConcurrentInsertError
// unwrap to these sentinels, so callers branch with errors.Is / errors.As.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested event or letter does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a concurrency conflict: a held letter, a lost
	// insert race, a duplicate id.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
