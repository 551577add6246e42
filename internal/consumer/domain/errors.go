package domain

import (
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/allisson/outbox/internal/errors"
)

// ConcurrentInsertError is returned when a bulk save-if-absent loses a race:
// ids that passed the pre-check were inserted by another instance before this
// one committed. IDs holds the ids the other instance won; Actual counts the
// rest of the attempt, which the caller can retry.
type ConcurrentInsertError struct {
	Expected int
	Actual   int
	IDs      []uuid.UUID
}

func (e *ConcurrentInsertError) Error() string {
	return fmt.Sprintf(
		"concurrent insert of consumed event ids: expected %d inserts, %d retryable (%d ids raced in)",
		e.Expected, e.Actual, len(e.IDs),
	)
}

func (e *ConcurrentInsertError) Unwrap() error {
	return apperrors.ErrConflict
}
