package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/allisson/outbox/internal/errors"
)

// EventNotFoundError is returned when a dead letter id does not exist.
type EventNotFoundError struct {
	ID uuid.UUID
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("dlq event %s not found", e.ID)
}

func (e *EventNotFoundError) Unwrap() error {
	return apperrors.ErrNotFound
}

// EventInProcessError is returned when a guarded operation targets a letter
// currently held by a worker.
type EventInProcessError struct {
	ID uuid.UUID
}

func (e *EventInProcessError) Error() string {
	return fmt.Sprintf("dlq event %s is in process", e.ID)
}

func (e *EventInProcessError) Unwrap() error {
	return apperrors.ErrConflict
}

// BatchNotFoundError is returned when a batch operation references dead
// letter ids that do not exist. All missing ids are reported together.
type BatchNotFoundError struct {
	MissingIDs []uuid.UUID
}

func (e *BatchNotFoundError) Error() string {
	ids := make([]string, len(e.MissingIDs))
	for i, id := range e.MissingIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("dlq events not found: %s", strings.Join(ids, ", "))
}

func (e *BatchNotFoundError) Unwrap() error {
	return apperrors.ErrNotFound
}
