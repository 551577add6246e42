// Package domain defines the core outbox domain entities and types.
package domain

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/outbox/internal/errors"
)

// OutboxEventStatus represents the status of an outbox event.
type OutboxEventStatus string

const (
	OutboxEventStatusPending   OutboxEventStatus = "pending"
	OutboxEventStatusInProcess OutboxEventStatus = "in_process"
	OutboxEventStatusProcessed OutboxEventStatus = "processed"
	OutboxEventStatusFailed    OutboxEventStatus = "failed"
)

// MaxBatchIDs is the hard ceiling on the number of ids accepted by batch
// repository operations, protecting against unbounded IN (...) clauses.
const MaxBatchIDs = 1000

// OutboxEvent represents an event in the transactional outbox pattern.
// PROCESSED is terminal and eligible for TTL deletion; FAILED beyond the
// retry budget is the trigger for DLQ transfer, not a terminal state itself.
type OutboxEvent struct {
	ID          uuid.UUID
	Status      OutboxEventStatus
	EventType   string
	PayloadType string
	Payload     string
	RetryCount  int
	NextRetryAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the fields required before an event can be enqueued.
func (e *OutboxEvent) Validate() error {
	err := validation.ValidateStruct(e,
		validation.Field(&e.EventType, validation.Required),
		validation.Field(&e.PayloadType, validation.Required),
		validation.Field(&e.Payload, validation.Required),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}
	return nil
}
