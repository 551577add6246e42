// Package domain contains the idempotent consumer entities.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConsumedEventRecord marks an inbound message id as consumed. The table is
// append-only and keyed by id; the unique constraint is what makes the
// check-and-mark atomic.
type ConsumedEventRecord struct {
	ID         uuid.UUID
	ConsumedAt time.Time
}

// NewConsumedEventRecord creates a record stamped with the current time.
func NewConsumedEventRecord(id uuid.UUID) *ConsumedEventRecord {
	return &ConsumedEventRecord{
		ID:         id,
		ConsumedAt: time.Now().UTC(),
	}
}
