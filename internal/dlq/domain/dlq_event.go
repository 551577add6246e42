// Package domain contains the dead letter queue entities.
package domain

import (
	"time"

	outboxdomain "github.com/allisson/outbox/internal/outbox/domain"
)

// DlqEventStatus represents the triage state of a dead letter.
type DlqEventStatus string

const (
	// DlqEventStatusNew marks a freshly moved letter awaiting triage.
	DlqEventStatusNew DlqEventStatus = "new"
	// DlqEventStatusInProcess marks a letter currently held by a worker.
	// Guarded operations refuse to touch letters in this state.
	DlqEventStatusInProcess DlqEventStatus = "in_process"
	// DlqEventStatusToRetry marks a letter scheduled to return to the outbox.
	DlqEventStatusToRetry DlqEventStatus = "to_retry"
	// DlqEventStatusResolved marks a letter handled out of band.
	DlqEventStatusResolved DlqEventStatus = "resolved"
	// DlqEventStatusMoved marks a letter already copied back to the outbox.
	DlqEventStatusMoved DlqEventStatus = "moved"
)

// DlqEvent is an outbox event that exhausted its retry budget, plus the
// triage state tracked while the letter sits in the dead letter table.
type DlqEvent struct {
	outboxdomain.OutboxEvent

	DlqStatus DlqEventStatus
	// MovedAt records when the event was moved out of the outbox table.
	MovedAt time.Time
}

// IsInProcess reports whether the letter is held by a worker.
func (e *DlqEvent) IsInProcess() bool {
	return e.DlqStatus == DlqEventStatusInProcess
}
