// Package usecase implements the dead letter lifecycle and the transfer
// protocol between the outbox and the dead letter table.
package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/dlq/domain"
)

// DlqEventRepository defines dead letter repository operations.
type DlqEventRepository interface {
	Create(ctx context.Context, event *domain.DlqEvent) error
	CreateBatch(ctx context.Context, events []*domain.DlqEvent) error
	Get(ctx context.Context, id uuid.UUID) (*domain.DlqEvent, error)
	GetBatch(ctx context.Context, ids []uuid.UUID) ([]*domain.DlqEvent, error)
	GetBatchAndLock(ctx context.Context, ids []uuid.UUID) ([]*domain.DlqEvent, error)
	FindBatchAndLock(ctx context.Context, dlqStatus domain.DlqEventStatus, limit int) ([]*domain.DlqEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, dlqStatus domain.DlqEventStatus) error
	UpdateStatusBatch(ctx context.Context, ids []uuid.UUID, dlqStatus domain.DlqEventStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteBatch(ctx context.Context, ids []uuid.UUID) error
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, dlqStatus domain.DlqEventStatus) (int64, error)
}

// UseCase defines the dead letter manager operations. Every mutating
// operation is guarded: the target letters must exist and must not be held
// IN_PROCESS by a worker.
type UseCase interface {
	// Get returns one dead letter by id.
	Get(ctx context.Context, id uuid.UUID) (*domain.DlqEvent, error)

	// GetBatch returns the dead letters for the given id set. All missing
	// ids are reported together through a BatchNotFoundError.
	GetBatch(ctx context.Context, ids []uuid.UUID) ([]*domain.DlqEvent, error)

	// ClaimBatch locks up to batchSize NEW letters and transitions them to
	// IN_PROCESS for triage.
	ClaimBatch(ctx context.Context, batchSize int) ([]*domain.DlqEvent, error)

	// Release transitions an IN_PROCESS letter to TO_RETRY or RESOLVED.
	// Only the worker holding the letter calls this.
	Release(ctx context.Context, id uuid.UUID, dlqStatus domain.DlqEventStatus) error

	// MarkToRetry schedules a letter for transfer back to the outbox.
	MarkToRetry(ctx context.Context, id uuid.UUID) error

	// MarkToRetryBatch schedules a batch of letters for transfer back to
	// the outbox.
	MarkToRetryBatch(ctx context.Context, ids []uuid.UUID) error

	// MarkResolved closes a letter handled out of band.
	MarkResolved(ctx context.Context, id uuid.UUID) error

	// MarkResolvedBatch closes a batch of letters handled out of band.
	MarkResolvedBatch(ctx context.Context, ids []uuid.UUID) error

	// Delete hard-deletes one letter.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteBatch hard-deletes a batch of letters.
	DeleteBatch(ctx context.Context, ids []uuid.UUID) error

	// Count returns the total number of dead letters.
	Count(ctx context.Context) (int64, error)

	// CountByStatus returns the number of dead letters in the given triage
	// state.
	CountByStatus(ctx context.Context, dlqStatus domain.DlqEventStatus) (int64, error)
}

// TransferNotifier receives the letters moved by a completed outbox-to-DLQ
// transfer. Invoked after commit, best effort: an error or panic in the
// notifier never fails the transfer.
type TransferNotifier interface {
	NotifyMoved(ctx context.Context, events []*domain.DlqEvent) error
}

// TransferUseCaseInterface defines the bidirectional transfer protocol.
type TransferUseCaseInterface interface {
	// TransferToDlq moves up to batchSize FAILED outbox events into the
	// dead letter table and returns the number moved.
	TransferToDlq(ctx context.Context, batchSize int) (int, error)

	// TransferFromDlq moves up to batchSize TO_RETRY letters back to the
	// outbox with a fresh retry budget and returns the number moved.
	TransferFromDlq(ctx context.Context, batchSize int) (int, error)
}
