// Package usecase implements the outbox event lifecycle and orchestrates
// outbox domain operations.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/outbox/domain"
)

// BackoffFunc maps a retry count to the next eligible retry time.
type BackoffFunc func(retryCount int) time.Time

// OutboxEventRepository defines outbox event repository operations.
type OutboxEventRepository interface {
	Create(ctx context.Context, event *domain.OutboxEvent) error
	CreateBatch(ctx context.Context, events []*domain.OutboxEvent) error
	FindBatchAndLock(ctx context.Context, status domain.OutboxEventStatus, limit int) ([]*domain.OutboxEvent, error)
	FindBatchByEventTypeAndLock(
		ctx context.Context,
		eventType string,
		status domain.OutboxEventStatus,
		limit int,
	) ([]*domain.OutboxEvent, error)
	UpdateStatusBatch(ctx context.Context, ids []uuid.UUID, status domain.OutboxEventStatus) error
	MarkRetryBatch(ctx context.Context, ids []uuid.UUID, nextRetryAt time.Time) error
	DeleteBatch(ctx context.Context, ids []uuid.UUID) error
	DeleteProcessedOlderThan(ctx context.Context, threshold time.Time, limit int) (int64, error)
	RecoverStuck(ctx context.Context, threshold time.Time, limit int) (int64, error)
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status domain.OutboxEventStatus) (int64, error)
	CountByEventTypeAndStatus(
		ctx context.Context,
		eventType string,
		status domain.OutboxEventStatus,
	) (int64, error)
}

// Counter exposes the monitoring count queries. It is the surface the cache
// and metrics decorators wrap for gauge-style reads.
type Counter interface {
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status domain.OutboxEventStatus) (int64, error)
	CountByEventTypeAndStatus(
		ctx context.Context,
		eventType string,
		status domain.OutboxEventStatus,
	) (int64, error)
}

// UseCase defines the outbox manager operations.
type UseCase interface {
	Counter

	// Enqueue records a new PENDING event. It joins the caller's transaction
	// when one is carried in the context, which is what makes the outbox
	// write atomic with the business write it accompanies.
	Enqueue(ctx context.Context, event *domain.OutboxEvent) error

	// EnqueueBatch records a batch of new PENDING events.
	EnqueueBatch(ctx context.Context, events []*domain.OutboxEvent) error

	// ClaimBatch locks up to batchSize eligible events of any type and
	// transitions them to IN_PROCESS. Concurrent claimers never receive
	// overlapping rows.
	ClaimBatch(ctx context.Context, batchSize int) ([]*domain.OutboxEvent, error)

	// ClaimBatchByEventType behaves like ClaimBatch restricted to one event type.
	ClaimBatchByEventType(ctx context.Context, eventType string, batchSize int) ([]*domain.OutboxEvent, error)

	// FinalizeBatch applies the delivery outcome reported for a claimed batch.
	// An id reported both processed and failed counts as failed. Failed ids
	// return to PENDING with an incremented retry count and a next retry time
	// from nextRetryAt, or transition to FAILED once the budget is exhausted.
	FinalizeBatch(
		ctx context.Context,
		events []*domain.OutboxEvent,
		processedIDs []uuid.UUID,
		failedIDs []uuid.UUID,
		maxRetryCount int,
		nextRetryAt BackoffFunc,
	) error

	// RecoverStuckBatch resets events stuck IN_PROCESS longer than
	// maxProcessingTime back to PENDING and returns the count recovered.
	RecoverStuckBatch(ctx context.Context, maxProcessingTime time.Duration, batchSize int) (int64, error)

	// CleanBatchByTTL deletes up to batchSize PROCESSED events older than ttl
	// and returns the count deleted.
	CleanBatchByTTL(ctx context.Context, ttl time.Duration, batchSize int) (int64, error)

	// DeleteBatch hard-deletes events by id set.
	DeleteBatch(ctx context.Context, ids []uuid.UUID) error
}
