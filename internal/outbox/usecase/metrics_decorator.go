package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/metrics"
	"github.com/allisson/outbox/internal/outbox/domain"
)

// outboxUseCaseWithMetrics decorates UseCase with metrics instrumentation.
type outboxUseCaseWithMetrics struct {
	next    UseCase
	metrics metrics.BusinessMetrics
}

// NewOutboxUseCaseWithMetrics wraps a UseCase with metrics recording.
func NewOutboxUseCaseWithMetrics(useCase UseCase, m metrics.BusinessMetrics) UseCase {
	return &outboxUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// record reports one operation outcome with its duration.
func (c *outboxUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	c.metrics.RecordOperation(ctx, "outbox", operation, status)
	c.metrics.RecordDuration(ctx, "outbox", operation, time.Since(start), status)
}

func (c *outboxUseCaseWithMetrics) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	start := time.Now()
	err := c.next.Enqueue(ctx, event)
	c.record(ctx, "enqueue", start, err)
	return err
}

func (c *outboxUseCaseWithMetrics) EnqueueBatch(ctx context.Context, events []*domain.OutboxEvent) error {
	start := time.Now()
	err := c.next.EnqueueBatch(ctx, events)
	c.record(ctx, "enqueue_batch", start, err)
	return err
}

func (c *outboxUseCaseWithMetrics) ClaimBatch(ctx context.Context, batchSize int) ([]*domain.OutboxEvent, error) {
	start := time.Now()
	events, err := c.next.ClaimBatch(ctx, batchSize)
	c.record(ctx, "claim_batch", start, err)
	return events, err
}

func (c *outboxUseCaseWithMetrics) ClaimBatchByEventType(
	ctx context.Context,
	eventType string,
	batchSize int,
) ([]*domain.OutboxEvent, error) {
	start := time.Now()
	events, err := c.next.ClaimBatchByEventType(ctx, eventType, batchSize)
	c.record(ctx, "claim_batch_by_event_type", start, err)
	return events, err
}

func (c *outboxUseCaseWithMetrics) FinalizeBatch(
	ctx context.Context,
	events []*domain.OutboxEvent,
	processedIDs []uuid.UUID,
	failedIDs []uuid.UUID,
	maxRetryCount int,
	nextRetryAt BackoffFunc,
) error {
	start := time.Now()
	err := c.next.FinalizeBatch(ctx, events, processedIDs, failedIDs, maxRetryCount, nextRetryAt)
	c.record(ctx, "finalize_batch", start, err)
	return err
}

func (c *outboxUseCaseWithMetrics) RecoverStuckBatch(
	ctx context.Context,
	maxProcessingTime time.Duration,
	batchSize int,
) (int64, error) {
	start := time.Now()
	count, err := c.next.RecoverStuckBatch(ctx, maxProcessingTime, batchSize)
	c.record(ctx, "recover_stuck_batch", start, err)
	return count, err
}

func (c *outboxUseCaseWithMetrics) CleanBatchByTTL(
	ctx context.Context,
	ttl time.Duration,
	batchSize int,
) (int64, error) {
	start := time.Now()
	count, err := c.next.CleanBatchByTTL(ctx, ttl, batchSize)
	c.record(ctx, "clean_batch_by_ttl", start, err)
	return count, err
}

func (c *outboxUseCaseWithMetrics) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	start := time.Now()
	err := c.next.DeleteBatch(ctx, ids)
	c.record(ctx, "delete_batch", start, err)
	return err
}

func (c *outboxUseCaseWithMetrics) Count(ctx context.Context) (int64, error) {
	start := time.Now()
	count, err := c.next.Count(ctx)
	c.record(ctx, "count", start, err)
	return count, err
}

func (c *outboxUseCaseWithMetrics) CountByStatus(
	ctx context.Context,
	status domain.OutboxEventStatus,
) (int64, error) {
	start := time.Now()
	count, err := c.next.CountByStatus(ctx, status)
	c.record(ctx, "count_by_status", start, err)
	return count, err
}

func (c *outboxUseCaseWithMetrics) CountByEventTypeAndStatus(
	ctx context.Context,
	eventType string,
	status domain.OutboxEventStatus,
) (int64, error) {
	start := time.Now()
	count, err := c.next.CountByEventTypeAndStatus(ctx, eventType, status)
	c.record(ctx, "count_by_event_type_and_status", start, err)
	return count, err
}
