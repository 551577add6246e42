package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/metrics"
)

// consumerUseCaseWithMetrics decorates UseCase with metrics instrumentation.
type consumerUseCaseWithMetrics struct {
	next    UseCase
	metrics metrics.BusinessMetrics
}

// NewConsumerUseCaseWithMetrics wraps a UseCase with metrics recording.
func NewConsumerUseCaseWithMetrics(useCase UseCase, m metrics.BusinessMetrics) UseCase {
	return &consumerUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// record reports one operation outcome with its duration.
func (c *consumerUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	c.metrics.RecordOperation(ctx, "consumer", operation, status)
	c.metrics.RecordDuration(ctx, "consumer", operation, time.Since(start), status)
}

func (c *consumerUseCaseWithMetrics) IsConsumed(ctx context.Context, id uuid.UUID) (bool, error) {
	start := time.Now()
	consumed, err := c.next.IsConsumed(ctx, id)
	c.record(ctx, "is_consumed", start, err)
	return consumed, err
}

func (c *consumerUseCaseWithMetrics) MarkConsumedBatch(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	start := time.Now()
	marked, err := c.next.MarkConsumedBatch(ctx, ids)
	c.record(ctx, "mark_consumed_batch", start, err)
	return marked, err
}

func (c *consumerUseCaseWithMetrics) Consume(
	ctx context.Context,
	id uuid.UUID,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	err := c.next.Consume(ctx, id, fn)
	c.record(ctx, "consume", start, err)
	return err
}

func (c *consumerUseCaseWithMetrics) CleanBatchByTTL(
	ctx context.Context,
	ttl time.Duration,
	batchSize int,
) (int64, error) {
	start := time.Now()
	count, err := c.next.CleanBatchByTTL(ctx, ttl, batchSize)
	c.record(ctx, "clean_batch_by_ttl", start, err)
	return count, err
}

func (c *consumerUseCaseWithMetrics) Count(ctx context.Context) (int64, error) {
	start := time.Now()
	count, err := c.next.Count(ctx)
	c.record(ctx, "count", start, err)
	return count, err
}
