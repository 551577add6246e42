package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/dlq/domain"
	"github.com/allisson/outbox/internal/metrics"
)

// dlqUseCaseWithMetrics decorates UseCase with metrics instrumentation.
type dlqUseCaseWithMetrics struct {
	next    UseCase
	metrics metrics.BusinessMetrics
}

// NewDlqUseCaseWithMetrics wraps a UseCase with metrics recording.
func NewDlqUseCaseWithMetrics(useCase UseCase, m metrics.BusinessMetrics) UseCase {
	return &dlqUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// record reports one operation outcome with its duration.
func (c *dlqUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	c.metrics.RecordOperation(ctx, "dlq", operation, status)
	c.metrics.RecordDuration(ctx, "dlq", operation, time.Since(start), status)
}

func (c *dlqUseCaseWithMetrics) Get(ctx context.Context, id uuid.UUID) (*domain.DlqEvent, error) {
	start := time.Now()
	event, err := c.next.Get(ctx, id)
	c.record(ctx, "get", start, err)
	return event, err
}

func (c *dlqUseCaseWithMetrics) GetBatch(ctx context.Context, ids []uuid.UUID) ([]*domain.DlqEvent, error) {
	start := time.Now()
	events, err := c.next.GetBatch(ctx, ids)
	c.record(ctx, "get_batch", start, err)
	return events, err
}

func (c *dlqUseCaseWithMetrics) ClaimBatch(ctx context.Context, batchSize int) ([]*domain.DlqEvent, error) {
	start := time.Now()
	events, err := c.next.ClaimBatch(ctx, batchSize)
	c.record(ctx, "claim_batch", start, err)
	return events, err
}

func (c *dlqUseCaseWithMetrics) Release(
	ctx context.Context,
	id uuid.UUID,
	dlqStatus domain.DlqEventStatus,
) error {
	start := time.Now()
	err := c.next.Release(ctx, id, dlqStatus)
	c.record(ctx, "release", start, err)
	return err
}

func (c *dlqUseCaseWithMetrics) MarkToRetry(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := c.next.MarkToRetry(ctx, id)
	c.record(ctx, "mark_to_retry", start, err)
	return err
}

func (c *dlqUseCaseWithMetrics) MarkToRetryBatch(ctx context.Context, ids []uuid.UUID) error {
	start := time.Now()
	err := c.next.MarkToRetryBatch(ctx, ids)
	c.record(ctx, "mark_to_retry_batch", start, err)
	return err
}

func (c *dlqUseCaseWithMetrics) MarkResolved(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := c.next.MarkResolved(ctx, id)
	c.record(ctx, "mark_resolved", start, err)
	return err
}

func (c *dlqUseCaseWithMetrics) MarkResolvedBatch(ctx context.Context, ids []uuid.UUID) error {
	start := time.Now()
	err := c.next.MarkResolvedBatch(ctx, ids)
	c.record(ctx, "mark_resolved_batch", start, err)
	return err
}

func (c *dlqUseCaseWithMetrics) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := c.next.Delete(ctx, id)
	c.record(ctx, "delete", start, err)
	return err
}

func (c *dlqUseCaseWithMetrics) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	start := time.Now()
	err := c.next.DeleteBatch(ctx, ids)
	c.record(ctx, "delete_batch", start, err)
	return err
}

func (c *dlqUseCaseWithMetrics) Count(ctx context.Context) (int64, error) {
	start := time.Now()
	count, err := c.next.Count(ctx)
	c.record(ctx, "count", start, err)
	return count, err
}

func (c *dlqUseCaseWithMetrics) CountByStatus(
	ctx context.Context,
	dlqStatus domain.DlqEventStatus,
) (int64, error) {
	start := time.Now()
	count, err := c.next.CountByStatus(ctx, dlqStatus)
	c.record(ctx, "count_by_status", start, err)
	return count, err
}

// transferUseCaseWithMetrics decorates TransferUseCaseInterface with metrics
// instrumentation.
type transferUseCaseWithMetrics struct {
	next    TransferUseCaseInterface
	metrics metrics.BusinessMetrics
}

// NewTransferUseCaseWithMetrics wraps a TransferUseCaseInterface with metrics
// recording.
func NewTransferUseCaseWithMetrics(useCase TransferUseCaseInterface, m metrics.BusinessMetrics) TransferUseCaseInterface {
	return &transferUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (c *transferUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	c.metrics.RecordOperation(ctx, "dlq", operation, status)
	c.metrics.RecordDuration(ctx, "dlq", operation, time.Since(start), status)
}

func (c *transferUseCaseWithMetrics) TransferToDlq(ctx context.Context, batchSize int) (int, error) {
	start := time.Now()
	moved, err := c.next.TransferToDlq(ctx, batchSize)
	c.record(ctx, "transfer_to_dlq", start, err)
	return moved, err
}

func (c *transferUseCaseWithMetrics) TransferFromDlq(ctx context.Context, batchSize int) (int, error) {
	start := time.Now()
	moved, err := c.next.TransferFromDlq(ctx, batchSize)
	c.record(ctx, "transfer_from_dlq", start, err)
	return moved, err
}
