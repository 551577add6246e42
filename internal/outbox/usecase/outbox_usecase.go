package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/database"
	"github.com/allisson/outbox/internal/outbox/domain"
)

// OutboxUseCase implements the outbox event lifecycle over a dialect-specific
// repository. It is the sole writer of outbox_events rows besides the DLQ
// transfer protocol.
type OutboxUseCase struct {
	txManager database.TxManager
	repo      OutboxEventRepository
	logger    *slog.Logger
}

// NewOutboxUseCase creates a new OutboxUseCase.
func NewOutboxUseCase(
	txManager database.TxManager,
	repo OutboxEventRepository,
	logger *slog.Logger,
) *OutboxUseCase {
	return &OutboxUseCase{
		txManager: txManager,
		repo:      repo,
		logger:    logger,
	}
}

// Enqueue records a new PENDING event inside the caller's transaction.
func (uc *OutboxUseCase) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	prepareForEnqueue(event)

	if err := event.Validate(); err != nil {
		return err
	}

	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		return uc.repo.Create(ctx, event)
	})
}

// EnqueueBatch records a batch of new PENDING events inside the caller's
// transaction.
func (uc *OutboxUseCase) EnqueueBatch(ctx context.Context, events []*domain.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		prepareForEnqueue(event)
		if err := event.Validate(); err != nil {
			return err
		}
	}

	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		return uc.repo.CreateBatch(ctx, events)
	})
}

// ClaimBatch locks up to batchSize eligible events and marks them IN_PROCESS.
func (uc *OutboxUseCase) ClaimBatch(ctx context.Context, batchSize int) ([]*domain.OutboxEvent, error) {
	return uc.claim(ctx, "", batchSize)
}

// ClaimBatchByEventType locks up to batchSize eligible events of one type and
// marks them IN_PROCESS.
func (uc *OutboxUseCase) ClaimBatchByEventType(
	ctx context.Context,
	eventType string,
	batchSize int,
) ([]*domain.OutboxEvent, error) {
	return uc.claim(ctx, eventType, batchSize)
}

// claim runs the load-and-lock protocol: select with SKIP LOCKED, update the
// selected rows to IN_PROCESS by primary key set, commit, and return the
// pre-update snapshots with the lock status overwritten in memory.
func (uc *OutboxUseCase) claim(
	ctx context.Context,
	eventType string,
	batchSize int,
) ([]*domain.OutboxEvent, error) {
	if batchSize <= 0 {
		return nil, domain.ErrInvalidBatchSize
	}

	var events []*domain.OutboxEvent

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if eventType == "" {
			events, err = uc.repo.FindBatchAndLock(ctx, domain.OutboxEventStatusPending, batchSize)
		} else {
			events, err = uc.repo.FindBatchByEventTypeAndLock(
				ctx, eventType, domain.OutboxEventStatusPending, batchSize,
			)
		}
		if err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		ids := eventIDs(events)
		return uc.repo.UpdateStatusBatch(ctx, ids, domain.OutboxEventStatusInProcess)
	})
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		event.Status = domain.OutboxEventStatusInProcess
	}

	return events, nil
}

// FinalizeBatch applies per-id delivery outcomes to a claimed batch.
func (uc *OutboxUseCase) FinalizeBatch(
	ctx context.Context,
	events []*domain.OutboxEvent,
	processedIDs []uuid.UUID,
	failedIDs []uuid.UUID,
	maxRetryCount int,
	nextRetryAt BackoffFunc,
) error {
	if maxRetryCount < 0 {
		return domain.ErrInvalidMaxRetryCount
	}

	failedSet := make(map[uuid.UUID]struct{}, len(failedIDs))
	for _, id := range failedIDs {
		failedSet[id] = struct{}{}
	}

	// An id reported both processed and failed is treated as failed: it may
	// be retried, never silently marked done.
	processed := make([]uuid.UUID, 0, len(processedIDs))
	for _, id := range processedIDs {
		if _, conflicted := failedSet[id]; !conflicted {
			processed = append(processed, id)
		}
	}

	byID := make(map[uuid.UUID]*domain.OutboxEvent, len(events))
	for _, event := range events {
		byID[event.ID] = event
	}

	// Partition failed ids on the current retry count: budget exhausted goes
	// terminal, the rest returns to PENDING grouped by the new retry count so
	// each group shares one backoff timestamp.
	terminal := make([]uuid.UUID, 0, len(failedIDs))
	retryGroups := make(map[int][]uuid.UUID)
	for _, id := range failedIDs {
		event, known := byID[id]
		if !known {
			continue
		}

		newRetryCount := event.RetryCount + 1
		if newRetryCount > maxRetryCount {
			terminal = append(terminal, id)
			continue
		}
		retryGroups[newRetryCount] = append(retryGroups[newRetryCount], id)
	}

	processed = knownIDs(processed, byID)

	// Empty outcome sets are a cheap no-op with no repository interaction.
	if len(processed) == 0 && len(terminal) == 0 && len(retryGroups) == 0 {
		return nil
	}

	if len(retryGroups) > 0 && nextRetryAt == nil {
		return domain.ErrNilBackoffFunc
	}

	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		if len(processed) > 0 {
			if err := uc.repo.UpdateStatusBatch(ctx, processed, domain.OutboxEventStatusProcessed); err != nil {
				return err
			}
		}

		if len(terminal) > 0 {
			if err := uc.repo.UpdateStatusBatch(ctx, terminal, domain.OutboxEventStatusFailed); err != nil {
				return err
			}
		}

		for newRetryCount, ids := range retryGroups {
			if err := uc.repo.MarkRetryBatch(ctx, ids, nextRetryAt(newRetryCount)); err != nil {
				return err
			}
		}

		return nil
	})
}

// RecoverStuckBatch resets events stuck IN_PROCESS longer than
// maxProcessingTime back to PENDING.
func (uc *OutboxUseCase) RecoverStuckBatch(
	ctx context.Context,
	maxProcessingTime time.Duration,
	batchSize int,
) (int64, error) {
	if batchSize <= 0 {
		return 0, domain.ErrInvalidBatchSize
	}

	threshold := time.Now().UTC().Add(-maxProcessingTime)

	var count int64
	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		count, err = uc.repo.RecoverStuck(ctx, threshold, batchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		uc.logger.Warn("recovered stuck outbox events", slog.Int64("count", count))
	}
	return count, nil
}

// CleanBatchByTTL deletes up to batchSize PROCESSED events older than ttl.
func (uc *OutboxUseCase) CleanBatchByTTL(
	ctx context.Context,
	ttl time.Duration,
	batchSize int,
) (int64, error) {
	if batchSize <= 0 {
		return 0, domain.ErrInvalidBatchSize
	}

	threshold := time.Now().UTC().Add(-ttl)

	var count int64
	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		count, err = uc.repo.DeleteProcessedOlderThan(ctx, threshold, batchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		uc.logger.Debug("cleaned processed outbox events", slog.Int64("count", count))
	}
	return count, nil
}

// DeleteBatch hard-deletes events by id set. Used by the DLQ transfer after a
// successful move.
func (uc *OutboxUseCase) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		return uc.repo.DeleteBatch(ctx, ids)
	})
}

// Count returns the total number of outbox events.
func (uc *OutboxUseCase) Count(ctx context.Context) (int64, error) {
	return uc.repo.Count(ctx)
}

// CountByStatus returns the number of outbox events with the given status.
func (uc *OutboxUseCase) CountByStatus(ctx context.Context, status domain.OutboxEventStatus) (int64, error) {
	return uc.repo.CountByStatus(ctx, status)
}

// CountByEventTypeAndStatus returns the number of outbox events with the
// given event type and status.
func (uc *OutboxUseCase) CountByEventTypeAndStatus(
	ctx context.Context,
	eventType string,
	status domain.OutboxEventStatus,
) (int64, error) {
	return uc.repo.CountByEventTypeAndStatus(ctx, eventType, status)
}

// prepareForEnqueue fills the fields the manager owns before insertion. A
// UUIDv7 id keeps storage order close to creation order.
func prepareForEnqueue(event *domain.OutboxEvent) {
	now := time.Now().UTC()

	if event.ID == uuid.Nil {
		event.ID = uuid.Must(uuid.NewV7())
	}
	event.Status = domain.OutboxEventStatusPending
	event.RetryCount = 0
	event.NextRetryAt = nil
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
}

// eventIDs collects the ids of the given events.
func eventIDs(events []*domain.OutboxEvent) []uuid.UUID {
	ids := make([]uuid.UUID, len(events))
	for i, event := range events {
		ids[i] = event.ID
	}
	return ids
}

// knownIDs filters ids down to those present in the claimed batch.
func knownIDs(ids []uuid.UUID, byID map[uuid.UUID]*domain.OutboxEvent) []uuid.UUID {
	known := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			known = append(known, id)
		}
	}
	return known
}
