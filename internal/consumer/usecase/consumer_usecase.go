package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/consumer/domain"
	"github.com/allisson/outbox/internal/database"
	outboxdomain "github.com/allisson/outbox/internal/outbox/domain"
)

// ConsumerUseCase implements the idempotent consumer over a dialect-specific
// repository.
type ConsumerUseCase struct {
	txManager database.TxManager
	repo      ConsumedEventRepository
	logger    *slog.Logger
}

// NewConsumerUseCase creates a new ConsumerUseCase.
func NewConsumerUseCase(
	txManager database.TxManager,
	repo ConsumedEventRepository,
	logger *slog.Logger,
) *ConsumerUseCase {
	return &ConsumerUseCase{
		txManager: txManager,
		repo:      repo,
		logger:    logger,
	}
}

// IsConsumed attempts the insert-if-absent mark for id. A successful insert
// means first time (returns false); zero rows inserted means the id was
// already present (returns true). The check and the mark are one atomic
// statement, so there is no check-then-insert race.
func (uc *ConsumerUseCase) IsConsumed(ctx context.Context, id uuid.UUID) (bool, error) {
	inserted, err := uc.repo.SaveIfAbsent(ctx, domain.NewConsumedEventRecord(id))
	if err != nil {
		return false, err
	}
	return !inserted, nil
}

// MarkConsumedBatch marks a batch of ids as consumed and returns the ids
// newly marked. Already-present ids are skipped.
func (uc *ConsumerUseCase) MarkConsumedBatch(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if ids == nil {
		return nil, outboxdomain.ErrNilIDBatch
	}
	if len(ids) == 0 {
		return nil, nil
	}

	records := make([]*domain.ConsumedEventRecord, len(ids))
	for i, id := range ids {
		records[i] = domain.NewConsumedEventRecord(id)
	}

	return uc.repo.SaveIfAbsentBatch(ctx, records)
}

// Consume runs fn exactly once for id. The consumed mark and fn share one
// transaction: an abort leaves neither committed, so a crashed consumer can
// safely reprocess the message. When the id was already consumed, fn is
// skipped entirely.
func (uc *ConsumerUseCase) Consume(
	ctx context.Context,
	id uuid.UUID,
	fn func(ctx context.Context) error,
) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		consumed, err := uc.IsConsumed(ctx, id)
		if err != nil {
			return err
		}
		if consumed {
			uc.logger.Debug("skipping already consumed event", slog.String("event_id", id.String()))
			return nil
		}
		return fn(ctx)
	})
}

// CleanBatchByTTL deletes up to batchSize records older than ttl.
func (uc *ConsumerUseCase) CleanBatchByTTL(
	ctx context.Context,
	ttl time.Duration,
	batchSize int,
) (int64, error) {
	if batchSize <= 0 {
		return 0, outboxdomain.ErrInvalidBatchSize
	}

	threshold := time.Now().UTC().Add(-ttl)

	var count int64
	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		count, err = uc.repo.DeleteOlderThan(ctx, threshold, batchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		uc.logger.Debug("cleaned consumed event records", slog.Int64("count", count))
	}
	return count, nil
}

// Count returns the total number of consumed event records.
func (uc *ConsumerUseCase) Count(ctx context.Context) (int64, error) {
	return uc.repo.Count(ctx)
}
