// Package usecase implements the idempotent consumer: the dedup gate inbound
// message handlers pass through before executing business logic.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/consumer/domain"
)

// ConsumedEventRepository defines consumed event record repository operations.
type ConsumedEventRepository interface {
	SaveIfAbsent(ctx context.Context, record *domain.ConsumedEventRecord) (bool, error)
	SaveIfAbsentBatch(ctx context.Context, records []*domain.ConsumedEventRecord) ([]uuid.UUID, error)
	DeleteOlderThan(ctx context.Context, threshold time.Time, limit int) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// UseCase defines the idempotent consumer operations.
type UseCase interface {
	// IsConsumed atomically marks id as consumed and reports whether it had
	// been consumed before. False means this call was the first.
	IsConsumed(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkConsumedBatch marks a batch of ids as consumed, skipping those
	// already present, and returns the ids newly marked. An id present
	// before the call never appears in the result, so a repeated call
	// returns an empty set.
	MarkConsumedBatch(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)

	// Consume runs fn exactly once for id: the consumed mark and the work
	// commit or roll back together, and a second call for the same id skips
	// fn entirely.
	Consume(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error

	// CleanBatchByTTL deletes up to batchSize records older than ttl and
	// returns the count deleted.
	CleanBatchByTTL(ctx context.Context, ttl time.Duration, batchSize int) (int64, error)

	// Count returns the total number of consumed event records.
	Count(ctx context.Context) (int64, error)
}
