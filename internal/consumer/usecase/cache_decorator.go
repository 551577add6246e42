package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/cache"
)

// consumerUseCaseWithCache decorates IsConsumed with a positive-entry cache.
// A hit skips the database round trip and reports consumed. Entries are only
// written after the underlying check confirmed the id, never speculatively,
// which is what makes the hit path safe.
type consumerUseCaseWithCache struct {
	UseCase
	cache cache.Cache
	ttl   time.Duration
}

// NewConsumerUseCaseWithCache wraps a UseCase with consumed-id caching. Pass
// a cache.NoOpCache to disable caching without changing the wiring.
func NewConsumerUseCaseWithCache(useCase UseCase, c cache.Cache, ttl time.Duration) UseCase {
	return &consumerUseCaseWithCache{
		UseCase: useCase,
		cache:   c,
		ttl:     ttl,
	}
}

func (c *consumerUseCaseWithCache) IsConsumed(ctx context.Context, id uuid.UUID) (bool, error) {
	key := consumedKey(id)

	if _, found, err := c.cache.Get(ctx, key); err == nil && found {
		return true, nil
	}

	consumed, err := c.UseCase.IsConsumed(ctx, id)
	if err != nil {
		return false, err
	}

	// The underlying call marked the id either way, so the entry is written
	// regardless of which side of the check this call landed on. Best
	// effort: a failed cache write never fails the check.
	_ = c.cache.Set(ctx, key, "1", c.ttl)

	return consumed, nil
}

func consumedKey(id uuid.UUID) string {
	return fmt.Sprintf("consumed:%s", id)
}
