package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/allisson/outbox/internal/cache"
	"github.com/allisson/outbox/internal/outbox/domain"
)

// outboxUseCaseWithCountCache decorates the count queries with a short-TTL
// read-through cache. The entries feed monitoring gauges, so a cache error
// degrades to the underlying query rather than failing the read.
type outboxUseCaseWithCountCache struct {
	UseCase
	cache cache.Cache
	ttls  cache.CountTTLConfig
}

// NewOutboxUseCaseWithCountCache wraps a UseCase with count caching. Pass a
// cache.NoOpCache to disable caching without changing the wiring.
func NewOutboxUseCaseWithCountCache(useCase UseCase, c cache.Cache, ttls cache.CountTTLConfig) UseCase {
	return &outboxUseCaseWithCountCache{
		UseCase: useCase,
		cache:   c,
		ttls:    ttls,
	}
}

func (c *outboxUseCaseWithCountCache) Count(ctx context.Context) (int64, error) {
	return c.readThrough(ctx, "outbox:count", c.ttls.TotalTTL, func() (int64, error) {
		return c.UseCase.Count(ctx)
	})
}

func (c *outboxUseCaseWithCountCache) CountByStatus(
	ctx context.Context,
	status domain.OutboxEventStatus,
) (int64, error) {
	key := fmt.Sprintf("outbox:count:status:%s", status)
	return c.readThrough(ctx, key, c.ttls.ByStatusTTL, func() (int64, error) {
		return c.UseCase.CountByStatus(ctx, status)
	})
}

func (c *outboxUseCaseWithCountCache) CountByEventTypeAndStatus(
	ctx context.Context,
	eventType string,
	status domain.OutboxEventStatus,
) (int64, error) {
	key := fmt.Sprintf("outbox:count:type:%s:status:%s", eventType, status)
	return c.readThrough(ctx, key, c.ttls.ByTypeAndStatusTTL, func() (int64, error) {
		return c.UseCase.CountByEventTypeAndStatus(ctx, eventType, status)
	})
}

// readThrough serves the count from cache when possible and refreshes the
// entry after a miss.
func (c *outboxUseCaseWithCountCache) readThrough(
	ctx context.Context,
	key string,
	ttl time.Duration,
	load func() (int64, error),
) (int64, error) {
	if value, found, err := c.cache.Get(ctx, key); err == nil && found {
		if count, parseErr := strconv.ParseInt(value, 10, 64); parseErr == nil {
			return count, nil
		}
	}

	count, err := load()
	if err != nil {
		return 0, err
	}

	// Best effort: a failed cache write never fails the read.
	_ = c.cache.Set(ctx, key, strconv.FormatInt(count, 10), ttl)

	return count, nil
}
