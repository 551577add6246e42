package cache

import (
	"context"
	"time"
)

// NoOpCache implements Cache without storing anything. It is wired when
// caching is disabled so callers never branch on cache availability.
type NoOpCache struct{}

// NewNoOpCache creates a NoOpCache.
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Get always reports a cache miss.
func (c *NoOpCache) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}

// Set discards the value.
func (c *NoOpCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return nil
}

// Delete is a no-op.
func (c *NoOpCache) Delete(ctx context.Context, key string) error {
	return nil
}
