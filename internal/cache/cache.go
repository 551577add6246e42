// Package cache provides a short-TTL read-through cache used to front
// monitoring count queries and idempotency existence checks.
package cache

import (
	"context"
	"time"
)

// Cache defines the minimal key-value operations used by the cache decorators.
// Values are stored as strings; callers own the encoding.
type Cache interface {
	// Get returns the cached value for key and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with the given TTL. A non-positive TTL
	// stores the value without expiration.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes key from the cache. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
}

// CountTTLConfig holds the TTL tiers for the count cache decorators.
// Each query shape has its own tunable TTL since the entries feed gauges
// with different refresh expectations.
type CountTTLConfig struct {
	// TotalTTL applies to the overall count entry.
	TotalTTL time.Duration
	// ByStatusTTL applies to per-status count entries.
	ByStatusTTL time.Duration
	// ByTypeAndStatusTTL applies to per-type-and-status count entries.
	ByTypeAndStatusTTL time.Duration
}
