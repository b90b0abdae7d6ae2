package cache

import (
	"context"
	"time"
)

// Store represents the shared cache interface used across the application.
// Delete and DeleteByPrefix back the identity invalidation fan-out that keeps
// cached principals coherent with data-scope mutations.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
