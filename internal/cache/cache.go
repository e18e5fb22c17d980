// Package cache memoizes aggregate counts for the record layer. The Redis
// store is shared across processes; Memory is the in-process fallback used
// when Redis is unavailable.
package cache

import (
	"context"
	"time"
)

// Cache remembers integer aggregates under a key for a bounded time.
type Cache interface {
	// Remember returns the cached value for key, or calls fn, stores its
	// result for ttl and returns it. fn errors are returned and not cached.
	Remember(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) (int64, error)) (int64, error)
	Delete(ctx context.Context, key string) error
}
