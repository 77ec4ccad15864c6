// Package cache fronts the archive store with a small byte cache, mainly for
// the "is this dynamic already archived" checks that dominate an incremental
// crawl. Backends are process-local memory or redis.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented cache with per-entry TTL. Get reports a miss with
// ok=false and a nil error; errors mean the backend itself failed. A ttl of
// zero stores the entry without expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
