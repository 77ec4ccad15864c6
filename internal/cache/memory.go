package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value    []byte
	deadline time.Time
}

func (e entry) live(now time.Time) bool {
	return e.deadline.IsZero() || now.Before(e.deadline)
}

// MemoryCache is the default process-local cache. Expired entries are dropped
// lazily on read and swept in bulk every sweepEvery writes, so no background
// goroutine is needed.
type MemoryCache struct {
	mu     sync.Mutex
	items  map[string]entry
	writes int
}

const sweepEvery = 4096

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]entry, 1024)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if !e.live(now) {
		delete(c.items, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := entry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.deadline = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = e
	c.writes++
	if c.writes >= sweepEvery {
		c.writes = 0
		now := time.Now()
		for k, v := range c.items {
			if !v.live(now) {
				delete(c.items, k)
			}
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
