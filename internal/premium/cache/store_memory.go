package cache

import (
	"context"
	"sync"
	"time"
)

// InMemoryCache is the default Store: one map guarded by one lock, so a
// verdict and its timestamp are always written together.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

// Option configures an InMemoryCache.
type Option func(*InMemoryCache)

// WithClock overrides the time source used to judge freshness.
func WithClock(now func() time.Time) Option {
	return func(c *InMemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewInMemoryCache creates a new in-memory cache with the specified TTL.
func NewInMemoryCache(ttl time.Duration, opts ...Option) *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InMemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !fresh(e, c.now(), c.ttl) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (c *InMemoryCache) Put(_ context.Context, key string, verdict bool, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Key: key, Verdict: verdict, WrittenAt: now}
	return nil
}

// Sweep deletes stale entries and returns how many were removed.
func (c *InMemoryCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if !fresh(e, now, c.ttl) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports stored entries, stale ones included.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RunSweeper sweeps every interval until ctx is done.
func (c *InMemoryCache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(c.now())
		}
	}
}
