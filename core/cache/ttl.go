// Package cache provides the bounded, explicitly invalidated caches owned by services.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
	touchedAt time.Time
}

// TTL is a map cache whose entries expire after a fixed duration.
// When full, the least recently stored entry is evicted.
// Owners call Invalidate or Purge from the mutations that make entries stale.
type TTL[K comparable, V any] struct {
	mu         sync.Mutex
	entries    map[K]*entry[V]
	ttl        time.Duration
	maxEntries int
	nowFunc    func() time.Time
}

// NewTTL returns a cache holding at most maxEntries (0 = unbounded) for ttl each.
func NewTTL[K comparable, V any](ttl time.Duration, maxEntries int) *TTL[K, V] {
	return &TTL[K, V]{
		entries:    make(map[K]*entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		nowFunc:    time.Now,
	}
}

func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.nowFunc().Before(e.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

func (c *TTL[K, V]) Set(key K, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = &entry[V]{value: value, expiresAt: now.Add(c.ttl), touchedAt: now}
}

// GetOrLoad returns the cached value or stores the result of load.
// Errors are not cached.
func (c *TTL[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

func (c *TTL[K, V]) Invalidate(keys ...K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
}

func (c *TTL[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[V])
}

func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries, or the oldest one if none expired.
func (c *TTL[K, V]) evictLocked(now time.Time) {
	var (
		oldestKey K
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if !found || e.touchedAt.Before(oldest) {
			oldestKey, oldest, found = k, e.touchedAt, true
		}
	}
	if found && len(c.entries) >= c.maxEntries {
		delete(c.entries, oldestKey)
	}
}
