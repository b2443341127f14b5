package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// TTLCache is a process-local map whose entries expire after maxAge.
// Expired entries are never returned; Purge drops them from memory.
type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	maxAge  time.Duration
	now     func() time.Time
}

// NewTTLCache creates a cache with the given max entry age
func NewTTLCache[K comparable, V any](maxAge time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]entry[V]),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// MaxAge returns the configured entry lifetime
func (c *TTLCache[K, V]) MaxAge() time.Duration {
	return c.maxAge
}

// Put stores value under key, replacing any previous entry
func (c *TTLCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, insertedAt: c.now()}
}

// Take returns and removes the entry for key. Each entry can be taken once.
func (c *TTLCache[K, V]) Take(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	delete(c.entries, key)
	if c.now().Sub(e.insertedAt) > c.maxAge {
		return zero, false
	}
	return e.value, true
}

// Len returns the number of stored entries, expired ones included
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes entries older than maxAge at now and returns how many were dropped
func (c *TTLCache[K, V]) Purge(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.insertedAt) > c.maxAge {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
