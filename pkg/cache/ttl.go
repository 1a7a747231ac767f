package cache

import (
	"sync"
	"time"
)

type item[T any] struct {
	value      T
	expiration time.Time
}

// TTL is a thread-safe in-memory cache with a single expiry for all entries.
type TTL[T any] struct {
	mu   sync.RWMutex
	data map[string]item[T]
	ttl  time.Duration
	now  func() time.Time
}

// New creates a cache whose entries live for ttl.
func New[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{
		data: make(map[string]item[T]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get returns a cached value if present and not expired.
func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	it, ok := c.data[key]
	c.mu.RUnlock()

	var zero T
	if !ok {
		return zero, false
	}
	if c.now().After(it.expiration) {
		c.mu.Lock()
		if cur, ok := c.data[key]; ok && cur.expiration.Equal(it.expiration) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return it.value, true
}

// Put inserts or overwrites an entry.
func (c *TTL[T]) Put(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = item[T]{value: value, expiration: c.now().Add(c.ttl)}
}

// Bust deletes a single entry.
func (c *TTL[T]) Bust(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included until cleaned.
func (c *TTL[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// StartCleaner removes expired entries every interval until stop is closed.
func (c *TTL[T]) StartCleaner(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-stop:
			return
		}
	}
}

func (c *TTL[T]) cleanupExpired() {
	now := c.now()
	c.mu.Lock()
	for k, v := range c.data {
		if now.After(v.expiration) {
			delete(c.data, k)
		}
	}
	c.mu.Unlock()
}
