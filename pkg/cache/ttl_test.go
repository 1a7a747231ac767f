package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withClock(c *TTL[string], start time.Time) *time.Time {
	now := start
	c.now = func() time.Time { return now }
	return &now
}

func TestTTL_PutGet(t *testing.T) {
	c := New[string](time.Minute)
	c.Put("u1", "Hall Supply")

	v, ok := c.Get("u1")
	assert.True(t, ok)
	assert.Equal(t, "Hall Supply", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTL_Expiry(t *testing.T) {
	c := New[string](time.Minute)
	now := withClock(c, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c.Put("u1", "x")

	*now = now.Add(30 * time.Second)
	_, ok := c.Get("u1")
	assert.True(t, ok)

	*now = now.Add(31 * time.Second)
	_, ok = c.Get("u1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTL_Bust(t *testing.T) {
	c := New[string](time.Minute)
	c.Put("u1", "x")
	c.Bust("u1")
	_, ok := c.Get("u1")
	assert.False(t, ok)
}

func TestTTL_CleanupExpired(t *testing.T) {
	c := New[string](time.Second)
	now := withClock(c, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c.Put("a", "1")
	c.Put("b", "2")
	*now = now.Add(2 * time.Second)
	c.Put("c", "3")

	c.cleanupExpired()
	assert.Equal(t, 1, c.Len())
}

func TestTTL_StartCleanerStops(t *testing.T) {
	c := New[string](time.Millisecond)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.StartCleaner(time.Millisecond, stop)
	}()
	close(stop)
	wg.Wait()
}

func TestTTL_ConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put("k", i)
			_, _ = c.Get("k")
		}(i)
	}
	wg.Wait()
	_, ok := c.Get("k")
	assert.True(t, ok)
}
