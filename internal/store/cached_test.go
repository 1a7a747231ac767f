package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/navi/internal/navi"
	"github.com/Checker-Finance/navi/pkg/model"
)

func newTestCached(t *testing.T) (*Cached, *Memory, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mem := NewMemory()
	return NewCached(mem, rdb, time.Minute, nil), mem, mr
}

func TestCached_SaveWritesThrough(t *testing.T) {
	ctx := context.Background()
	c, mem, mr := newTestCached(t)

	saved, err := c.SaveTrade(ctx, sampleTrade("t1"))
	require.NoError(t, err)

	raw, err := mr.Get(tradeKey("t1"))
	require.NoError(t, err)
	var cached model.Trade
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, saved.Version, cached.Version)

	durable, _ := mem.LoadTrade(ctx, "t1")
	assert.Equal(t, saved.Version, durable.Version)
	assert.Equal(t, time.Minute, mr.TTL(tradeKey("t1")))
}

func TestCached_LoadServesFromRedis(t *testing.T) {
	ctx := context.Background()
	c, _, mr := newTestCached(t)

	tr := sampleTrade("t9")
	tr.Version = 3
	data, _ := json.Marshal(tr)
	require.NoError(t, mr.Set(tradeKey("t9"), string(data)))

	got, err := c.LoadTrade(ctx, "t9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.Version)
}

func TestCached_MissFillsCache(t *testing.T) {
	ctx := context.Background()
	c, mem, mr := newTestCached(t)

	_, err := mem.SaveTrade(ctx, sampleTrade("t1"))
	require.NoError(t, err)
	assert.False(t, mr.Exists(tradeKey("t1")))

	got, err := c.LoadTrade(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, mr.Exists(tradeKey("t1")))

	missing, err := c.LoadTrade(ctx, "none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCached_ConflictEvicts(t *testing.T) {
	ctx := context.Background()
	c, _, mr := newTestCached(t)

	first, err := c.SaveTrade(ctx, sampleTrade("t1"))
	require.NoError(t, err)
	stale := first.Clone()

	_, err = c.SaveTrade(ctx, first)
	require.NoError(t, err)

	_, err = c.SaveTrade(ctx, stale)
	assert.ErrorIs(t, err, navi.ErrConflict)
	assert.False(t, mr.Exists(tradeKey("t1")))
}

func TestCached_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	c, mem, mr := newTestCached(t)
	_, err := mem.SaveTrade(ctx, sampleTrade("t1"))
	require.NoError(t, err)

	mr.Close()

	got, err := c.LoadTrade(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)

	err = c.HealthCheck(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestCached_HealthCheckRedisNil(t *testing.T) {
	c := &Cached{backing: NewMemory()}
	err := c.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis not initialized")
}
