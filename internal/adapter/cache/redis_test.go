package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keirav/manifold/internal/config"
	"github.com/keirav/manifold/internal/core/ports"
)

func newRedisBackedCache(t *testing.T, diskEnabled bool) (*TieredCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := config.CacheConfig{
		MemoryItems: 10,
		DefaultTTL:  time.Minute,
		DiskEnabled: diskEnabled,
	}
	if diskEnabled {
		cfg.DiskDir = t.TempDir()
	}

	c, err := NewWithRedisClient(cfg, client, newTestLogger())
	require.NoError(t, err)
	return c, mr
}

func TestRedisTier_RoundTrip(t *testing.T) {
	c, _ := newRedisBackedCache(t, false)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("v"), "ns", time.Minute, []ports.CacheLevel{ports.CacheLevelRedis}))

	value, hit, err := c.Get(ctx, "k", "ns")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, []byte("v"), value)
}

func TestRedisTier_HitPromotesThroughEveryFasterTier(t *testing.T) {
	c, _ := newRedisBackedCache(t, true)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("v"), "ns", time.Minute, []ports.CacheLevel{ports.CacheLevelRedis}))
	require.Equal(t, 0, c.Sizes(ctx)[ports.CacheLevelMemory])
	require.Equal(t, 0, c.Sizes(ctx)[ports.CacheLevelDisk])

	_, hit, err := c.Get(ctx, "k", "ns")
	require.NoError(t, err)
	require.True(t, hit)

	sizes := c.Sizes(ctx)
	assert.Equal(t, 1, sizes[ports.CacheLevelMemory], "redis hit must land in memory")
	assert.Equal(t, 1, sizes[ports.CacheLevelDisk], "redis hit must land on disk")
}

func TestRedisTier_DownRedisDegradesToMiss(t *testing.T) {
	c, mr := newRedisBackedCache(t, false)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("v"), "ns", time.Minute, []ports.CacheLevel{ports.CacheLevelRedis}))
	mr.Close()

	value, hit, err := c.Get(ctx, "k", "ns")
	assert.NoError(t, err, "a dead tier is a miss, never a lookup failure")
	assert.False(t, hit)
	assert.Nil(t, value)
	assert.Greater(t, c.Metrics()[ports.CacheLevelRedis].Errors, int64(0))
}

func TestRedisTier_InvalidatePattern(t *testing.T) {
	c, _ := newRedisBackedCache(t, false)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "model:gpt:1", []byte("a"), "resp", time.Minute, []ports.CacheLevel{ports.CacheLevelRedis}))
	require.NoError(t, c.Put(ctx, "model:claude:1", []byte("b"), "resp", time.Minute, []ports.CacheLevel{ports.CacheLevelRedis}))

	removed, err := c.Invalidate(ctx, "model:gpt:*", "resp")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, hit, _ := c.Get(ctx, "model:claude:1", "resp")
	assert.True(t, hit)
}

func TestRedisTier_TTLExpiry(t *testing.T) {
	c, mr := newRedisBackedCache(t, false)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("v"), "ns", 50*time.Millisecond, []ports.CacheLevel{ports.CacheLevelRedis}))

	// miniredis does not advance time on its own
	mr.FastForward(time.Second)

	_, hit, err := c.Get(ctx, "k", "ns")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisTier_PingReflectsLiveness(t *testing.T) {
	c, mr := newRedisBackedCache(t, false)
	ctx := context.Background()

	assert.NoError(t, c.PingRedis(ctx))
	mr.Close()
	assert.Error(t, c.PingRedis(ctx))
}

func TestPingRedis_NoopWithoutRedisTier(t *testing.T) {
	c := newMemoryDiskCache(t, 10)
	assert.NoError(t, c.PingRedis(context.Background()))
}
