package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "p", point{X: 1, Y: 2.5}, 0))
	require.NoError(t, mc.Set(ctx, "s", "raw", 0))

	var p point
	require.NoError(t, mc.Get(ctx, "p", &p))
	assert.Equal(t, point{X: 1, Y: 2.5}, p)

	var s string
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "raw", s)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheKeys(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.MSet(ctx, map[string]interface{}{
		GenerateKey("state", "B"): point{X: 2},
		GenerateKey("state", "A"): point{X: 1},
		GenerateKey("history", "A"): []point{{X: 3}},
	}, 0))

	keys, err := mc.Keys(ctx, BuildPattern("state"))
	require.NoError(t, err)
	assert.Equal(t, []string{"state:A", "state:B"}, keys)

	typed, err := MGetTyped[point](ctx, mc, keys...)
	require.NoError(t, err)
	assert.Equal(t, map[string]point{"state:A": {X: 1}, "state:B": {X: 2}}, typed)
}

func TestMemoryCacheEvictsWhenFull(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	ok, _ := mc.Exists(ctx, "a")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock"))
	ok, err = mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheSweepsExpired(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(5 * time.Millisecond))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "short", "x", time.Millisecond))
	require.NoError(t, mc.Set(ctx, "long", "y", time.Hour))

	assert.Eventually(t, func() bool {
		mc.mutex.RLock()
		defer mc.mutex.RUnlock()
		_, ok := mc.data["short"]
		return !ok
	}, time.Second, 5*time.Millisecond)

	ok, err := mc.Exists(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)
}
