package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*miniredis.Miniredis, *CacheManager) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewCacheManager(NewRedisCache(client, "test"))
}

func TestRedisCache_MissAndPrefix(t *testing.T) {
	mr, cm := newTestManager(t)
	ctx := context.Background()

	var out []string
	err := cm.GetJSON(ctx, CatalogKey(), &out)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cm.SetJSON(ctx, CatalogKey(), []string{"JFK"}, time.Minute))
	assert.True(t, mr.Exists("test:catalog:airports"))

	require.NoError(t, cm.GetJSON(ctx, CatalogKey(), &out))
	assert.Equal(t, []string{"JFK"}, out)
}

func TestCacheManager_GetOrLoad(t *testing.T) {
	_, cm := newTestManager(t)
	ctx := context.Background()

	calls := 0
	load := func() (interface{}, error) {
		calls++
		return map[string]int{"JFK": 3}, nil
	}

	var first map[string]int
	require.NoError(t, cm.GetOrLoad(ctx, "k", time.Minute, &first, load))
	var second map[string]int
	require.NoError(t, cm.GetOrLoad(ctx, "k", time.Minute, &second, load))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 3, second["JFK"])
}

func TestCacheManager_GetOrLoadPropagatesLoadError(t *testing.T) {
	_, cm := newTestManager(t)

	var out []string
	err := cm.GetOrLoad(context.Background(), "k", time.Minute, &out, func() (interface{}, error) {
		return nil, errors.New("feed down")
	})
	assert.EqualError(t, err, "feed down")
}

func TestRedisCache_Clear(t *testing.T) {
	mr, cm := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, cm.SetJSON(ctx, ClimateKey(40.6413, -73.7781), 1, time.Minute))
	require.NoError(t, mr.Set("other:key", "keep"))

	require.NoError(t, cm.Clear(ctx))

	exists, err := cm.Exists(ctx, ClimateKey(40.6413, -73.7781))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.True(t, mr.Exists("other:key"))
}

func TestCacheManager_DeletePrefix(t *testing.T) {
	_, cm := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, cm.SetJSON(ctx, ClimateKey(1, 2), 1, time.Minute))
	require.NoError(t, cm.SetJSON(ctx, ClimateKey(3, 4), 1, time.Minute))
	require.NoError(t, cm.SetJSON(ctx, CatalogKey(), []int{}, time.Minute))

	require.NoError(t, cm.DeletePrefix(ctx, ClimatePrefix))

	for _, key := range []string{ClimateKey(1, 2), ClimateKey(3, 4)} {
		exists, err := cm.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists, key)
	}
	exists, err := cm.Exists(ctx, CatalogKey())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestClimateKey_Rounds(t *testing.T) {
	assert.Equal(t, "climate:40.64_-73.78", ClimateKey(40.6413, -73.7781))
}
