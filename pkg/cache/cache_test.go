package cache_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/optionpricing/pkg/cache"
)

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func newRedisCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestRedisCacheJSON(t *testing.T) {
	rc, mr := newRedisCache(t)
	ctx := context.Background()

	var got quote
	hit, err := rc.GetJSON(ctx, "q:AAPL", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, rc.SetJSON(ctx, "q:AAPL", quote{Symbol: "AAPL", Price: 6.1}, time.Minute))
	hit, err = rc.GetJSON(ctx, "q:AAPL", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, quote{Symbol: "AAPL", Price: 6.1}, got)

	mr.FastForward(2 * time.Minute)
	hit, err = rc.GetJSON(ctx, "q:AAPL", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCacheDelete(t *testing.T) {
	rc, _ := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "k", "v", 0))
	require.NoError(t, rc.Delete(ctx, "k"))
	v, err := rc.GetBytes(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
	require.NoError(t, rc.Delete(ctx))
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	host := mr.Host()
	mr.Close()

	_, err = cache.New(context.Background(), cache.Config{Host: host, Port: port, ConnTimeout: 1, ReadTimeout: 1, WriteTimeout: 1})
	require.Error(t, err)
}

func TestLocalCache(t *testing.T) {
	lc, err := cache.NewLocal(context.Background(), time.Minute)
	require.NoError(t, err)
	defer lc.Close()

	_, ok := lc.Get("missing")
	assert.False(t, ok)

	require.NoError(t, lc.Set("k", []byte("v")))
	v, ok := lc.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, lc.Delete("k"))
	require.NoError(t, lc.Delete("k"))
}
