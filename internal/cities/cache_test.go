package cities

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "1", time.Hour), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, []Entry{{Name: "Pune", ID: "9"}}))
	assert.True(t, mr.Exists("cities:1"))
	assert.Equal(t, time.Hour, mr.TTL("cities:1"))

	got, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []Entry{{Name: "Pune", ID: "9"}}, got)
}

func TestRedisCacheCorruptValue(t *testing.T) {
	cache, mr := newTestCache(t)
	require.NoError(t, mr.Set("cities:1", "not-json"))
	_, _, err := cache.Get(context.Background())
	assert.Error(t, err)
}

func TestDirectoryPrefersCache(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, []Entry{{Name: "Pune", ID: "9"}}))

	src := &fakeSource{entries: sample}
	dir := NewDirectory(src, nil, WithCache(cache))
	require.NoError(t, dir.Load(ctx))
	assert.True(t, dir.Has("Pune"))
	assert.Zero(t, src.calls.Load())
}

func TestDirectoryFillsCache(t *testing.T) {
	cache, mr := newTestCache(t)
	dir := NewDirectory(&fakeSource{entries: sample}, nil, WithCache(cache))
	require.NoError(t, dir.Load(context.Background()))
	assert.True(t, mr.Exists("cities:1"))
}
