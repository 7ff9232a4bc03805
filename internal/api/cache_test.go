package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(4, time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte(`{"a":1}`)))
	body, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(body))
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 4, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(4, 5*time.Minute)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v")))

	now = now.Add(5 * time.Minute)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok, "entry at exactly the TTL is still served")

	now = now.Add(time.Second)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	require.NoError(t, c.Set(ctx, "b", []byte("2")))
	_, _, _ = c.Get(ctx, "a") // a is now most recent
	require.NoError(t, c.Set(ctx, "c", []byte("3")))

	_, okA, _ := c.Get(ctx, "a")
	_, okB, _ := c.Get(ctx, "b")
	_, okC, _ := c.Get(ctx, "c")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCache_OverwriteKeepsSize(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	require.NoError(t, c.Set(ctx, "a", []byte("2")))

	body, ok, _ := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "2", string(body))
	assert.Equal(t, 1, c.Len())
}

func TestOpenRedis_EmptyAddr(t *testing.T) {
	assert.Nil(t, OpenRedis("", "", 0))
}

func TestNewRedisCache_DefaultTTL(t *testing.T) {
	client := OpenRedis("127.0.0.1:0", "", 0)
	defer client.Close() //nolint:errcheck

	c := NewRedisCache(client, 0)
	assert.Equal(t, DefaultCacheTTL, c.ttl)
	assert.Equal(t, "impact:resp:", c.prefix)
}
