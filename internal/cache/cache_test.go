package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Total int    `json:"total"`
	Label string `json:"label"`
}

func newCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, ""), mr
}

func TestGetMiss(t *testing.T) {
	c, _ := newCache(t)
	var got payload
	hit, err := c.Get(context.Background(), "analytics:-:-", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSetThenGet(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", payload{Total: 4, Label: "march"}, time.Minute))

	var got payload
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Total: 4, Label: "march"}, got)
	assert.True(t, mr.Exists(DefaultPrefix+":0:k"))

	mr.FastForward(2 * time.Minute)
	hit, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidateHidesOldEntries(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", payload{Total: 1}, time.Minute))
	require.NoError(t, c.Invalidate(ctx))

	var got payload
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "k", payload{Total: 2}, time.Minute))
	hit, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, got.Total)
}

func TestRedisDown(t *testing.T) {
	c, mr := newCache(t)
	mr.Close()
	_, err := c.Get(context.Background(), "k", &payload{})
	assert.Error(t, err)
}
