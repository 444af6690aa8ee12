package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis builds a client with short timeouts. The analytics cache, the
// event queue and the rate limiter share it.
func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// RedisHealthy verifies redis connectivity.
func RedisHealthy(ctx context.Context, client *redis.Client) bool {
	if client == nil {
		return false
	}
	return client.Ping(ctx).Err() == nil
}
