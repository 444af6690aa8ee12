// Package cache stores JSON values in Redis under a generation counter so a
// single INCR invalidates every cached entry.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces analytics entries.
const DefaultPrefix = "clubhub:analytics"

// Redis implements attendance.Cache.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis builds a cache on client. An empty prefix uses DefaultPrefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) genKey() string { return r.prefix + ":gen" }

func (r *Redis) generation(ctx context.Context) (int64, error) {
	v, err := r.client.Get(ctx, r.genKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (r *Redis) entryKey(gen int64, key string) string {
	return r.prefix + ":" + strconv.FormatInt(gen, 10) + ":" + key
}

// Get decodes the entry for key into dst and reports whether it was found.
func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	gen, err := r.generation(ctx)
	if err != nil {
		return false, err
	}
	raw, err := r.client.Get(ctx, r.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores v under key for ttl in the current generation.
func (r *Redis) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	gen, err := r.generation(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.entryKey(gen, key), raw, ttl).Err()
}

// Invalidate moves to a new generation. Old entries expire on their TTL.
func (r *Redis) Invalidate(ctx context.Context) error {
	return r.client.Incr(ctx, r.genKey()).Err()
}
