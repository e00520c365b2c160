package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"netsentry/internal/model"
)

// Redis backs the cache contract with a Redis server. Prefix clearing uses
// SCAN so it never blocks the server the way KEYS would.
type Redis struct {
	client *redis.Client
}

var _ model.Cache = (*Redis)(nil)

// NewRedis connects and pings the server so misconfiguration surfaces at
// startup instead of on the first dedup decision.
func NewRedis(addr string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, prefix, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, cacheKey(prefix, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, prefix, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, cacheKey(prefix, key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, prefix, key string) error {
	return r.client.Del(ctx, cacheKey(prefix, key)).Err()
}

func (r *Redis) ClearPrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
