package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPrefix namespaces notification keys in a shared Redis.
const RedisPrefix = "mp:notif:"

// Redis stores keys with a TTL so every replica sees the same set.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client. A non-positive ttl defaults to 24h.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

// Seen implements Cache.
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, RedisPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark implements Cache. SETNX keeps the first writer's expiry.
func (r *Redis) Mark(ctx context.Context, key string) error {
	return r.client.SetNX(ctx, RedisPrefix+key, time.Now().UTC().Unix(), r.ttl).Err()
}
