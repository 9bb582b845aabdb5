package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares cached summaries across API replicas.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCache connects to addr. password and db follow redis.Options.
func NewRedisCache(addr, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, prefix: "vigilaero:evidence:"}
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client, prefix: "vigilaero:evidence:"}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (Summary, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, fmt.Errorf("redis get: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return Summary{}, false, fmt.Errorf("decode cached summary: %w", err)
	}
	return s.Normalized(), true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, s Summary, ttl time.Duration) error {
	raw, err := json.Marshal(s.Normalized())
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
