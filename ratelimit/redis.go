package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript atomically counts one call in a fixed window.
//
// Keys: KEYS[1] = bucket key
// Args: ARGV[1] = max attempts, ARGV[2] = window (ms)
// Returns: {allowed (0/1), count, remaining window (ms)}
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local ttl = redis.call("PTTL", key)
if ttl < 0 then
    redis.call("DEL", key)
    ttl = window
end

local count = tonumber(redis.call("GET", key) or "0")
if count >= max then
    return {0, count, ttl}
end

count = redis.call("INCR", key)
if count == 1 then
    redis.call("PEXPIRE", key, window)
end
return {1, count, ttl}
`)

// RedisBackend shares buckets between processes through Redis. Window
// expiry is driven by key TTLs, so the Redis server clock is authoritative.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend creates a Redis-backed rate limit backend.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: "evolution:rl:",
	}
}

// WithPrefix changes the key prefix.
func (b *RedisBackend) WithPrefix(prefix string) *RedisBackend {
	b.prefix = prefix
	return b
}

// Take implements Backend.
func (b *RedisBackend) Take(ctx context.Context, key string, rule Rule, now time.Time) (Bucket, bool, error) {
	res, err := fixedWindowScript.Run(ctx, b.client, []string{b.prefix + key},
		rule.MaxAttempts, rule.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Bucket{}, false, fmt.Errorf("redis rate limit take: %w", err)
	}
	if len(res) != 3 {
		return Bucket{}, false, fmt.Errorf("redis rate limit take: unexpected reply %v", res)
	}

	remaining := time.Duration(res[2]) * time.Millisecond
	return Bucket{
		Category:        key,
		MaxAttempts:     rule.MaxAttempts,
		Window:          rule.Window,
		Count:           int(res[1]),
		WindowStartedAt: now.Add(remaining - rule.Window),
	}, res[0] == 1, nil
}

// Peek implements Backend.
func (b *RedisBackend) Peek(ctx context.Context, key string, rule Rule, now time.Time) (Bucket, bool, error) {
	pipe := b.client.Pipeline()
	get := pipe.Get(ctx, b.prefix+key)
	pttl := pipe.PTTL(ctx, b.prefix+key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Bucket{}, false, fmt.Errorf("redis rate limit peek: %w", err)
	}

	count, err := get.Int()
	if errors.Is(err, redis.Nil) {
		return Bucket{}, false, nil
	}
	if err != nil {
		return Bucket{}, false, fmt.Errorf("redis rate limit peek: %w", err)
	}
	return Bucket{
		Category:        key,
		MaxAttempts:     rule.MaxAttempts,
		Window:          rule.Window,
		Count:           count,
		WindowStartedAt: now.Add(pttl.Val() - rule.Window),
	}, true, nil
}

// Reset implements Backend.
func (b *RedisBackend) Reset(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset: %w", err)
	}
	return nil
}
