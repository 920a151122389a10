package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements Backend on a shared *redis.Client. The client
// is injected so its lifecycle stays with the process that constructs the
// store, and so tests can substitute their own.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps an existing Redis client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Push prepends via LPUSH.
func (b *RedisBackend) Push(ctx context.Context, key string, value []byte) error {
	if err := b.client.LPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

// Range reads list elements via LRANGE.
func (b *RedisBackend) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	values, err := b.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out, nil
}

// Expire resets the key's TTL.
func (b *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := b.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// TTL maps Redis's -1/-2 sentinel replies onto NoExpiry and
// ErrKeyNotFound.
func (b *RedisBackend) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := b.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s: %w", key, err)
	}
	switch {
	case d == -2*time.Nanosecond || d == -2*time.Second:
		return 0, ErrKeyNotFound
	case d == -1*time.Nanosecond || d == -1*time.Second:
		return NoExpiry, nil
	}
	return d, nil
}

// Scan enumerates keys with cursor-based SCAN rather than KEYS so large
// keyspaces do not block the server.
func (b *RedisBackend) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := b.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Delete removes keys via DEL.
func (b *RedisBackend) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := b.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("del: %w", err)
	}
	return n, nil
}

// Ping verifies connectivity, for health checks and test skips.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
