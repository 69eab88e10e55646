package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"media-optimizer/internal/filesystem"
	"media-optimizer/internal/metrics"
)

// DefaultMaxRemoteEntryBytes bounds what is pushed to the remote tier.
const DefaultMaxRemoteEntryBytes = 16 << 20

// RedisBackend shares entries between CI runners through Redis.
type RedisBackend struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	maxBytes int64
}

// NewRedisBackend connects using a redis:// URL. ttl of zero keeps entries forever.
func NewRedisBackend(url string, ttl time.Duration) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisBackendWithClient(redis.NewClient(opts), ttl), nil
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{
		client:   client,
		prefix:   appName + ":entry:",
		ttl:      ttl,
		maxBytes: DefaultMaxRemoteEntryBytes,
	}
}

// Ping checks connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// Name implements Backend.
func (r *RedisBackend) Name() string {
	return "redis"
}

// Restore implements Backend.
func (r *RedisBackend) Restore(ctx context.Context, key, target string) (bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheRemoteTotal.WithLabelValues("get", "miss").Inc()
		return false, nil
	}
	if err != nil {
		metrics.CacheRemoteTotal.WithLabelValues("get", "error").Inc()
		// An unreachable tier behaves like a miss.
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	metrics.CacheRemoteTotal.WithLabelValues("get", "hit").Inc()

	if err := filesystem.WriteFileAtomic(target, data, 0o644); err != nil {
		return true, err
	}
	return true, nil
}

// Populate implements Backend. Files larger than the size limit are not
// pushed.
func (r *RedisBackend) Populate(ctx context.Context, key, source string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}
	if info.Size() > r.maxBytes {
		metrics.CacheRemoteTotal.WithLabelValues("set", "too_large").Inc()
		return nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		metrics.CacheRemoteTotal.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	metrics.CacheRemoteTotal.WithLabelValues("set", "success").Inc()
	return nil
}
