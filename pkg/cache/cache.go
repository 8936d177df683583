// Package cache provides an optional redis-backed read cache for expensive
// report queries. The service runs fine without it; callers fall through to
// the underlying fetch when no cache is configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridianhq/pulse/pkg/logger"
	"github.com/meridianhq/pulse/pkg/metrics"
)

// Cache wraps a redis client with JSON marshalling.
type Cache struct {
	client *redis.Client
}

// Options configures the redis connection.
type Options struct {
	Address  string
	Password string
	DB       int
}

// Option applies a configuration option.
type Option func(*Options)

// WithAddress sets the redis address.
func WithAddress(addr string) Option {
	return func(o *Options) {
		o.Address = addr
	}
}

// WithPassword sets the redis password.
func WithPassword(pass string) Option {
	return func(o *Options) {
		o.Password = pass
	}
}

// WithDB selects the redis database.
func WithDB(db int) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// New connects to redis and verifies the connection.
func New(ctx context.Context, opts ...Option) (*Cache, error) {
	options := &Options{
		Address:  "localhost:6379",
		Password: "",
		DB:       0,
	}

	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     options.Address,
		Password: options.Password,
		DB:       options.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", options.Address, err)
	}

	return &Cache{client: client}, nil
}

// Get unmarshals the cached value at key into dest.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

// Set marshals value and stores it at key with the given expiration.
func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Close releases the redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// FetchFunc produces a value to cache.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Through reads key from the cache, falling back to fn on a miss and
// storing the result for ttl. A nil cache always calls fn directly.
func Through[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn FetchFunc[T]) (T, error) {
	if c == nil {
		return fn(ctx)
	}

	var cached T
	if err := c.Get(ctx, key, &cached); err == nil {
		metrics.RecordCacheHit()
		return cached, nil
	}
	metrics.RecordCacheMiss()

	result, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := c.Set(ctx, key, result, ttl); err != nil {
		logger.Get().Warn(ctx, "cache set failed", logger.String("key", key), logger.Error(err))
	}

	return result, nil
}
