// Package cache is a small typed JSON cache over Redis. Values are
// marshalled structs rather than untyped blobs so callers get their own
// shape back or a miss, never an any.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache[T any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func New[T any](client redis.UniversalClient, prefix string, ttl time.Duration) *Cache[T] {
	return &Cache[T]{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache[T]) key(k string) string {
	return c.prefix + ":" + k
}

// Get returns the cached value and whether it was present.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("cache get: %w", err)
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		// A value that no longer unmarshals is stale schema; drop it.
		_ = c.client.Del(ctx, c.key(key)).Err()
		return zero, false, nil
	}
	return value, true, nil
}

func (c *Cache[T]) Set(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *Cache[T]) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
