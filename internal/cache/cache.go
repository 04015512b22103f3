// Package cache provides a small JSON read-through cache on Redis.
// The cache is an optional accelerator: a nil *Cache is valid and every
// method degrades to a miss, so callers never branch on its presence.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default TTL for cached reads. Writes invalidate eagerly, so the TTL only
// bounds staleness across process crashes and missed invalidations.
const DefaultTTL = 60 * time.Second

// Key builders shared by the service layer.
func BalanceKey(userID string) string { return "mapos:balance:" + userID }
func LeaderboardKey(limit int) string { return "mapos:leaderboard:" + strconv.Itoa(limit) }

// Cache wraps a Redis client with JSON marshaling helpers.
type Cache struct {
	rdb *redis.Client
}

// New creates a Cache over the given client. client may be nil.
func New(client *redis.Client) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{rdb: client}
}

// Get retrieves a value and unmarshals it into dest. It reports whether the
// key was present.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil {
		return false, nil
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(val), dest)
}

// Set stores a value under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
