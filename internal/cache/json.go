package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSON wraps Redis helpers for JSON payloads.
type JSON struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewJSON constructs a cache helper. Keys are namespaced with prefix.
func NewJSON(client *redis.Client, prefix string, ttl time.Duration) *JSON {
	return &JSON{client: client, ttl: ttl, prefix: prefix}
}

// Key returns the namespaced key for id.
func (c *JSON) Key(id string) string {
	if c == nil || c.prefix == "" {
		return id
	}
	return c.prefix + ":" + id
}

// Get unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *JSON) Get(ctx context.Context, id string, dst any) (bool, error) {
	if c == nil || c.client == nil || id == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, c.Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set serialises v as JSON and stores it with the configured TTL.
func (c *JSON) Set(ctx context.Context, id string, v any) error {
	if c == nil || c.client == nil || id == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.Key(id), data, c.ttl).Err()
}

// Delete removes a cached entry.
func (c *JSON) Delete(ctx context.Context, id string) error {
	if c == nil || c.client == nil || id == "" {
		return nil
	}
	return c.client.Del(ctx, c.Key(id)).Err()
}
