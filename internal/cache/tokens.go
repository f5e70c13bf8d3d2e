// Package cache keeps slot-wide QR tokens in Redis so the scan screen can
// refresh without touching the database.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"canteen/internal/store"
)

// SlotTokens is a Redis-backed slot token cache.
type SlotTokens struct {
	rdb *redis.Client
}

// NewSlotTokens returns nil when Redis is disabled.
func NewSlotTokens(r *store.Redis) *SlotTokens {
	if r == nil || r.Client == nil {
		return nil
	}
	return &SlotTokens{rdb: r.Client}
}

func tokenKey(slotName, day string) string {
	return store.Key("slot-token", day, slotName)
}

// Get returns the cached token, or "" on a miss.
func (c *SlotTokens) Get(ctx context.Context, slotName, day string) (string, error) {
	token, err := c.rdb.Get(ctx, tokenKey(slotName, day)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

// Set caches a token until ttl elapses.
func (c *SlotTokens) Set(ctx context.Context, slotName, day, token string, ttl time.Duration) error {
	return c.rdb.Set(ctx, tokenKey(slotName, day), token, ttl).Err()
}
