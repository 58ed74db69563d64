package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"taskflow/domain"
)

// Cache wraps a slot backend with Redis-backed caching for reads.
type Cache struct {
	base  domain.Slots
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base domain.Slots, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base slots are nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// Get reads through the cache. The sign-in flag is never cached so that a
// sign-out takes effect on the next request.
func (c *Cache) Get(ctx context.Context, partition, key string) ([]byte, bool, error) {
	if key == domain.AuthSlot {
		return c.base.Get(ctx, partition, key)
	}
	if data, ok := c.load(ctx, partition, key); ok {
		return data, true, nil
	}

	data, ok, err := c.base.Get(ctx, partition, key)
	if err != nil || !ok {
		return data, ok, err
	}

	c.store(ctx, partition, key, data)
	return data, true, nil
}

func (c *Cache) Put(ctx context.Context, partition, key string, value []byte) error {
	if err := c.base.Put(ctx, partition, key, value); err != nil {
		return err
	}

	c.evict(ctx, partition, key)
	return nil
}

func (c *Cache) Delete(ctx context.Context, partition, key string) error {
	if err := c.base.Delete(ctx, partition, key); err != nil {
		return err
	}

	c.evict(ctx, partition, key)
	return nil
}

func (c *Cache) load(ctx context.Context, partition, key string) ([]byte, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, cacheKey(partition, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, cacheKey(partition, key)).Err()
		}
		return nil, false
	}
	return data, true
}

func (c *Cache) store(ctx context.Context, partition, key string, data []byte) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	_ = c.redis.Set(ctx, cacheKey(partition, key), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, partition, key string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, cacheKey(partition, key)).Result()
}

func cacheKey(partition, key string) string {
	return "cache:" + slotKey(partition, key)
}
