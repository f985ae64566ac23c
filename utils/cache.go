package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis cache client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
	}
}

// Get reads a cached value.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(val, dest)
}

// Set writes a cached value.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Delete removes cache entries.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Exists checks whether a cache key exists.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LRUCache is a per-process Cache. Values are stored JSON encoded so callers
// get the same copy semantics as with Redis. The TTL given at construction
// caps every entry; a shorter per-call expiration is honored on read.
type LRUCache struct {
	lru *expirable.LRU[string, lruEntry]
}

type lruEntry struct {
	data     []byte
	deadline time.Time
}

// NewLRUCache creates an in-memory cache holding at most size entries.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{lru: expirable.NewLRU[string, lruEntry](size, nil, ttl)}
}

func (c *LRUCache) Get(_ context.Context, key string, dest interface{}) error {
	entry, ok := c.lookup(key)
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(entry.data, dest)
}

func (c *LRUCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := lruEntry{data: data}
	if expiration > 0 {
		entry.deadline = time.Now().Add(expiration)
	}
	c.lru.Add(key, entry)
	return nil
}

func (c *LRUCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.lru.Remove(key)
	}
	return nil
}

func (c *LRUCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.lookup(key)
	return ok, nil
}

func (c *LRUCache) lookup(key string) (lruEntry, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return lruEntry{}, false
	}
	if !entry.deadline.IsZero() && !time.Now().Before(entry.deadline) {
		c.lru.Remove(key)
		return lruEntry{}, false
	}
	return entry, true
}

// BuildCacheKey builds a cache key.
func BuildCacheKey(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key += fmt.Sprintf(":%v", param)
	}
	return key
}

const (
	CacheKeyShareByAccessKey = "share:key"
	CacheKeyShareAccessKey   = "share:id"
	CacheKeyShareRevoked     = "share:revoked"
	CacheKeyShareExpire      = "share:expire"
)
