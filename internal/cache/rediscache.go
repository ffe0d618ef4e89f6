package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache adapts a shared Redis instance to the Cache contract, for
// deployments that want query-cache entries to survive process
// restarts and be shared across engine replicas. Values are JSON
// encoded; Size/GetStats approximate their in-process-LRU counterparts
// since Redis has no built-in LRU element count scoped to a single
// prefix without a SCAN.
type RedisCache struct {
	client *redis.Client
	prefix string
	ctx    context.Context

	hits   uint64
	misses uint64
}

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisCache dials a Redis client. The connection is lazy: no
// round-trip happens until the first Get/Set call.
func NewRedisCache(ctx context.Context, cfg RedisConfig) *RedisCache {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ragcore:cache:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisCache{client: client, prefix: prefix, ctx: ctx}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// Get deserializes the cached JSON payload. A miss (including a Redis
// connection fault) returns (nil, false) rather than surfacing an
// error: cache faults are recovered locally and never surfaced to the
// caller.
func (c *RedisCache) Get(key string) (any, bool) {
	raw, err := c.client.Get(c.ctx, c.key(key)).Bytes()
	if err != nil {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}
	atomic.AddUint64(&c.hits, 1)
	return v, true
}

// Set serializes value as JSON and stores it with the given TTL. A
// zero ttl means no expiration. Marshal/Redis faults are swallowed,
// consistent with the "cache errors never surface" propagation policy.
func (c *RedisCache) Set(key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.client.Set(c.ctx, c.key(key), raw, ttl)
}

func (c *RedisCache) Delete(key string) {
	c.client.Del(c.ctx, c.key(key))
}

func (c *RedisCache) Has(key string) bool {
	n, err := c.client.Exists(c.ctx, c.key(key)).Result()
	return err == nil && n > 0
}

// Clear removes every key under this cache's prefix via SCAN, avoiding
// a blocking KEYS call against a shared Redis instance, and resets the
// hit/miss counters.
func (c *RedisCache) Clear() {
	iter := c.client.Scan(c.ctx, 0, c.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(c.ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.client.Del(c.ctx, keys...)
	}
	c.ResetStats()
}

// ResetStats zeroes the hit/miss counters without touching cached data.
func (c *RedisCache) ResetStats() {
	atomic.StoreUint64(&c.hits, 0)
	atomic.StoreUint64(&c.misses, 0)
}

// Size counts keys under this cache's prefix via SCAN. Expensive on a
// large shared instance; intended for diagnostics, not the hot path.
func (c *RedisCache) Size() int {
	iter := c.client.Scan(c.ctx, 0, c.prefix+"*", 0).Iterator()
	count := 0
	for iter.Next(c.ctx) {
		count++
	}
	return count
}

// GetStats returns process-local hit/miss counters; Redis itself is
// the source of truth for MaxSize/eviction, which this adapter does
// not attempt to mirror.
func (c *RedisCache) GetStats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{Size: c.Size(), Hits: hits, Misses: misses, HitRate: hitRate}
}

// Close releases the underlying Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping verifies connectivity, useful at startup to fail fast rather
// than discovering a broken Redis config on the first cache miss.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

var _ Cache = (*RedisCache)(nil)
