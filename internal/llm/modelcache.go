package llm

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProbeCache remembers the first working model from a provider's candidate
// list, so the discovery probe (which walks a configured candidate list with
// a >=5s inter-probe cooldown) need not repeat across process restarts when
// a shared cache is available. The probe stores only the model name; no
// cooldown state is cached.
//
// A minimal Get/Set-with-TTL key-value contract, backed by Redis when
// configured and by an in-process map otherwise.
type ProbeCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// NewProbeCache returns a Redis-backed cache when addr is non-empty, else an
// in-memory cache. Redis connection failures degrade to in-memory rather
// than failing gateway construction, since the probe cache is an
// optimization, not a correctness requirement.
func NewProbeCache(addr string) ProbeCache {
	if addr == "" {
		return newMemoryProbeCache()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return newMemoryProbeCache()
	}
	return &redisProbeCache{client: client}
}

type redisProbeCache struct{ client *redis.Client }

func (c *redisProbeCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil || err != nil {
		return "", false
	}
	return v, true
}

func (c *redisProbeCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	_ = c.client.Set(ctx, key, value, ttl).Err()
}

type memoryProbeCache struct {
	values map[string]memoryProbeEntry
}

type memoryProbeEntry struct {
	value   string
	expires time.Time
}

func newMemoryProbeCache() *memoryProbeCache {
	return &memoryProbeCache{values: make(map[string]memoryProbeEntry)}
}

func (c *memoryProbeCache) Get(_ context.Context, key string) (string, bool) {
	e, ok := c.values[key]
	if !ok {
		return "", false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(c.values, key)
		return "", false
	}
	return e.value, true
}

func (c *memoryProbeCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	entry := memoryProbeEntry{value: value}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	c.values[key] = entry
}
