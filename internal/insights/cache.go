package insights

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Cache stores computed summaries for a limited time.
type Cache interface {
	Get(ctx context.Context, key string) (Summary, bool)
	Set(ctx context.Context, key string, s Summary, ttl time.Duration)
	// DeletePrefix drops every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

type memoryEntry struct {
	summary Summary
	expires time.Time
}

// MemoryCache is a process-local TTL map. Entries are not shared between
// instances and vanish on restart.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Summary{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return Summary{}, false
	}
	return e.summary, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, s Summary, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{summary: s, expires: now.Add(ttl)}
}

func (c *MemoryCache) DeletePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// RedisCache shares summaries between instances.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "insights:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Summary, bool) {
	val, err := c.rdb.Get(ctx, c.prefix+key).Result()
	if err != nil {
		return Summary{}, false
	}
	var s Summary
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return Summary{}, false
	}
	return s, true
}

func (c *RedisCache) Set(ctx context.Context, key string, s Summary, ttl time.Duration) {
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, c.prefix+key, data, ttl)
}

func (c *RedisCache) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.rdb.Scan(ctx, 0, c.prefix+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
