package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Entry is one cached rate. Entries are replaced wholesale, never mutated.
type Entry struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
	// Fallback marks an entry produced from the static default table.
	Fallback bool `json:"fallback"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Cache stores rate entries keyed by currency code.
type Cache interface {
	Get(ctx context.Context, code string) (Entry, bool)
	Set(ctx context.Context, code string, entry Entry)
}

// MemoryCache is a process-local Cache safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryCache creates an empty in-memory rate cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, code string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[code]
	return e, ok
}

// Set implements Cache. Concurrent writers race with last-write-wins.
func (c *MemoryCache) Set(_ context.Context, code string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[code] = entry
}

// Len returns the number of cached codes.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache shares rate entries between service instances. Redis errors
// degrade to cache misses and are logged; the provider then reads the store.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
}

// NewRedisCache wraps client. ttl bounds how long redis keeps a key; freshness
// is still decided by the provider from FetchedAt.
func NewRedisCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "rates:", log: log}
}

// NewRedisCacheFromURL parses a redis:// URL and builds the cache.
func NewRedisCacheFromURL(redisURL string, ttl time.Duration, log zerolog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("NewRedisCacheFromURL: parsing url: %w", err)
	}
	return NewRedisCache(redis.NewClient(opts), ttl, log), nil
}

func (c *RedisCache) key(code string) string {
	return c.prefix + strings.ToUpper(code)
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, code string) (Entry, bool) {
	raw, err := c.client.Get(ctx, c.key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("key", c.key(code)).Msg("Redis rate cache read failed")
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn().Err(err).Str("key", c.key(code)).Msg("Discarding undecodable rate cache entry")
		return Entry{}, false
	}
	return e, true
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, code string, entry Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn().Err(err).Str("currency", code).Msg("Encoding rate cache entry failed")
		return
	}
	if err := c.client.Set(ctx, c.key(code), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", c.key(code)).Msg("Redis rate cache write failed")
	}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
