// Package toolexec layers ambient tool-dispatch features atop
// internal/agenttool's registry: a result cache and a bulk "batch" tool
// (spec 4.H's concurrency paragraph names "batch" without defining it;
// SPEC_FULL.md's domain-stack wiring gives it the shape implemented
// here).
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/pkg/models"
)

// CacheStats tracks a ResultCache's hit/miss/write counters.
type CacheStats struct {
	Hits        int64
	Misses      int64
	TotalWrites int64
}

// ResultCache is an optional, off-by-default layer in front of
// Registry.Execute that memoises an idempotent tool's result by
// toolCallId, so a retried or replayed call skips re-execution.
type ResultCache interface {
	Get(ctx context.Context, toolCallID string) (agenttool.Result[any], bool, error)
	Set(ctx context.Context, toolCallID string, result agenttool.Result[any], ttl time.Duration) error
	Stats() CacheStats
	Close() error
}

// RedisCache is the Redis-backed ResultCache, grounded on the Redis
// agent-result cache pattern: a key-prefixed client with a default TTL
// and in-memory + Redis-side hit/miss counters.
type RedisCache struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration

	mu    sync.RWMutex
	stats CacheStats
}

// RedisCacheOptions configures RedisCache's connection and defaults.
type RedisCacheOptions struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	DefaultTTL time.Duration
}

// NewRedisCache dials Redis and verifies the connection with a PING.
func NewRedisCache(ctx context.Context, opts RedisCacheOptions) (*RedisCache, error) {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "coreagent"
	}
	if opts.DefaultTTL == 0 {
		opts.DefaultTTL = 5 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("toolexec: connect to redis: %w", err)
	}

	return &RedisCache{client: client, prefix: opts.KeyPrefix, defaultTTL: opts.DefaultTTL}, nil
}

func (c *RedisCache) key(toolCallID string) string {
	return fmt.Sprintf("%s:toolresult:%s", c.prefix, toolCallID)
}

// cachedResult is the JSON shape stored in Redis for one cached Result.
type cachedResult struct {
	Content models.ContentBlocks `json:"content"`
	Details json.RawMessage      `json:"details,omitempty"`
}

// Get looks up a previously cached result by toolCallId.
func (c *RedisCache) Get(ctx context.Context, toolCallID string) (agenttool.Result[any], bool, error) {
	raw, err := c.client.Get(ctx, c.key(toolCallID)).Bytes()
	if err == redis.Nil {
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
		return agenttool.Result[any]{}, false, nil
	}
	if err != nil {
		return agenttool.Result[any]{}, false, fmt.Errorf("toolexec: redis get: %w", err)
	}

	var cached cachedResult
	if err := json.Unmarshal(raw, &cached); err != nil {
		return agenttool.Result[any]{}, false, fmt.Errorf("toolexec: decode cached result: %w", err)
	}

	result, err := decodeResult(cached)
	if err != nil {
		return agenttool.Result[any]{}, false, err
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	return result, true, nil
}

// Set stores result under toolCallId, expiring after ttl (or the
// cache's default when ttl is zero).
func (c *RedisCache) Set(ctx context.Context, toolCallID string, result agenttool.Result[any], ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := cachedResult{Content: result.Content}
	if result.Details != nil {
		details, err := json.Marshal(*result.Details)
		if err != nil {
			return fmt.Errorf("toolexec: encode result details: %w", err)
		}
		cached.Details = details
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("toolexec: encode cache entry: %w", err)
	}

	if err := c.client.Set(ctx, c.key(toolCallID), data, ttl).Err(); err != nil {
		return fmt.Errorf("toolexec: redis set: %w", err)
	}

	c.mu.Lock()
	c.stats.TotalWrites++
	c.mu.Unlock()
	return nil
}

// Stats returns the cache's hit/miss/write counters observed locally by
// this client.
func (c *RedisCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Close closes the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func decodeResult(cached cachedResult) (agenttool.Result[any], error) {
	result := agenttool.Result[any]{Content: cached.Content}
	if len(cached.Details) > 0 {
		var details any
		if err := json.Unmarshal(cached.Details, &details); err != nil {
			return agenttool.Result[any]{}, fmt.Errorf("toolexec: decode cached details: %w", err)
		}
		result.Details = &details
	}
	return result, nil
}
