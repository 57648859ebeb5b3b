// Package cache keeps computed application statistics in Redis.
//
// Entries are keyed by a per-kind generation counter. Every mutation bumps the
// generation, so a snapshot computed while a write was in flight is stored
// under a stale key and never served.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/transport-portal/internal/domain"
	"github.com/spec-kit/transport-portal/internal/workflow"
)

const keyPrefix = "portal:stats:"

// StatsCache stores aggregated statistics per application kind.
type StatsCache interface {
	// Generation returns the current generation token for kind.
	Generation(ctx context.Context, kind domain.ApplicationKind) (int64, error)
	// Get returns the stats cached for kind at generation gen.
	Get(ctx context.Context, kind domain.ApplicationKind, gen int64) (*workflow.Stats, bool, error)
	// Set stores stats computed at generation gen.
	Set(ctx context.Context, kind domain.ApplicationKind, gen int64, stats workflow.Stats) error
	// Invalidate advances the generation for kind.
	Invalidate(ctx context.Context, kind domain.ApplicationKind) error
	// Evict drops the entry stored for kind at generation gen.
	Evict(ctx context.Context, kind domain.ApplicationKind, gen int64) error
}

// RedisStatsCache implements StatsCache with go-redis.
type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatsCache builds a cache; ttl bounds how long an entry survives if
// an invalidation is ever lost.
func NewRedisStatsCache(client *redis.Client, ttl time.Duration) *RedisStatsCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisStatsCache{client: client, ttl: ttl}
}

func genKey(kind domain.ApplicationKind) string {
	return keyPrefix + string(kind) + ":gen"
}

func entryKey(kind domain.ApplicationKind, gen int64) string {
	return fmt.Sprintf("%s%s:%d", keyPrefix, kind, gen)
}

func (c *RedisStatsCache) Generation(ctx context.Context, kind domain.ApplicationKind) (int64, error) {
	gen, err := c.client.Get(ctx, genKey(kind)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisStatsCache) Get(ctx context.Context, kind domain.ApplicationKind, gen int64) (*workflow.Stats, bool, error) {
	raw, err := c.client.Get(ctx, entryKey(kind, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stats workflow.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false, fmt.Errorf("decode cached stats: %w", err)
	}
	return &stats, true, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, kind domain.ApplicationKind, gen int64, stats workflow.Stats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, entryKey(kind, gen), raw, c.ttl).Err()
}

func (c *RedisStatsCache) Invalidate(ctx context.Context, kind domain.ApplicationKind) error {
	return c.client.Incr(ctx, genKey(kind)).Err()
}

func (c *RedisStatsCache) Evict(ctx context.Context, kind domain.ApplicationKind, gen int64) error {
	return c.client.Del(ctx, entryKey(kind, gen)).Err()
}

// MemoryStatsCache is an in-process StatsCache for tests and single-node
// development.
type MemoryStatsCache struct {
	mu      sync.Mutex
	gens    map[domain.ApplicationKind]int64
	entries map[string]workflow.Stats
}

// NewMemoryStatsCache builds an empty cache.
func NewMemoryStatsCache() *MemoryStatsCache {
	return &MemoryStatsCache{
		gens:    make(map[domain.ApplicationKind]int64),
		entries: make(map[string]workflow.Stats),
	}
}

func (c *MemoryStatsCache) Generation(_ context.Context, kind domain.ApplicationKind) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[kind], nil
}

func (c *MemoryStatsCache) Get(_ context.Context, kind domain.ApplicationKind, gen int64) (*workflow.Stats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats, ok := c.entries[entryKey(kind, gen)]
	if !ok {
		return nil, false, nil
	}
	return &stats, true, nil
}

func (c *MemoryStatsCache) Set(_ context.Context, kind domain.ApplicationKind, gen int64, stats workflow.Stats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entryKey(kind, gen)] = stats
	return nil
}

func (c *MemoryStatsCache) Invalidate(_ context.Context, kind domain.ApplicationKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[kind]++
	prefix := keyPrefix + string(kind) + ":"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *MemoryStatsCache) Evict(_ context.Context, kind domain.ApplicationKind, gen int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, entryKey(kind, gen))
	return nil
}
