// Package cache provides a Redis-backed query result cache with
// singleflight deduplication of concurrent misses for the same key.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"pubfinder/internal/searcher/executor"
	"pubfinder/pkg/config"
	pkgredis "pubfinder/pkg/redis"
)

const keyPrefix = "search:"

// QueryCache caches executor results keyed on the normalized query, sort,
// and limit.
type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a QueryCache over the given Redis client.
func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get returns a cached result, or (nil, false) on miss or cache error.
func (c *QueryCache) Get(ctx context.Context, query string, sortKey executor.Sort, limit int) (*executor.Result, bool) {
	key := c.buildKey(query, sortKey, limit)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &result, true
}

// Set stores a result under the cache TTL. Failures are logged, not
// propagated; the cache is best-effort.
func (c *QueryCache) Set(ctx context.Context, query string, sortKey executor.Sort, limit int, result *executor.Result) {
	key := c.buildKey(query, sortKey, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes and stores it,
// coalescing concurrent misses for the same key into one computation.
// The bool reports whether the result came from the cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	sortKey executor.Sort,
	limit int,
	computeFn func() (*executor.Result, error),
) (*executor.Result, bool, error) {
	if result, ok := c.Get(ctx, query, sortKey, limit); ok {
		return result, true, nil
	}
	key := c.buildKey(query, sortKey, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, query, sortKey, limit); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, sortKey, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Result), false, nil
}

// Invalidate drops every cached search result. Called after a reindex.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns cumulative hit and miss counts.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(query string, sortKey executor.Sort, limit int) string {
	raw := fmt.Sprintf("%s|%s|limit=%d", normalizeQuery(query), sortKey, limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery lower-cases and sorts the query words so trivially
// reordered queries share a cache entry.
func normalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	sort.Strings(words)
	return strings.Join(words, " ")
}
