// Package querycache caches search results in Redis, keyed by a digest of
// the query. Concurrent identical queries are collapsed with singleflight,
// and all Redis access runs behind a circuit breaker so a failing cache
// degrades to direct engine queries instead of per-request timeouts.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	pkgredis "github.com/pzhine/js-worker-search/pkg/redis"
	"github.com/pzhine/js-worker-search/pkg/resilience"
)

const keyPrefix = "jsws:search:"

// QueryCache is a read-through cache for search results.
type QueryCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a QueryCache with the given TTL.
func New(client *pkgredis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{
		client:  client,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{}),
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for query, if present.
func (c *QueryCache) Get(ctx context.Context, query string) ([]string, bool) {
	key := buildKey(query)
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			// A miss is a healthy response, not a cache failure.
			data = ""
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Debug("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if data == "" {
		c.misses.Add(1)
		return nil, false
	}

	var uids []string
	if err := json.Unmarshal([]byte(data), &uids); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return uids, true
}

// Set stores the result for query with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, query string, uids []string) {
	key := buildKey(query)
	data, err := json.Marshal(uids)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Debug("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for query, computing and caching it
// on a miss. Concurrent callers with the same query share one computation.
// The second return value reports whether the result came from the cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	computeFn func() ([]string, error),
) ([]string, bool, error) {
	if uids, ok := c.Get(ctx, query); ok {
		return uids, true, nil
	}
	val, err, _ := c.group.Do(buildKey(query), func() (any, error) {
		if uids, ok := c.Get(ctx, query); ok {
			return uids, nil
		}
		uids, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, uids)
		return uids, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]string), false, nil
}

// Invalidate removes every cached result. Called after any index mutation:
// with no per-token dependency tracking, dropping everything is the only
// correct option.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.client.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating query cache: %w", err)
	}
	if deleted > 0 {
		c.logger.Debug("query cache invalidated", "keys_deleted", deleted)
	}
	return nil
}

// Stats returns the hit and miss counts since startup.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(query string) string {
	digest := sha256.Sum256([]byte(query))
	return keyPrefix + hex.EncodeToString(digest[:16])
}
