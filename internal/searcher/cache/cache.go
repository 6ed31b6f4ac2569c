// Package cache stores search results in Redis. Keys include the index
// generation, so results computed against a replaced index are never
// served; Invalidate only reclaims space.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

const keyPrefix = "docsearch:q:"

// Backend is the key-value store behind the cache. *redis.Client from
// pkg/redis implements it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Key identifies a cached result.
type Key struct {
	Generation uint64
	Terms      []string
	Limit      int
	Category   string
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

// New returns a cache over backend. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, key Key) (*executor.SearchResult, bool) {
	k := key.String()
	data, found, err := c.backend.Get(ctx, k)
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache get failed", "key", k, "error", err)
	}
	if err != nil || !found {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache entry unreadable", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, result *executor.SearchResult) {
	k := key.String()
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.backend.Set(ctx, k, data, c.ttl); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute serves key from the cache, or runs compute once for all
// concurrent callers asking for the same key. A result produced by a
// different generation than the key names is returned but not stored.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		if result.Generation == key.Generation {
			c.Set(ctx, key, result)
		}
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*executor.SearchResult), false, nil
}

// Invalidate removes every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Errors  int64   `json:"errors"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
	Pool    any     `json:"pool,omitempty"`
}

// poolReporter is implemented by backends that expose connection pool
// counters.
type poolReporter interface {
	PoolStats() pkgredis.PoolStats
}

func (c *QueryCache) Stats() Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errors.Load()}
	s.Total = s.Hits + s.Misses
	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	if p, ok := c.backend.(poolReporter); ok {
		s.Pool = p.PoolStats()
	}
	return s
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// String renders the storage key. Term order does not affect scores, so
// terms are sorted; the category is case-folded like the index does.
func (k Key) String() string {
	terms := slices.Clone(k.Terms)
	slices.Sort(terms)
	raw := fmt.Sprintf("%s|limit=%d|cat=%s",
		strings.Join(terms, ","), k.Limit, index.NormalizeCategory(k.Category))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%d:%x", keyPrefix, k.Generation, hash[:16])
}
