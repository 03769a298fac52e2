// Package cache memoises lookup results per index generation. A bounded LRU
// sits in front of an optional shared Redis tier, and concurrent identical
// lookups are collapsed into one evaluation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/executor"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/parser"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/redis"
)

const keyPrefix = "lookup:"

// Store is the shared tier. *pkgredis.Client implements it; Get must return
// an error satisfying pkgredis.IsNilError for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Tier names where a result came from.
type Tier string

const (
	TierNone  Tier = ""
	TierLocal Tier = "local"
	TierRedis Tier = "redis"
)

type QueryCache struct {
	local  *lru.Cache[string, *executor.Result]
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	m      *metrics.Metrics
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New returns a cache holding up to size results locally. store and m may be
// nil.
func New(size int, store Store, ttl time.Duration, m *metrics.Metrics) (*QueryCache, error) {
	if size <= 0 {
		size = 1024
	}
	local, err := lru.New[string, *executor.Result](size)
	if err != nil {
		return nil, fmt.Errorf("creating lookup cache: %w", err)
	}
	return &QueryCache{
		local:  local,
		store:  store,
		ttl:    ttl,
		m:      m,
		logger: slog.Default().With("component", "lookup-cache"),
	}, nil
}

// Get looks the plan up in the local tier, then the shared tier.
func (c *QueryCache) Get(ctx context.Context, generation string, plan *parser.Plan, limit int) (*executor.Result, Tier) {
	key := buildKey(generation, plan, limit)
	if result, ok := c.local.Get(key); ok {
		c.hit(TierLocal)
		return result, TierLocal
	}
	if c.store != nil {
		data, err := c.store.Get(ctx, key)
		switch {
		case err == nil:
			var result executor.Result
			if err := json.Unmarshal([]byte(data), &result); err != nil {
				c.logger.Error("cache unmarshal failed", "key", key, "error", err)
				break
			}
			c.local.Add(key, &result)
			c.hit(TierRedis)
			return &result, TierRedis
		case !pkgredis.IsNilError(err):
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
	}
	c.misses.Add(1)
	if c.m != nil {
		c.m.CacheMissesTotal.Inc()
	}
	return nil, TierNone
}

// Set stores result in both tiers.
func (c *QueryCache) Set(ctx context.Context, generation string, plan *parser.Plan, limit int, result *executor.Result) {
	key := buildKey(generation, plan, limit)
	c.local.Add(key, result)
	if c.store == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached result or evaluates computeFn once for all
// concurrent callers with the same key.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation string,
	plan *parser.Plan,
	limit int,
	computeFn func() (*executor.Result, error),
) (*executor.Result, Tier, error) {
	if result, tier := c.Get(ctx, generation, plan, limit); tier != TierNone {
		return result, tier, nil
	}
	key := buildKey(generation, plan, limit)
	val, err, _ := c.group.Do(key, func() (any, error) {
		if result, ok := c.local.Get(key); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, generation, plan, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, TierNone, err
	}
	return val.(*executor.Result), TierNone, nil
}

// Forget drops every entry of a generation from both tiers.
func (c *QueryCache) Forget(ctx context.Context, generation string) error {
	prefix := generationPrefix(generation)
	removed := 0
	for _, key := range c.local.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.local.Remove(key)
			removed++
		}
	}
	var deleted int64
	if c.store != nil {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, prefix+"*")
		if err != nil {
			return fmt.Errorf("forgetting generation %s: %w", generation, err)
		}
	}
	c.logger.Info("cache generation dropped",
		"generation", generation,
		"local_removed", removed,
		"shared_removed", deleted,
	)
	return nil
}

// Stats returns hit and miss counts across both tiers.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of entries in the local tier.
func (c *QueryCache) Len() int {
	return c.local.Len()
}

func (c *QueryCache) hit(tier Tier) {
	c.hits.Add(1)
	if c.m != nil {
		c.m.CacheHitsTotal.WithLabelValues(string(tier)).Inc()
	}
}

func generationPrefix(generation string) string {
	return keyPrefix + generation + ":"
}

func buildKey(generation string, plan *parser.Plan, limit int) string {
	raw := fmt.Sprintf("%s:limit=%d", plan.Key(), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", generationPrefix(generation), hash[:16])
}
