package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/executor"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/parser"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/redis"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (s *fakeStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	v, ok := s.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *fakeStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func result(files ...string) *executor.Result {
	return &executor.Result{Files: files, TotalHits: len(files)}
}

func TestQueryCache_LocalHit(t *testing.T) {
	c, err := New(16, nil, time.Minute, nil)
	require.NoError(t, err)
	plan := parser.Parse("cat dog")

	got, tier := c.Get(context.Background(), "gen1", plan, 10)
	assert.Nil(t, got)
	assert.Equal(t, TierNone, tier)

	c.Set(context.Background(), "gen1", plan, 10, result("a.txt"))
	got, tier = c.Get(context.Background(), "gen1", parser.Parse("dog AND cat"), 10)
	require.NotNil(t, got)
	assert.Equal(t, TierLocal, tier)
	assert.Equal(t, []string{"a.txt"}, got.Files)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestQueryCache_KeyedByGenerationAndLimit(t *testing.T) {
	c, err := New(16, nil, time.Minute, nil)
	require.NoError(t, err)
	plan := parser.Parse("cat")
	c.Set(context.Background(), "gen1", plan, 10, result("a.txt"))

	_, tier := c.Get(context.Background(), "gen2", plan, 10)
	assert.Equal(t, TierNone, tier)
	_, tier = c.Get(context.Background(), "gen1", plan, 5)
	assert.Equal(t, TierNone, tier)
}

func TestQueryCache_SharedTier(t *testing.T) {
	store := newFakeStore()
	first, err := New(16, store, time.Minute, nil)
	require.NoError(t, err)
	plan := parser.Parse("cat")
	first.Set(context.Background(), "gen1", plan, 0, result("a.txt", "c.txt"))

	second, err := New(16, store, time.Minute, nil)
	require.NoError(t, err)
	got, tier := second.Get(context.Background(), "gen1", plan, 0)
	require.NotNil(t, got)
	assert.Equal(t, TierRedis, tier)
	assert.Equal(t, []string{"a.txt", "c.txt"}, got.Files)

	_, tier = second.Get(context.Background(), "gen1", plan, 0)
	assert.Equal(t, TierLocal, tier)
}

func TestQueryCache_StoreErrorIsAMiss(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	c, err := New(16, store, time.Minute, nil)
	require.NoError(t, err)

	got, tier := c.Get(context.Background(), "gen1", parser.Parse("cat"), 0)
	assert.Nil(t, got)
	assert.Equal(t, TierNone, tier)
}

func TestQueryCache_GetOrComputeCollapsesCallers(t *testing.T) {
	c, err := New(16, nil, time.Minute, nil)
	require.NoError(t, err)
	plan := parser.Parse("cat")

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.Result, error) {
		calls.Add(1)
		<-release
		return result("a.txt"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := c.GetOrCompute(context.Background(), "gen1", plan, 0, compute)
			assert.NoError(t, err)
			assert.Equal(t, []string{"a.txt"}, got.Files)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	_, tier, err := c.GetOrCompute(context.Background(), "gen1", plan, 0, compute)
	require.NoError(t, err)
	assert.Equal(t, TierLocal, tier)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueryCache_GetOrComputeErrorNotCached(t *testing.T) {
	c, err := New(16, nil, time.Minute, nil)
	require.NoError(t, err)
	plan := parser.Parse("cat")
	boom := errors.New("boom")

	_, _, err = c.GetOrCompute(context.Background(), "gen1", plan, 0, func() (*executor.Result, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestQueryCache_Forget(t *testing.T) {
	store := newFakeStore()
	c, err := New(16, store, time.Minute, nil)
	require.NoError(t, err)
	ctx := context.Background()
	c.Set(ctx, "gen1", parser.Parse("cat"), 0, result("a.txt"))
	c.Set(ctx, "gen1", parser.Parse("dog"), 0, result("b.txt"))
	c.Set(ctx, "gen2", parser.Parse("cat"), 0, result("c.txt"))

	require.NoError(t, c.Forget(ctx, "gen1"))
	assert.Equal(t, 1, c.Len())
	assert.Len(t, store.data, 1)

	got, tier := c.Get(ctx, "gen2", parser.Parse("cat"), 0)
	assert.Equal(t, TierLocal, tier)
	assert.Equal(t, []string{"c.txt"}, got.Files)
}

func TestQueryCache_Metrics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c, err := New(16, nil, time.Minute, m)
	require.NoError(t, err)
	plan := parser.Parse("cat")

	c.Get(context.Background(), "gen1", plan, 0)
	c.Set(context.Background(), "gen1", plan, 0, result("a.txt"))
	c.Get(context.Background(), "gen1", plan, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("local")))
}
