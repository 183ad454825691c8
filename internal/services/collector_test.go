package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabu-tools/stockdata/internal/cache"
	"github.com/kabu-tools/stockdata/internal/config"
	"github.com/kabu-tools/stockdata/internal/database"
	"github.com/kabu-tools/stockdata/internal/models"
	"github.com/kabu-tools/stockdata/internal/ratelimit"
)

// fakeFetcher counts calls and serves canned responses per symbol.
type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	bars  map[string][]models.Bar
	fail  map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls: make(map[string]int),
		bars:  make(map[string][]models.Bar),
		fail:  make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, symbol, interval, _ string) ([]models.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if err := f.fail[symbol]; err != nil {
		return nil, err
	}
	out := make([]models.Bar, len(f.bars[symbol]))
	copy(out, f.bars[symbol])
	for i := range out {
		out[i].Interval = interval
		out[i].CreatedAt = time.Now().UTC()
	}
	return out, nil
}

func (f *fakeFetcher) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func barsFor(symbol string, n int) []models.Bar {
	base := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	bars := make([]models.Bar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Interval:  "1m",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      100,
			High:      101,
			Low:       99,
			Close:     100.5,
			Volume:    1000,
		})
	}
	return bars
}

func testCollectorConfig() config.CollectorConfig {
	return config.CollectorConfig{
		MaxWorkers:         3,
		MinRequestInterval: time.Millisecond,
		CacheExpireHours:   1,
		DefaultInterval:    "1m",
		DefaultPeriod:      "1d",
		RetryAttempts:      3,
		RetryMinWait:       time.Millisecond,
		RetryMaxWait:       5 * time.Millisecond,
	}
}

func newTestCollector(t *testing.T, fetcher Fetcher) *Collector {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "stock_data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store := cache.NewStore(db, logger)
	limiter := ratelimit.New(time.Millisecond)
	return NewCollector(store, fetcher, limiter, testCollectorConfig(), logger)
}

func TestGetFetchesPersistsAndReturns(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bars["TEST"] = barsFor("TEST", 5)
	collector := newTestCollector(t, fetcher)
	ctx := context.Background()

	bars, err := collector.Get(ctx, "TEST", "1m", "1d", true, time.Hour)
	require.NoError(t, err)
	assert.Len(t, bars, 5)
	assert.Equal(t, 1, fetcher.callCount("TEST"), "cache miss must trigger exactly one upstream call")

	stats, err := collector.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalRecords, "fetched rows must be persisted")

	// Second immediate call with a 1h TTL is served from cache.
	bars, err = collector.Get(ctx, "TEST", "1m", "1d", true, time.Hour)
	require.NoError(t, err)
	assert.Len(t, bars, 5)
	assert.Equal(t, 1, fetcher.callCount("TEST"), "fresh cache must suppress the upstream call")
}

func TestGetStaleCacheTriggersRefetch(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bars["TEST"] = barsFor("TEST", 3)
	collector := newTestCollector(t, fetcher)
	ctx := context.Background()

	_, err := collector.Get(ctx, "TEST", "1m", "1d", true, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.callCount("TEST"))

	// Zero TTL makes the entry immediately stale.
	_, err = collector.Get(ctx, "TEST", "1m", "1d", true, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount("TEST"), "stale cache must perform exactly one upstream call")
}

func TestGetBypassesCacheWhenDisabled(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bars["TEST"] = barsFor("TEST", 2)
	collector := newTestCollector(t, fetcher)
	ctx := context.Background()

	_, err := collector.Get(ctx, "TEST", "1m", "1d", false, time.Hour)
	require.NoError(t, err)
	_, err = collector.Get(ctx, "TEST", "1m", "1d", false, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount("TEST"))

	stats, err := collector.CacheStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRecords, "use_cache=false must not write to the cache")
}

func TestGetEmptyResultIsNotCachedOrRetried(t *testing.T) {
	fetcher := newFakeFetcher()
	collector := newTestCollector(t, fetcher)
	ctx := context.Background()

	bars, err := collector.Get(ctx, "EMPTY", "1m", "1d", true, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Equal(t, 1, fetcher.callCount("EMPTY"), "an empty result is terminal, not retried")

	stats, err := collector.CacheStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRecords)
}

func TestGetPropagatesExhaustedRetries(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.fail["DOWN"] = errors.New("connection refused")
	collector := newTestCollector(t, fetcher)

	_, err := collector.Get(context.Background(), "DOWN", "1m", "1d", true, time.Hour)
	require.Error(t, err)
	assert.Equal(t, 3, fetcher.callCount("DOWN"), "all retry attempts must be exhausted before failing")
}

func TestGetRetriesTransientFailure(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	fetcher := fetcherFunc(func(_ context.Context, symbol, interval, _ string) ([]models.Bar, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, errors.New("timeout")
		}
		bars := barsFor(symbol, 2)
		for i := range bars {
			bars[i].CreatedAt = time.Now().UTC()
		}
		return bars, nil
	})
	collector := newTestCollector(t, fetcher)

	bars, err := collector.Get(context.Background(), "FLAKY", "1m", "1d", true, time.Hour)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 2, calls)
}

type fetcherFunc func(ctx context.Context, symbol, interval, period string) ([]models.Bar, error)

func (f fetcherFunc) Fetch(ctx context.Context, symbol, interval, period string) ([]models.Bar, error) {
	return f(ctx, symbol, interval, period)
}

func TestGetManyPartialFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bars["A"] = barsFor("A", 2)
	fetcher.fail["B"] = errors.New("provider error")
	fetcher.bars["C"] = barsFor("C", 4)
	collector := newTestCollector(t, fetcher)

	results := collector.GetMany(context.Background(), []string{"A", "B", "C"}, "1m", "1d", true)

	assert.Len(t, results, 2)
	assert.Contains(t, results, "A")
	assert.Contains(t, results, "C")
	assert.NotContains(t, results, "B", "a failed symbol must be absent, not nil")
	assert.Len(t, results["A"], 2)
	assert.Len(t, results["C"], 4)
}

func TestGetManyEmptySymbolList(t *testing.T) {
	collector := newTestCollector(t, newFakeFetcher())

	results := collector.GetMany(context.Background(), nil, "1m", "1d", true)
	assert.Empty(t, results)
}

func TestGetManyCacheBypass(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bars["A"] = barsFor("A", 2)
	collector := newTestCollector(t, fetcher)
	ctx := context.Background()

	results := collector.GetMany(ctx, []string{"A"}, "1m", "1d", false)
	require.Len(t, results["A"], 2)

	results = collector.GetMany(ctx, []string{"A"}, "1m", "1d", false)
	require.Len(t, results["A"], 2)
	assert.Equal(t, 2, fetcher.callCount("A"), "bypassing the cache must hit the provider every time")

	stats, err := collector.CacheStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRecords, "bypassed batch fetches must not write to the cache")
}

func TestClearCache(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bars["TEST"] = barsFor("TEST", 3)
	collector := newTestCollector(t, fetcher)
	ctx := context.Background()

	_, err := collector.Get(ctx, "TEST", "1m", "1d", true, time.Hour)
	require.NoError(t, err)

	// A negative cutoff clears rows regardless of age.
	removed, err := collector.ClearCache(ctx, "", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	stats, err := collector.CacheStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRecords)
}

// failingStore wraps a BarStore and fails writes, to verify best-effort
// caching semantics.
type failingStore struct {
	BarStore
}

func (f *failingStore) Upsert(context.Context, []models.Bar) error {
	return errors.New("disk full")
}

func TestGetReturnsDataWhenCachingFails(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bars["TEST"] = barsFor("TEST", 3)

	db, err := database.Open(filepath.Join(t.TempDir(), "stock_data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store := &failingStore{BarStore: cache.NewStore(db, logger)}
	collector := NewCollector(store, fetcher, ratelimit.New(time.Millisecond), testCollectorConfig(), logger)

	bars, err := collector.Get(context.Background(), "TEST", "1m", "1d", true, time.Hour)
	require.NoError(t, err, "a cache write failure must not fail the request")
	assert.Len(t, bars, 3)
}
