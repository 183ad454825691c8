package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kabu-tools/stockdata/internal/config"
	"github.com/kabu-tools/stockdata/internal/models"
	"github.com/kabu-tools/stockdata/internal/ratelimit"
	"github.com/kabu-tools/stockdata/internal/upstream"
)

// Fetcher retrieves raw bars for one symbol from the upstream provider.
type Fetcher interface {
	Fetch(ctx context.Context, symbol, interval, period string) ([]models.Bar, error)
}

// BarStore is the persistence surface the collector depends on.
type BarStore interface {
	Upsert(ctx context.Context, bars []models.Bar) error
	Load(ctx context.Context, symbol, interval string, start, end *time.Time) ([]models.Bar, error)
	IsFresh(ctx context.Context, symbol, interval string, ttl time.Duration) (bool, error)
	Purge(ctx context.Context, symbol string, olderThan time.Duration) (int64, error)
	Stats(ctx context.Context) (models.CacheStats, error)
}

// Collector is the market data facade. Each request is served from the
// cache when fresh, otherwise fetched from the provider through the shared
// rate limiter, persisted, and returned.
type Collector struct {
	store      BarStore
	fetcher    Fetcher
	limiter    *ratelimit.Limiter
	retry      upstream.RetryPolicy
	maxWorkers int
	defaultTTL time.Duration
	log        *logrus.Logger
}

func NewCollector(store BarStore, fetcher Fetcher, limiter *ratelimit.Limiter, cfg config.CollectorConfig, log *logrus.Logger) *Collector {
	return &Collector{
		store:   store,
		fetcher: fetcher,
		limiter: limiter,
		retry: upstream.RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			MinWait:     cfg.RetryMinWait,
			MaxWait:     cfg.RetryMaxWait,
		},
		maxWorkers: cfg.MaxWorkers,
		defaultTTL: cfg.CacheTTL(),
		log:        log,
	}
}

// DefaultTTL returns the configured cache expiry for callers that do not
// supply their own.
func (c *Collector) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get returns bars for one symbol. With useCache and a fresh cache entry
// the provider is never contacted. On a miss or stale entry the fetch goes
// through the rate limiter and retry policy; fetched rows are cached
// best-effort before being returned. A provider "no data" result returns
// an empty slice, an exhausted-retry failure returns an error.
func (c *Collector) Get(ctx context.Context, symbol, interval, period string, useCache bool, ttl time.Duration) ([]models.Bar, error) {
	if useCache {
		fresh, err := c.store.IsFresh(ctx, symbol, interval, ttl)
		if err != nil {
			// Read failures degrade to a cache miss.
			c.log.WithError(err).WithField("symbol", symbol).Warn("Freshness check failed, treating as miss")
		} else if fresh {
			bars, err := c.store.Load(ctx, symbol, interval, nil, nil)
			if err != nil {
				c.log.WithError(err).WithField("symbol", symbol).Warn("Cache read failed, falling through to provider")
			} else if len(bars) > 0 {
				c.log.WithField("symbol", symbol).Debug("Serving bars from cache")
				return bars, nil
			}
		}
	}

	bars, err := c.retry.Do(ctx, func() ([]models.Bar, error) {
		c.limiter.Acquire()
		return c.fetcher.Fetch(ctx, symbol, interval, period)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch failed for %s: %w", symbol, err)
	}

	if len(bars) == 0 {
		c.log.WithField("symbol", symbol).Warn("Provider returned no data")
		return nil, nil
	}

	if useCache {
		if err := c.store.Upsert(ctx, bars); err != nil {
			// Best-effort cache: the fetched data is still good.
			c.log.WithError(err).WithField("symbol", symbol).Error("Failed to cache fetched bars")
		}
	}

	return bars, nil
}

// GetMany fetches bars for all symbols through a bounded worker pool, each
// symbol taking the full Get path with the given cache preference. A
// symbol whose fetch fails is logged and left out of the result map; it
// never aborts the others.
func (c *Collector) GetMany(ctx context.Context, symbols []string, interval, period string, useCache bool) map[string][]models.Bar {
	results := make(map[string][]models.Bar, len(symbols))
	if len(symbols) == 0 {
		return results
	}

	jobs := make(chan string, len(symbols))
	for _, s := range symbols {
		jobs <- s
	}
	close(jobs)

	workers := c.maxWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(symbols) {
		workers = len(symbols)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				bars, err := c.Get(ctx, symbol, interval, period, useCache, c.defaultTTL)
				if err != nil {
					c.log.WithError(err).WithField("symbol", symbol).Error("Batch fetch failed")
					continue
				}
				if len(bars) == 0 {
					c.log.WithField("symbol", symbol).Warn("Batch fetch returned no data")
					continue
				}
				mu.Lock()
				results[symbol] = bars
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	c.log.WithFields(logrus.Fields{
		"fetched":   len(results),
		"requested": len(symbols),
	}).Info("Batch fetch complete")

	return results
}

// ClearCache removes cached rows older than the cutoff, optionally scoped
// to one symbol.
func (c *Collector) ClearCache(ctx context.Context, symbol string, olderThan time.Duration) (int64, error) {
	return c.store.Purge(ctx, symbol, olderThan)
}

// CacheStats exposes the aggregate cache view for maintenance tooling.
func (c *Collector) CacheStats(ctx context.Context) (models.CacheStats, error) {
	return c.store.Stats(ctx)
}
