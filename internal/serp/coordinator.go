package serp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/FranksOps/rivalscout/internal/metrics"
	"github.com/FranksOps/rivalscout/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultBatchDelay spaces queries issued by BatchSearch.
const DefaultBatchDelay = time.Second

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Providers in preference order. The first entry is the preferred provider.
	Providers []Provider
	// Cache is optional; nil disables caching.
	Cache  Cache
	Locale Locale
	// BatchDelay separates query starts in BatchSearch.
	BatchDelay time.Duration
	// BatchConcurrency bounds parallel queries in BatchSearch. Values below 2 run sequentially.
	BatchConcurrency int
	// ProviderConcurrency bounds in-flight calls per provider. Zero means unbounded.
	ProviderConcurrency int64
	Logger              *slog.Logger
}

// Coordinator runs cache-first search with ordered provider fallback.
type Coordinator struct {
	providers   []Provider
	cache       Cache
	locale      Locale
	batchDelay  time.Duration
	concurrency int
	sems        map[string]*semaphore.Weighted
	logger      *slog.Logger
}

// NewCoordinator builds a Coordinator from cfg.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Locale == (Locale{}) {
		cfg.Locale = DefaultLocale
	}
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}

	sems := make(map[string]*semaphore.Weighted, len(cfg.Providers))
	if cfg.ProviderConcurrency > 0 {
		for _, p := range cfg.Providers {
			sems[p.Name()] = semaphore.NewWeighted(cfg.ProviderConcurrency)
		}
	}

	return &Coordinator{
		providers:   append([]Provider(nil), cfg.Providers...),
		cache:       cfg.Cache,
		locale:      cfg.Locale,
		batchDelay:  cfg.BatchDelay,
		concurrency: cfg.BatchConcurrency,
		sems:        sems,
		logger:      logger,
	}
}

// Search returns up to count results for query. A cache hit short-circuits
// all providers; otherwise providers are tried in order and the first
// non-empty answer is cached under that provider's name. Search never fails;
// it returns an empty slice when every provider fails or finds nothing.
func (c *Coordinator) Search(ctx context.Context, query string, count int) []Result {
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, query); ok && len(cached) > 0 {
			c.logger.Debug("search cache hit", "query", query, "results", len(cached))
			return truncate(cached, count)
		}
	}

	for i, p := range c.providers {
		if i > 0 {
			c.logger.Info("falling back to next search provider", "query", query, "provider", p.Name())
		}
		results := c.call(ctx, p, query, count)
		if len(results) == 0 {
			continue
		}
		if c.cache != nil {
			c.cache.Put(ctx, query, results, p.Name())
		}
		return results
	}

	c.logger.Warn("all search providers returned nothing", "query", query)
	return []Result{}
}

func (c *Coordinator) call(ctx context.Context, p Provider, query string, count int) []Result {
	if sem, ok := c.sems[p.Name()]; ok {
		if err := sem.Acquire(ctx, 1); err != nil {
			c.logger.Warn("search provider slot unavailable", "provider", p.Name(), "error", err)
			return nil
		}
		defer sem.Release(1)
	}

	start := time.Now()
	results, err := p.Search(ctx, query, count, c.locale)
	metrics.RecordSearch(p.Name(), len(results), err, time.Since(start))
	if err != nil {
		c.logger.Warn("search provider failed", "provider", p.Name(), "query", query, "error", err)
		return nil
	}
	return truncate(results, count)
}

// BatchSearch runs an independent Search per query. Query starts are spaced
// by the configured batch delay. Every query is present in the returned map,
// with an empty slice if nothing was found or ctx ended first.
func (c *Coordinator) BatchSearch(ctx context.Context, queries []string, count int) map[string][]Result {
	out := make(map[string][]Result, len(queries))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for i, q := range queries {
		if i > 0 {
			if err := ratelimit.Sleep(ctx, c.batchDelay); err != nil {
				break
			}
		}
		c.logger.Info("searching", "query", q)
		g.Go(func() error {
			res := c.Search(ctx, q, count)
			mu.Lock()
			out[q] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, q := range queries {
		if _, ok := out[q]; !ok {
			out[q] = []Result{}
		}
	}
	return out
}
