// Package cache stores search results keyed by the literal query text.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/FranksOps/rivalscout/internal/metrics"
	"github.com/FranksOps/rivalscout/internal/serp"
	"github.com/FranksOps/rivalscout/internal/storage"
)

// DefaultTTL is how long a cached result set stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// ensure Cache satisfies the coordinator's contract
var _ serp.Cache = (*Cache)(nil)

// Cache is a best-effort result cache on top of a storage.Backend. Every
// store failure is logged and treated as a miss, so callers proceed uncached.
type Cache struct {
	store  storage.Backend
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Cache. A nil store yields a cache that never hits.
func New(store storage.Backend, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, now: time.Now, logger: logger}
}

// Get returns the results of a non-expired entry and bumps its hit count.
func (c *Cache) Get(ctx context.Context, query string) ([]serp.Result, bool) {
	if c.store == nil {
		return nil, false
	}

	entry, err := c.store.GetCacheEntry(ctx, query)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("cache lookup failed", "query", query, "error", err)
		}
		metrics.RecordCacheLookup(false)
		return nil, false
	}
	if !entry.ExpiresAt.After(c.now()) {
		metrics.RecordCacheLookup(false)
		return nil, false
	}

	if err := c.store.IncrementCacheHit(ctx, query); err != nil {
		c.logger.Warn("cache hit count update failed", "query", query, "error", err)
	}
	metrics.RecordCacheLookup(true)
	c.logger.Debug("cache hit", "query", query, "provider", entry.Provider, "hits", entry.HitCount+1)
	return entry.Results, true
}

// Put inserts or overwrites the entry for query.
func (c *Cache) Put(ctx context.Context, query string, results []serp.Result, provider string) {
	if c.store == nil {
		return
	}

	now := c.now()
	entry := &storage.CacheEntry{
		Query:     query,
		Provider:  provider,
		Results:   results,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	if err := c.store.PutCacheEntry(ctx, entry); err != nil {
		c.logger.Warn("cache write skipped", "query", query, "error", err)
	}
}
