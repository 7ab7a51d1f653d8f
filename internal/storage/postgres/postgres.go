package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/rivalscout/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS search_cache (
	query TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	results JSONB NOT NULL,
	cached_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	hit_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS search_cache_expires_idx ON search_cache (expires_at);
CREATE TABLE IF NOT EXISTS discovery_tasks (
	id TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	market TEXT NOT NULL DEFAULT '',
	target_count INTEGER NOT NULL,
	depth TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL,
	competitors_found INTEGER NOT NULL,
	sources_found INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS competitors (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	name TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS data_sources (
	id TEXT PRIMARY KEY,
	competitor_id TEXT NOT NULL,
	category TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	snippet TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL,
	quality_score DOUBLE PRECISION NOT NULL,
	auto_discovered BOOLEAN NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	seq BIGSERIAL
);
CREATE TABLE IF NOT EXISTS acquisitions (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL DEFAULT '',
	competitor_id TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	platform TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	metadata JSONB NOT NULL,
	assets JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS acquisitions_fingerprint_idx ON acquisitions (fingerprint);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) GetCacheEntry(ctx context.Context, query string) (*storage.CacheEntry, error) {
	var e storage.CacheEntry
	var resultsJSON []byte
	err := b.pool.QueryRow(ctx,
		`SELECT query, provider, results, cached_at, expires_at, hit_count FROM search_cache WHERE query = $1`, query,
	).Scan(&e.Query, &e.Provider, &resultsJSON, &e.CachedAt, &e.ExpiresAt, &e.HitCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get cache entry: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &e.Results); err != nil {
		return nil, fmt.Errorf("postgres: decode cached results: %w", err)
	}
	return &e, nil
}

func (b *postgresBackend) PutCacheEntry(ctx context.Context, e *storage.CacheEntry) error {
	resultsJSON, err := json.Marshal(e.Results)
	if err != nil {
		return fmt.Errorf("postgres: encode cached results: %w", err)
	}

	_, err = b.pool.Exec(ctx, `
	INSERT INTO search_cache (query, provider, results, cached_at, expires_at, hit_count)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (query) DO UPDATE SET
		provider = EXCLUDED.provider,
		results = EXCLUDED.results,
		cached_at = EXCLUDED.cached_at,
		expires_at = EXCLUDED.expires_at
	`, e.Query, e.Provider, resultsJSON, e.CachedAt, e.ExpiresAt, e.HitCount)
	if err != nil {
		return fmt.Errorf("postgres: put cache entry: %w", err)
	}
	return nil
}

func (b *postgresBackend) IncrementCacheHit(ctx context.Context, query string) error {
	tag, err := b.pool.Exec(ctx, `UPDATE search_cache SET hit_count = hit_count + 1 WHERE query = $1`, query)
	if err != nil {
		return fmt.Errorf("postgres: increment hit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (b *postgresBackend) CacheStats(ctx context.Context, now time.Time) (storage.CacheStats, error) {
	var stats storage.CacheStats
	err := b.pool.QueryRow(ctx, `
	SELECT count(*), count(*) FILTER (WHERE expires_at > $1), COALESCE(sum(hit_count), 0)
	FROM search_cache`, now).Scan(&stats.Entries, &stats.Live, &stats.TotalHits)
	if err != nil {
		return stats, fmt.Errorf("postgres: cache stats: %w", err)
	}
	return stats, nil
}

func (b *postgresBackend) CreateTask(ctx context.Context, t *storage.Task) error {
	_, err := b.pool.Exec(ctx, `
	INSERT INTO discovery_tasks (
		id, topic, market, target_count, depth, status, progress, competitors_found, sources_found, error, created_at, completed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, t.ID, t.Topic, t.Market, t.TargetCount, t.Depth, string(t.Status), t.Progress,
		t.CompetitorsFound, t.SourcesFound, t.Error, t.CreatedAt, t.CompletedAt)
	if err != nil {
		return fmt.Errorf("postgres: create task: %w", err)
	}
	return nil
}

func (b *postgresBackend) UpdateTask(ctx context.Context, t *storage.Task) error {
	tag, err := b.pool.Exec(ctx, `
	UPDATE discovery_tasks SET
		status = $1, progress = $2, competitors_found = $3, sources_found = $4, error = $5, completed_at = $6
	WHERE id = $7
	`, string(t.Status), t.Progress, t.CompetitorsFound, t.SourcesFound, t.Error, t.CompletedAt, t.ID)
	if err != nil {
		return fmt.Errorf("postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (b *postgresBackend) GetTask(ctx context.Context, id string) (*storage.Task, error) {
	var t storage.Task
	var status string
	err := b.pool.QueryRow(ctx, `
	SELECT id, topic, market, target_count, depth, status, progress, competitors_found, sources_found, error, created_at, completed_at
	FROM discovery_tasks WHERE id = $1`, id,
	).Scan(&t.ID, &t.Topic, &t.Market, &t.TargetCount, &t.Depth, &status, &t.Progress,
		&t.CompetitorsFound, &t.SourcesFound, &t.Error, &t.CreatedAt, &t.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get task: %w", err)
	}
	t.Status = storage.TaskStatus(status)
	return &t, nil
}

func (b *postgresBackend) SaveCompetitor(ctx context.Context, c *storage.Competitor) error {
	_, err := b.pool.Exec(ctx, `
	INSERT INTO competitors (id, task_id, name, confidence, reason, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.TaskID, c.Name, c.Confidence, c.Reason, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save competitor: %w", err)
	}
	return nil
}

func (b *postgresBackend) ListCompetitors(ctx context.Context, taskID string) ([]*storage.Competitor, error) {
	rows, err := b.pool.Query(ctx, `
	SELECT id, task_id, name, confidence, reason, status, created_at
	FROM competitors WHERE task_id = $1 ORDER BY confidence DESC, created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list competitors: %w", err)
	}
	defer rows.Close()

	var out []*storage.Competitor
	for rows.Next() {
		var c storage.Competitor
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Name, &c.Confidence, &c.Reason, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: list competitors: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list competitors: %w", err)
	}
	return out, nil
}

func (b *postgresBackend) SaveDataSource(ctx context.Context, ds *storage.DataSource) error {
	_, err := b.pool.Exec(ctx, `
	INSERT INTO data_sources (
		id, competitor_id, category, url, title, snippet, priority, quality_score, auto_discovered, status, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, ds.ID, ds.CompetitorID, ds.Category, ds.URL, ds.Title, ds.Snippet, ds.Priority,
		ds.QualityScore, ds.AutoDiscovered, ds.Status, ds.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save data source: %w", err)
	}
	return nil
}

func (b *postgresBackend) ListDataSources(ctx context.Context, competitorID string) ([]*storage.DataSource, error) {
	rows, err := b.pool.Query(ctx, `
	SELECT id, competitor_id, category, url, title, snippet, priority, quality_score, auto_discovered, status, created_at
	FROM data_sources WHERE competitor_id = $1 ORDER BY priority ASC, seq ASC`, competitorID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list data sources: %w", err)
	}
	defer rows.Close()

	var out []*storage.DataSource
	for rows.Next() {
		var ds storage.DataSource
		err := rows.Scan(&ds.ID, &ds.CompetitorID, &ds.Category, &ds.URL, &ds.Title, &ds.Snippet,
			&ds.Priority, &ds.QualityScore, &ds.AutoDiscovered, &ds.Status, &ds.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: list data sources: %w", err)
		}
		out = append(out, &ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list data sources: %w", err)
	}
	return out, nil
}

func (b *postgresBackend) SaveAcquisition(ctx context.Context, ac *storage.AcquiredContent) error {
	metaJSON, err := json.Marshal(ac.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: encode metadata: %w", err)
	}
	assetsJSON, err := json.Marshal(ac.Assets)
	if err != nil {
		return fmt.Errorf("postgres: encode assets: %w", err)
	}

	_, err = b.pool.Exec(ctx, `
	INSERT INTO acquisitions (
		id, source_id, competitor_id, url, platform, provider, title, path, fingerprint, metadata, assets, fetched_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, ac.ID, ac.SourceID, ac.CompetitorID, ac.URL, ac.Platform, ac.Provider, ac.Title, ac.Path,
		ac.Fingerprint, metaJSON, assetsJSON, ac.FetchedAt)
	if err != nil {
		return fmt.Errorf("postgres: save acquisition: %w", err)
	}
	return nil
}

func (b *postgresBackend) QueryAcquisitions(ctx context.Context, filter storage.Filter) ([]*storage.AcquiredContent, error) {
	query := `SELECT id, source_id, competitor_id, url, platform, provider, title, path, fingerprint, metadata, assets, fetched_at FROM acquisitions WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.CompetitorID != "" {
		query += fmt.Sprintf(` AND competitor_id = $%d`, paramCount)
		args = append(args, filter.CompetitorID)
		paramCount++
	}
	if filter.Fingerprint != "" {
		query += fmt.Sprintf(` AND fingerprint = $%d`, paramCount)
		args = append(args, filter.Fingerprint)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND fetched_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY fetched_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query acquisitions: %w", err)
	}
	defer rows.Close()

	var results []*storage.AcquiredContent
	for rows.Next() {
		var ac storage.AcquiredContent
		var metaJSON, assetsJSON []byte

		err := rows.Scan(&ac.ID, &ac.SourceID, &ac.CompetitorID, &ac.URL, &ac.Platform, &ac.Provider,
			&ac.Title, &ac.Path, &ac.Fingerprint, &metaJSON, &assetsJSON, &ac.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: query acquisitions: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &ac.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: decode metadata: %w", err)
		}
		if err := json.Unmarshal(assetsJSON, &ac.Assets); err != nil {
			return nil, fmt.Errorf("postgres: decode assets: %w", err)
		}
		results = append(results, &ac)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query acquisitions: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
