package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/rivalscout/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS search_cache (
	query TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	results TEXT NOT NULL,
	cached_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL,
	hit_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS discovery_tasks (
	id TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	market TEXT,
	target_count INTEGER NOT NULL,
	depth TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL,
	competitors_found INTEGER NOT NULL,
	sources_found INTEGER NOT NULL,
	error TEXT,
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE TABLE IF NOT EXISTS competitors (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	name TEXT NOT NULL,
	confidence REAL NOT NULL,
	reason TEXT,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS data_sources (
	id TEXT PRIMARY KEY,
	competitor_id TEXT NOT NULL,
	category TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT,
	snippet TEXT,
	priority INTEGER NOT NULL,
	quality_score REAL NOT NULL,
	auto_discovered BOOLEAN NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS acquisitions (
	id TEXT PRIMARY KEY,
	source_id TEXT,
	competitor_id TEXT,
	url TEXT NOT NULL,
	platform TEXT,
	provider TEXT,
	title TEXT,
	path TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	metadata TEXT NOT NULL,
	assets TEXT NOT NULL,
	fetched_at DATETIME NOT NULL
);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Acquisition workers share the handle; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) GetCacheEntry(ctx context.Context, query string) (*storage.CacheEntry, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT query, provider, results, cached_at, expires_at, hit_count FROM search_cache WHERE query = ?`, query)

	var e storage.CacheEntry
	var resultsJSON string
	err := row.Scan(&e.Query, &e.Provider, &resultsJSON, &e.CachedAt, &e.ExpiresAt, &e.HitCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(resultsJSON), &e.Results); err != nil {
		return nil, fmt.Errorf("sqlite: decode cached results: %w", err)
	}
	return &e, nil
}

func (b *sqliteBackend) PutCacheEntry(ctx context.Context, e *storage.CacheEntry) error {
	resultsJSON, err := json.Marshal(e.Results)
	if err != nil {
		return fmt.Errorf("sqlite: encode cached results: %w", err)
	}

	// Overwrites keep the running hit count.
	_, err = b.db.ExecContext(ctx, `
	INSERT INTO search_cache (query, provider, results, cached_at, expires_at, hit_count)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(query) DO UPDATE SET
		provider = excluded.provider,
		results = excluded.results,
		cached_at = excluded.cached_at,
		expires_at = excluded.expires_at
	`, e.Query, e.Provider, string(resultsJSON), e.CachedAt.UTC(), e.ExpiresAt.UTC(), e.HitCount)
	if err != nil {
		return fmt.Errorf("sqlite: put cache entry: %w", err)
	}
	return nil
}

func (b *sqliteBackend) IncrementCacheHit(ctx context.Context, query string) error {
	res, err := b.db.ExecContext(ctx, `UPDATE search_cache SET hit_count = hit_count + 1 WHERE query = ?`, query)
	if err != nil {
		return fmt.Errorf("sqlite: increment hit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (b *sqliteBackend) CacheStats(ctx context.Context, now time.Time) (storage.CacheStats, error) {
	var stats storage.CacheStats

	rows, err := b.db.QueryContext(ctx, `SELECT expires_at, hit_count FROM search_cache`)
	if err != nil {
		return stats, fmt.Errorf("sqlite: cache stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var expires time.Time
		var hits int
		if err := rows.Scan(&expires, &hits); err != nil {
			return stats, fmt.Errorf("sqlite: cache stats: %w", err)
		}
		stats.Entries++
		stats.TotalHits += hits
		if expires.After(now) {
			stats.Live++
		}
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("sqlite: cache stats: %w", err)
	}
	return stats, nil
}

func (b *sqliteBackend) CreateTask(ctx context.Context, t *storage.Task) error {
	_, err := b.db.ExecContext(ctx, `
	INSERT INTO discovery_tasks (
		id, topic, market, target_count, depth, status, progress, competitors_found, sources_found, error, created_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Topic, t.Market, t.TargetCount, t.Depth, string(t.Status), t.Progress,
		t.CompetitorsFound, t.SourcesFound, t.Error, t.CreatedAt.UTC(), nullTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("sqlite: create task: %w", err)
	}
	return nil
}

func (b *sqliteBackend) UpdateTask(ctx context.Context, t *storage.Task) error {
	res, err := b.db.ExecContext(ctx, `
	UPDATE discovery_tasks SET
		status = ?, progress = ?, competitors_found = ?, sources_found = ?, error = ?, completed_at = ?
	WHERE id = ?
	`, string(t.Status), t.Progress, t.CompetitorsFound, t.SourcesFound, t.Error, nullTime(t.CompletedAt), t.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (b *sqliteBackend) GetTask(ctx context.Context, id string) (*storage.Task, error) {
	row := b.db.QueryRowContext(ctx, `
	SELECT id, topic, market, target_count, depth, status, progress, competitors_found, sources_found, error, created_at, completed_at
	FROM discovery_tasks WHERE id = ?`, id)

	var t storage.Task
	var status string
	var completed sql.NullTime
	err := row.Scan(&t.ID, &t.Topic, &t.Market, &t.TargetCount, &t.Depth, &status, &t.Progress,
		&t.CompetitorsFound, &t.SourcesFound, &t.Error, &t.CreatedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get task: %w", err)
	}
	t.Status = storage.TaskStatus(status)
	if completed.Valid {
		ts := completed.Time
		t.CompletedAt = &ts
	}
	return &t, nil
}

func (b *sqliteBackend) SaveCompetitor(ctx context.Context, c *storage.Competitor) error {
	_, err := b.db.ExecContext(ctx, `
	INSERT INTO competitors (id, task_id, name, confidence, reason, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.TaskID, c.Name, c.Confidence, c.Reason, c.Status, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlite: save competitor: %w", err)
	}
	return nil
}

func (b *sqliteBackend) ListCompetitors(ctx context.Context, taskID string) ([]*storage.Competitor, error) {
	rows, err := b.db.QueryContext(ctx, `
	SELECT id, task_id, name, confidence, reason, status, created_at
	FROM competitors WHERE task_id = ? ORDER BY confidence DESC, created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list competitors: %w", err)
	}
	defer rows.Close()

	var out []*storage.Competitor
	for rows.Next() {
		var c storage.Competitor
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Name, &c.Confidence, &c.Reason, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: list competitors: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list competitors: %w", err)
	}
	return out, nil
}

func (b *sqliteBackend) SaveDataSource(ctx context.Context, ds *storage.DataSource) error {
	_, err := b.db.ExecContext(ctx, `
	INSERT INTO data_sources (
		id, competitor_id, category, url, title, snippet, priority, quality_score, auto_discovered, status, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ds.ID, ds.CompetitorID, ds.Category, ds.URL, ds.Title, ds.Snippet, ds.Priority,
		ds.QualityScore, ds.AutoDiscovered, ds.Status, ds.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlite: save data source: %w", err)
	}
	return nil
}

func (b *sqliteBackend) ListDataSources(ctx context.Context, competitorID string) ([]*storage.DataSource, error) {
	rows, err := b.db.QueryContext(ctx, `
	SELECT id, competitor_id, category, url, title, snippet, priority, quality_score, auto_discovered, status, created_at
	FROM data_sources WHERE competitor_id = ? ORDER BY priority ASC, rowid ASC`, competitorID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list data sources: %w", err)
	}
	defer rows.Close()

	var out []*storage.DataSource
	for rows.Next() {
		var ds storage.DataSource
		err := rows.Scan(&ds.ID, &ds.CompetitorID, &ds.Category, &ds.URL, &ds.Title, &ds.Snippet,
			&ds.Priority, &ds.QualityScore, &ds.AutoDiscovered, &ds.Status, &ds.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list data sources: %w", err)
		}
		out = append(out, &ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list data sources: %w", err)
	}
	return out, nil
}

func (b *sqliteBackend) SaveAcquisition(ctx context.Context, ac *storage.AcquiredContent) error {
	metaJSON, err := json.Marshal(ac.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: encode metadata: %w", err)
	}
	assetsJSON, err := json.Marshal(ac.Assets)
	if err != nil {
		return fmt.Errorf("sqlite: encode assets: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
	INSERT INTO acquisitions (
		id, source_id, competitor_id, url, platform, provider, title, path, fingerprint, metadata, assets, fetched_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ac.ID, ac.SourceID, ac.CompetitorID, ac.URL, ac.Platform, ac.Provider, ac.Title, ac.Path,
		ac.Fingerprint, string(metaJSON), string(assetsJSON), ac.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlite: save acquisition: %w", err)
	}
	return nil
}

func (b *sqliteBackend) QueryAcquisitions(ctx context.Context, filter storage.Filter) ([]*storage.AcquiredContent, error) {
	query := `SELECT id, source_id, competitor_id, url, platform, provider, title, path, fingerprint, metadata, assets, fetched_at FROM acquisitions WHERE 1=1`
	args := []any{}

	if filter.CompetitorID != "" {
		query += ` AND competitor_id = ?`
		args = append(args, filter.CompetitorID)
	}
	if filter.Fingerprint != "" {
		query += ` AND fingerprint = ?`
		args = append(args, filter.Fingerprint)
	}
	if filter.Since != nil {
		query += ` AND fetched_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY fetched_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query acquisitions: %w", err)
	}
	defer rows.Close()

	var results []*storage.AcquiredContent
	for rows.Next() {
		var ac storage.AcquiredContent
		var metaJSON, assetsJSON string

		err := rows.Scan(&ac.ID, &ac.SourceID, &ac.CompetitorID, &ac.URL, &ac.Platform, &ac.Provider,
			&ac.Title, &ac.Path, &ac.Fingerprint, &metaJSON, &assetsJSON, &ac.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: query acquisitions: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &ac.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: decode metadata: %w", err)
		}
		if err := json.Unmarshal([]byte(assetsJSON), &ac.Assets); err != nil {
			return nil, fmt.Errorf("sqlite: decode assets: %w", err)
		}
		results = append(results, &ac)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query acquisitions: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
