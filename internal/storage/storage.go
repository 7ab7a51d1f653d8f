package storage

import (
	"context"
	"errors"
	"time"

	"github.com/FranksOps/rivalscout/internal/serp"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("storage: not found")

// TaskStatus tracks a discovery run through its lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// CacheEntry is one cached search response, keyed by the literal query text.
type CacheEntry struct {
	Query     string
	Provider  string
	Results   []serp.Result
	CachedAt  time.Time
	ExpiresAt time.Time
	HitCount  int
}

// Task is the bookkeeping record for a single discovery run.
type Task struct {
	ID               string
	Topic            string
	Market           string
	TargetCount      int
	Depth            string
	Status           TaskStatus
	Progress         int
	CompetitorsFound int
	SourcesFound     int
	Error            string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// Competitor is an accepted, deduplicated candidate.
type Competitor struct {
	ID         string
	TaskID     string
	Name       string
	Confidence float64
	Reason     string
	Status     string
	CreatedAt  time.Time
}

// DataSource is a URL discovered for a competitor. Lower Priority is fetched first.
type DataSource struct {
	ID             string
	CompetitorID   string
	Category       string
	URL            string
	Title          string
	Snippet        string
	Priority       int
	QualityScore   float64
	AutoDiscovered bool
	Status         string
	CreatedAt      time.Time
}

// AcquiredContent records one validated, persisted fetch.
type AcquiredContent struct {
	ID           string
	SourceID     string
	CompetitorID string
	URL          string
	Platform     string
	Provider     string
	Title        string
	Path         string
	Fingerprint  string
	Metadata     map[string]string
	Assets       []string
	FetchedAt    time.Time
}

// CacheStats summarises the search cache.
type CacheStats struct {
	Entries   int
	Live      int
	TotalHits int
}

// Filter narrows acquisition queries.
type Filter struct {
	CompetitorID string
	Fingerprint  string
	Since        *time.Time
	Limit        int
	Offset       int
}

// Backend is the relational store used for cache entries and run records.
type Backend interface {
	GetCacheEntry(ctx context.Context, query string) (*CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry *CacheEntry) error
	IncrementCacheHit(ctx context.Context, query string) error
	CacheStats(ctx context.Context, now time.Time) (CacheStats, error)

	CreateTask(ctx context.Context, task *Task) error
	UpdateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)

	SaveCompetitor(ctx context.Context, c *Competitor) error
	ListCompetitors(ctx context.Context, taskID string) ([]*Competitor, error)
	SaveDataSource(ctx context.Context, ds *DataSource) error
	ListDataSources(ctx context.Context, competitorID string) ([]*DataSource, error)
	SaveAcquisition(ctx context.Context, ac *AcquiredContent) error
	QueryAcquisitions(ctx context.Context, filter Filter) ([]*AcquiredContent, error)

	Close() error
}
