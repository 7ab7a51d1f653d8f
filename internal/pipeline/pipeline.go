// Package pipeline runs competitor discovery and content acquisition.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/rivalscout/internal/analyzer"
	"github.com/FranksOps/rivalscout/internal/dedupe"
	"github.com/FranksOps/rivalscout/internal/extract"
	"github.com/FranksOps/rivalscout/internal/fetch"
	"github.com/FranksOps/rivalscout/internal/planner"
	"github.com/FranksOps/rivalscout/internal/serp"
	"github.com/FranksOps/rivalscout/internal/storage"
	"github.com/google/uuid"
)

const (
	DefaultSearchCount        = 10
	DefaultMaxCandidates      = extract.DefaultMaxCandidates
	DefaultTargetCount        = 3
	DefaultMarket             = "中国"
	DefaultMaxSources         = 3
	DefaultAcquireConcurrency = 3

	progressCompetitors = 50
	progressDone        = 100
)

var errCompetitorNotStored = errors.New("pipeline: competitor not stored")

// Searcher runs the planned queries. *serp.Coordinator satisfies it.
type Searcher interface {
	BatchSearch(ctx context.Context, queries []string, count int) map[string][]serp.Result
}

// CandidateExtractor turns search results into candidate names. *extract.Extractor satisfies it.
type CandidateExtractor interface {
	Extract(ctx context.Context, topic string, results []serp.Result, maxCandidates int) []extract.Candidate
}

// SourceDiscoverer finds data sources for a competitor. *discovery.Discoverer satisfies it.
type SourceDiscoverer interface {
	DiscoverSources(ctx context.Context, competitor, topic string) []storage.DataSource
}

// Fetcher acquires page content. *fetch.Chain satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) fetch.Result
}

// Persister stores validated content. *persist.Persister satisfies it.
type Persister interface {
	Persist(ctx context.Context, res fetch.Result, url, competitor, platform string) (*storage.AcquiredContent, error)
}

// AttributeAnalyzer extracts structured attributes. *analyzer.Analyzer satisfies it.
type AttributeAnalyzer interface {
	Extract(ctx context.Context, content, competitor string) analyzer.Attributes
}

// Config wires the pipeline's collaborators. Store, Search, Extractor and
// Sources are required for Discover; Fetcher and Persister for Acquire.
type Config struct {
	Store     storage.Backend
	Search    Searcher
	Extractor CandidateExtractor
	Merger    *dedupe.Merger
	Sources   SourceDiscoverer
	Fetcher   Fetcher
	Persister Persister
	Analyzer  AttributeAnalyzer

	SearchCount        int
	MaxCandidates      int
	MaxSources         int
	AcquireConcurrency int
	Logger             *slog.Logger
}

// Pipeline holds no per-run state; every run is carried by its Run handle.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg Config) *Pipeline {
	if cfg.SearchCount <= 0 {
		cfg.SearchCount = DefaultSearchCount
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = DefaultMaxSources
	}
	if cfg.AcquireConcurrency <= 0 {
		cfg.AcquireConcurrency = DefaultAcquireConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Merger == nil {
		cfg.Merger = dedupe.NewMerger(dedupe.DefaultThreshold, logger)
	}
	return &Pipeline{cfg: cfg, logger: logger, now: time.Now}
}

// Request describes one discovery run.
type Request struct {
	Topic       string
	Market      string
	TargetCount int
	Depth       planner.Depth
}

// CompetitorSources pairs an accepted competitor with its data sources.
type CompetitorSources struct {
	Competitor storage.Competitor
	Sources    []storage.DataSource
	// Err records a failure to store the competitor or its sources. A
	// competitor whose own record was not stored is skipped by Acquire.
	Err error
}

// Run is the handle for one discovery run, passed explicitly between stages.
type Run struct {
	Task        *storage.Task
	Queries     []string
	Competitors []CompetitorSources
}

func (p *Pipeline) validate() error {
	switch {
	case p.cfg.Store == nil:
		return errors.New("pipeline: store is required")
	case p.cfg.Search == nil:
		return errors.New("pipeline: searcher is required")
	case p.cfg.Extractor == nil:
		return errors.New("pipeline: extractor is required")
	case p.cfg.Sources == nil:
		return errors.New("pipeline: source discoverer is required")
	}
	return nil
}

// Discover plans queries for req.Topic, searches, extracts and merges
// candidates, then discovers data sources per competitor. Only task
// bookkeeping failures and cancellation are fatal; they mark the task failed.
func (p *Pipeline) Discover(ctx context.Context, req Request) (*Run, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if req.TargetCount <= 0 {
		req.TargetCount = DefaultTargetCount
	}
	if req.Market == "" {
		req.Market = DefaultMarket
	}

	task := &storage.Task{
		ID:          uuid.NewString(),
		Topic:       req.Topic,
		Market:      req.Market,
		TargetCount: req.TargetCount,
		Depth:       req.Depth.String(),
		Status:      storage.TaskProcessing,
		CreatedAt:   p.now().UTC(),
	}
	if err := p.cfg.Store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("pipeline: create task: %w", err)
	}
	run := &Run{Task: task}
	log := p.logger.With("task", task.ID, "topic", req.Topic)

	run.Queries = planner.Plan(req.Topic, req.Depth)
	log.Info("discovery started", "depth", req.Depth, "queries", len(run.Queries))

	results := p.cfg.Search.BatchSearch(ctx, run.Queries, p.cfg.SearchCount)

	var candidates []extract.Candidate
	for _, q := range run.Queries {
		if ctx.Err() != nil {
			break
		}
		found := p.cfg.Extractor.Extract(ctx, req.Topic, results[q], p.cfg.MaxCandidates)
		log.Debug("candidates extracted", "query", q, "results", len(results[q]), "candidates", len(found))
		candidates = append(candidates, found...)
	}
	if err := ctx.Err(); err != nil {
		return run, p.fail(ctx, task, err)
	}

	merged := p.cfg.Merger.MergeAndRank(candidates, req.TargetCount)
	log.Info("competitors ranked", "candidates", len(candidates), "competitors", len(merged))

	task.CompetitorsFound = len(merged)
	task.Progress = progressCompetitors
	if err := p.cfg.Store.UpdateTask(ctx, task); err != nil {
		return run, p.fail(ctx, task, fmt.Errorf("update task: %w", err))
	}

	for _, m := range merged {
		comp := storage.Competitor{
			ID:         uuid.NewString(),
			TaskID:     task.ID,
			Name:       m.Name,
			Confidence: m.Confidence,
			Reason:     m.Reason,
			Status:     "active",
			CreatedAt:  p.now().UTC(),
		}
		sources := p.cfg.Sources.DiscoverSources(ctx, m.Name, req.Topic)
		for i := range sources {
			sources[i].CompetitorID = comp.ID
		}
		run.Competitors = append(run.Competitors, CompetitorSources{Competitor: comp, Sources: sources})
		task.SourcesFound += len(sources)
	}
	if err := ctx.Err(); err != nil {
		return run, p.fail(ctx, task, err)
	}

	p.saveRecords(ctx, run)

	completed := p.now().UTC()
	task.Status = storage.TaskCompleted
	task.Progress = progressDone
	task.CompletedAt = &completed
	if err := p.cfg.Store.UpdateTask(ctx, task); err != nil {
		return run, p.fail(ctx, task, fmt.Errorf("update task: %w", err))
	}

	log.Info("discovery completed", "competitors", task.CompetitorsFound, "sources", task.SourcesFound)
	return run, nil
}

// saveRecords stores competitors and sources. A failed write is kept on the
// competitor's entry and never stops its siblings.
func (p *Pipeline) saveRecords(ctx context.Context, run *Run) {
	for i := range run.Competitors {
		cs := &run.Competitors[i]
		comp := cs.Competitor
		if err := p.cfg.Store.SaveCompetitor(ctx, &comp); err != nil {
			cs.Err = fmt.Errorf("%w: %w", errCompetitorNotStored, err)
			p.logger.Error("failed to save competitor", "competitor", comp.Name, "error", err)
			continue
		}
		var errs []error
		for _, src := range cs.Sources {
			if err := p.cfg.Store.SaveDataSource(ctx, &src); err != nil {
				errs = append(errs, fmt.Errorf("pipeline: store data source %s: %w", src.URL, err))
				p.logger.Error("failed to save data source", "competitor", comp.Name, "url", src.URL, "error", err)
			}
		}
		cs.Err = errors.Join(errs...)
	}
}

// fail marks task failed and returns cause wrapped. The update survives
// cancellation of ctx.
func (p *Pipeline) fail(ctx context.Context, task *storage.Task, cause error) error {
	task.Status = storage.TaskFailed
	task.Error = cause.Error()
	completed := p.now().UTC()
	task.CompletedAt = &completed
	if err := p.cfg.Store.UpdateTask(context.WithoutCancel(ctx), task); err != nil {
		p.logger.Error("failed to mark task failed", "task", task.ID, "error", err)
	}
	return fmt.Errorf("pipeline: %w", cause)
}
