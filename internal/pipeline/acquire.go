package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/FranksOps/rivalscout/internal/platform"
	"github.com/FranksOps/rivalscout/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Acquisition is the outcome of acquiring one data source.
type Acquisition struct {
	Competitor    storage.Competitor
	Source        storage.DataSource
	Platform      string
	RequiresLogin bool
	// Provider names the fetch tier that produced the content.
	Provider string
	// Content is the validated body; it is not stored in the database.
	Content string
	Record  *storage.AcquiredContent
	Err     error
}

// OK reports whether the source was fetched and persisted.
func (a Acquisition) OK() bool { return a.Err == nil && a.Record != nil }

// Acquire fetches the highest-priority sources of every competitor in run.
// Competitors are processed in parallel up to the configured bound; a failed
// source never stops its siblings. Results are grouped by competitor in run
// order.
func (p *Pipeline) Acquire(ctx context.Context, run *Run) ([]Acquisition, error) {
	if p.cfg.Fetcher == nil || p.cfg.Persister == nil {
		return nil, errors.New("pipeline: fetcher and persister are required for acquisition")
	}
	if run == nil {
		return nil, errors.New("pipeline: nil run")
	}

	perCompetitor := make([][]Acquisition, len(run.Competitors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.AcquireConcurrency)
	for i, cs := range run.Competitors {
		g.Go(func() error {
			perCompetitor[i] = p.acquireCompetitor(gctx, cs)
			return nil
		})
	}
	_ = g.Wait()

	var out []Acquisition
	for _, acqs := range perCompetitor {
		out = append(out, acqs...)
	}
	return out, ctx.Err()
}

// SelectSources orders sources by priority, keeping discovery order among
// equals, and returns the first limit.
func SelectSources(sources []storage.DataSource, limit int) []storage.DataSource {
	sorted := append([]storage.DataSource(nil), sources...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func (p *Pipeline) acquireCompetitor(ctx context.Context, cs CompetitorSources) []Acquisition {
	name := cs.Competitor.Name
	if errors.Is(cs.Err, errCompetitorNotStored) {
		p.logger.Warn("competitor record missing, skipping", "competitor", name, "error", cs.Err)
		return nil
	}
	sources := SelectSources(cs.Sources, p.cfg.MaxSources)
	if len(sources) == 0 {
		p.logger.Warn("no data sources, skipping", "competitor", name)
		return nil
	}

	out := make([]Acquisition, 0, len(sources))
	for _, src := range sources {
		if ctx.Err() != nil {
			out = append(out, Acquisition{Competitor: cs.Competitor, Source: src, Err: ctx.Err()})
			continue
		}
		out = append(out, p.acquireOne(ctx, cs.Competitor, src))
	}
	return out
}

func (p *Pipeline) acquireOne(ctx context.Context, comp storage.Competitor, src storage.DataSource) Acquisition {
	plat, login := platform.Identify(src.URL)
	acq := Acquisition{Competitor: comp, Source: src, Platform: plat, RequiresLogin: login}
	log := p.logger.With("competitor", comp.Name, "url", src.URL, "platform", plat)
	if login {
		log.Info("platform usually requires login, attempting anyway")
	}

	res := p.cfg.Fetcher.Fetch(ctx, src.URL)
	if !res.Success {
		acq.Err = res.Err
		if acq.Err == nil {
			acq.Err = errors.New("pipeline: fetch failed")
		}
		log.Warn("acquisition failed", "error", acq.Err)
		return acq
	}
	acq.Provider = res.Provider
	acq.Content = res.Content

	rec, err := p.cfg.Persister.Persist(ctx, res, src.URL, comp.Name, plat)
	if err != nil {
		acq.Err = err
		log.Error("failed to persist content", "error", err)
		return acq
	}
	rec.SourceID = src.ID
	rec.CompetitorID = comp.ID
	acq.Record = rec

	if p.cfg.Store != nil {
		if err := p.cfg.Store.SaveAcquisition(ctx, rec); err != nil {
			acq.Err = fmt.Errorf("pipeline: store acquisition: %w", err)
			log.Error("failed to store acquisition record", "error", err)
		}
	}
	return acq
}
