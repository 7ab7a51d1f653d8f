package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/FranksOps/rivalscout/internal/analyzer"
	"github.com/FranksOps/rivalscout/internal/fetch"
	"github.com/FranksOps/rivalscout/internal/persist"
	"github.com/FranksOps/rivalscout/internal/storage"
)

type mapFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (m *mapFetcher) Fetch(ctx context.Context, url string) fetch.Result {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	m.mu.Unlock()
	body, ok := m.pages[url]
	if !ok {
		return fetch.Result{Err: errors.New("all providers failed")}
	}
	return fetch.Result{Success: true, Content: body, Provider: "jina", Metadata: map[string]string{"title": "T"}}
}

func source(id, url string, priority int) storage.DataSource {
	return storage.DataSource{ID: id, URL: url, Priority: priority}
}

func TestSelectSources(t *testing.T) {
	in := []storage.DataSource{
		source("review", "r", 2),
		source("site", "s", 1),
		source("blog", "b", 3),
		source("pricing", "p", 1),
	}
	got := SelectSources(in, 3)
	var ids []string
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	if strings.Join(ids, ",") != "site,pricing,review" {
		t.Errorf("unexpected selection %v", ids)
	}
	if in[0].ID != "review" {
		t.Error("input must not be reordered")
	}
}

func TestAcquire(t *testing.T) {
	store := newStore(t)
	pages := &mapFetcher{pages: map[string]string{
		"https://jasper.ai":          strings.Repeat("Jasper pricing from $39. ", 20),
		"https://jasper.ai/features": strings.Repeat("Templates and brand voice. ", 20),
	}}
	p := New(Config{
		Store:     store,
		Fetcher:   pages,
		Persister: persist.New(persist.Config{DataDir: t.TempDir()}),
	})

	run := &Run{Competitors: []CompetitorSources{
		{
			Competitor: storage.Competitor{ID: "c1", Name: "Jasper"},
			Sources: []storage.DataSource{
				source("s-blog", "https://blog.example/jasper", 3),
				source("s-site", "https://jasper.ai", 1),
				source("s-rev", "https://www.xiaohongshu.com/explore/1", 2),
				source("s-feat", "https://jasper.ai/features", 1),
			},
		},
		{Competitor: storage.Competitor{ID: "c2", Name: "Empty"}},
	}}

	acqs, err := p.Acquire(context.Background(), run)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(acqs) != 3 {
		t.Fatalf("expected 3 acquisitions (max sources), got %d", len(acqs))
	}
	for _, a := range acqs {
		if a.Source.ID == "s-blog" {
			t.Error("lowest priority source should not be acquired")
		}
	}

	var ok, failed int
	for _, a := range acqs {
		if a.OK() {
			ok++
			if a.Record.CompetitorID != "c1" || a.Record.SourceID != a.Source.ID {
				t.Errorf("record not linked: %+v", a.Record)
			}
			if _, err := os.Stat(a.Record.Path); err != nil {
				t.Errorf("content file missing: %v", err)
			}
			if a.Provider != "jina" {
				t.Errorf("unexpected provider %q", a.Provider)
			}
		} else {
			failed++
			if a.Platform != "xiaohongshu" || !a.RequiresLogin {
				t.Errorf("expected login-walled xiaohongshu failure, got %+v", a)
			}
		}
	}
	if ok != 2 || failed != 1 {
		t.Errorf("expected 2 ok and 1 failed, got %d/%d", ok, failed)
	}

	stored, err := store.QueryAcquisitions(context.Background(), storage.Filter{CompetitorID: "c1"})
	if err != nil || len(stored) != 2 {
		t.Errorf("expected 2 stored acquisitions, got %d (%v)", len(stored), err)
	}
}

func TestAcquire_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}).Acquire(context.Background(), &Run{}); err == nil {
		t.Fatal("expected configuration error")
	}
}

type recordingAnalyzer struct {
	mu      sync.Mutex
	content map[string]string
}

func (r *recordingAnalyzer) Extract(ctx context.Context, content, competitor string) analyzer.Attributes {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content[competitor] = content
	a := analyzer.Empty()
	a.ProductInfo["product_name"] = competitor
	return a
}

func TestAnalyze(t *testing.T) {
	rec := &recordingAnalyzer{content: map[string]string{}}
	p := New(Config{Analyzer: rec})

	jasper := storage.Competitor{ID: "c1", Name: "Jasper", Confidence: 0.9}
	other := storage.Competitor{ID: "c2", Name: "Other", Confidence: 0.5}
	run := &Run{Competitors: []CompetitorSources{{Competitor: jasper}, {Competitor: other}}}
	acqs := []Acquisition{
		{Competitor: jasper, Content: "one", Record: &storage.AcquiredContent{}},
		{Competitor: jasper, Err: errors.New("failed")},
		{Competitor: jasper, Content: "two", Record: &storage.AcquiredContent{}},
	}

	profiles := p.Analyze(context.Background(), run, acqs)
	if len(profiles) != 2 {
		t.Fatalf("expected a profile per competitor, got %d", len(profiles))
	}
	if rec.content["Jasper"] != "one\n\ntwo\n\n" {
		t.Errorf("unexpected joined content %q", rec.content["Jasper"])
	}
	if profiles[0].Sources != 2 || profiles[0].Attributes.ProductInfo["product_name"] != "Jasper" {
		t.Errorf("unexpected profile %+v", profiles[0])
	}
	if _, called := rec.content["Other"]; called {
		t.Error("competitor without content should not be analysed")
	}
	if profiles[1].Attributes.Features == nil {
		t.Error("empty profile sections should be non-nil")
	}
}

func TestAcquire_StoreFailureFailsTheItem(t *testing.T) {
	store := &failingStore{Backend: newStore(t), acquisitionErr: errors.New("disk full")}
	pages := &mapFetcher{pages: map[string]string{
		"https://jasper.ai": strings.Repeat("Jasper drafts copy. ", 15),
	}}
	p := New(Config{
		Store:     store,
		Fetcher:   pages,
		Persister: persist.New(persist.Config{DataDir: t.TempDir()}),
	})
	run := &Run{Competitors: []CompetitorSources{{
		Competitor: storage.Competitor{ID: "c1", Name: "Jasper"},
		Sources:    []storage.DataSource{source("s-site", "https://jasper.ai", 1)},
	}}}

	acqs, err := p.Acquire(context.Background(), run)
	if err != nil {
		t.Fatalf("a store failure is per item, got %v", err)
	}
	if len(acqs) != 1 {
		t.Fatalf("expected 1 acquisition, got %d", len(acqs))
	}
	a := acqs[0]
	if a.OK() {
		t.Fatal("acquisition whose record was not stored must not count as acquired")
	}
	if a.Err == nil || !strings.Contains(a.Err.Error(), "disk full") {
		t.Errorf("expected store error, got %v", a.Err)
	}
}

func TestAcquire_SkipsCompetitorNotStored(t *testing.T) {
	pages := &mapFetcher{pages: map[string]string{
		"https://jasper.ai": strings.Repeat("Jasper drafts copy. ", 15),
	}}
	p := New(Config{
		Store:     newStore(t),
		Fetcher:   pages,
		Persister: persist.New(persist.Config{DataDir: t.TempDir()}),
	})
	run := &Run{Competitors: []CompetitorSources{
		{
			Competitor: storage.Competitor{ID: "c1", Name: "Jasper"},
			Sources:    []storage.DataSource{source("s-site", "https://jasper.ai", 1)},
		},
		{
			Competitor: storage.Competitor{ID: "c2", Name: "Copy.ai"},
			Sources:    []storage.DataSource{source("s-copy", "https://copy.ai", 1)},
			Err:        fmt.Errorf("%w: disk full", errCompetitorNotStored),
		},
	}}

	acqs, err := p.Acquire(context.Background(), run)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(acqs) != 1 || acqs[0].Competitor.ID != "c1" || !acqs[0].OK() {
		t.Fatalf("expected only Jasper acquired, got %+v", acqs)
	}
	for _, u := range pages.calls {
		if u == "https://copy.ai" {
			t.Error("competitor without a stored record should not be fetched")
		}
	}
}
