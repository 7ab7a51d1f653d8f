package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FranksOps/rivalscout/internal/serp"
	"github.com/FranksOps/rivalscout/internal/storage"
	"github.com/FranksOps/rivalscout/internal/storage/sqlite"
)

func newStore(t *testing.T) storage.Backend {
	t.Helper()
	b, err := sqlite.New("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestCache_PutThenGet(t *testing.T) {
	store := newStore(t)
	c := New(store, 0, nil)
	ctx := context.Background()

	want := []serp.Result{
		{Title: "Jasper", URL: "https://jasper.ai", Snippet: "AI copy", Source: "serper"},
		{Title: "Copy.ai", URL: "https://copy.ai", Snippet: "", Source: "serper"},
	}
	c.Put(ctx, "ai writing 竞品", want, "serper")

	for i := 1; i <= 3; i++ {
		got, ok := c.Get(ctx, "ai writing 竞品")
		if !ok {
			t.Fatalf("expected cache hit on get %d", i)
		}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("expected %v, got %v", want, got)
		}

		entry, err := store.GetCacheEntry(ctx, "ai writing 竞品")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry.HitCount != i {
			t.Errorf("expected hit count %d, got %d", i, entry.HitCount)
		}
	}
}

func TestCache_ExpiryIsTTLFromCachedAt(t *testing.T) {
	store := newStore(t)
	c := New(store, 0, nil)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	c.Put(context.Background(), "q", []serp.Result{{URL: "https://a.example"}}, "google")

	entry, err := store.GetCacheEntry(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !entry.ExpiresAt.Equal(entry.CachedAt.Add(DefaultTTL)) {
		t.Errorf("expected expiry %v, got %v", entry.CachedAt.Add(DefaultTTL), entry.ExpiresAt)
	}
	if entry.Provider != "google" {
		t.Errorf("expected provider google, got %s", entry.Provider)
	}
}

func TestCache_ExpiredReadsAsAbsent(t *testing.T) {
	store := newStore(t)
	c := New(store, time.Hour, nil)
	ctx := context.Background()

	c.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	c.Put(ctx, "q", []serp.Result{{URL: "https://a.example"}}, "serper")
	c.now = time.Now

	if got, ok := c.Get(ctx, "q"); ok {
		t.Fatalf("expected miss for expired entry, got %v", got)
	}

	// The stale entry is still stored and is replaced by the next write.
	c.Put(ctx, "q", []serp.Result{{URL: "https://b.example"}}, "google")
	got, ok := c.Get(ctx, "q")
	if !ok || got[0].URL != "https://b.example" {
		t.Errorf("expected refreshed entry, got %v (%v)", got, ok)
	}
}

func TestCache_LiteralKey(t *testing.T) {
	c := New(newStore(t), 0, nil)
	ctx := context.Background()

	c.Put(ctx, "Notion", []serp.Result{{URL: "https://notion.so"}}, "serper")
	if _, ok := c.Get(ctx, "notion"); ok {
		t.Error("keys must not be normalised")
	}
	if _, ok := c.Get(ctx, "Notion "); ok {
		t.Error("keys must not be trimmed")
	}
}

type brokenStore struct{ storage.Backend }

func (brokenStore) GetCacheEntry(context.Context, string) (*storage.CacheEntry, error) {
	return nil, errors.New("disk I/O error")
}

func (brokenStore) PutCacheEntry(context.Context, *storage.CacheEntry) error {
	return errors.New("disk I/O error")
}

func TestCache_StoreUnavailable(t *testing.T) {
	ctx := context.Background()

	for name, c := range map[string]*Cache{
		"nil":    New(nil, 0, nil),
		"broken": New(brokenStore{}, 0, nil),
	} {
		c.Put(ctx, "q", []serp.Result{{URL: "https://a.example"}}, "serper")
		if _, ok := c.Get(ctx, "q"); ok {
			t.Errorf("%s store: expected miss", name)
		}
	}
}
