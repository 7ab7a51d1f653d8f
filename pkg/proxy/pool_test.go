package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_AddAndNext(t *testing.T) {
	pool := NewPool(Config{})

	if err := pool.Add("127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050"); err != nil {
		t.Fatalf("unexpected error adding proxies: %v", err)
	}
	if pool.Len() != 3 {
		t.Fatalf("expected 3 proxies, got %d", pool.Len())
	}

	want := []string{
		"http://127.0.0.1:8080",
		"http://127.0.0.1:8081",
		"socks5://127.0.0.1:9050",
		"http://127.0.0.1:8080",
	}
	for i, w := range want {
		u := pool.Next()
		if u == nil || u.String() != w {
			t.Errorf("call %d: expected %s, got %v", i, w, u)
		}
	}
}

func TestPool_AddRejectsEmptyHost(t *testing.T) {
	pool := NewPool(Config{})
	if err := pool.Add("http://"); err == nil {
		t.Fatal("expected error for proxy without host")
	}
}

func TestPool_Bench(t *testing.T) {
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pool := NewPool(Config{MaxFailures: 2, Cooldown: time.Minute})
	pool.now = func() time.Time { return clock }

	if err := pool.Add("http://a", "http://b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := pool.Next()
	if a.String() != "http://a" {
		t.Fatalf("expected http://a, got %v", a)
	}
	_ = pool.Report(a, errors.New("refused"))
	_ = pool.Report(a, errors.New("refused"))

	for i := 0; i < 2; i++ {
		if u := pool.Next(); u.String() != "http://b" {
			t.Fatalf("expected http://b while a is benched, got %v", u)
		}
	}

	clock = clock.Add(2 * time.Minute)
	if u := pool.Next(); u.String() != "http://a" {
		t.Fatalf("expected http://a after cooldown, got %v", u)
	}
}

func TestPool_SuccessForgivesFailure(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 2, Cooldown: time.Hour})
	_ = pool.Add("http://a")

	a := pool.Next()
	_ = pool.Report(a, errors.New("timeout"))
	_ = pool.Report(a, nil)
	_ = pool.Report(a, errors.New("timeout"))

	if u := pool.Next(); u == nil {
		t.Fatal("one net failure should not bench the proxy")
	}
}

func TestPool_AllBenched(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 1, Cooldown: time.Hour})
	_ = pool.Add("http://a")

	_ = pool.Report(pool.Next(), errors.New("reset"))
	if u := pool.Next(); u != nil {
		t.Errorf("expected nil when every proxy is benched, got %v", u)
	}
}

func TestPool_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := `
# office exits
http://proxy1.com
proxy2.com:80

socks5://proxy3.com:1080
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write proxy file: %v", err)
	}

	pool := NewPool(Config{})
	if err := pool.LoadFile(path); err != nil {
		t.Fatalf("failed to load file: %v", err)
	}

	expected := []string{"http://proxy1.com", "http://proxy2.com:80", "socks5://proxy3.com:1080"}
	for i, e := range expected {
		u := pool.Next()
		if u == nil || u.String() != e {
			t.Errorf("entry %d: expected %s, got %v", i, e, u)
		}
	}
}

func TestPool_ReportUnknown(t *testing.T) {
	pool := NewPool(Config{})
	_ = pool.Add("http://a")

	unknown, _ := url.Parse("http://unknown")
	if err := pool.Report(unknown, nil); !errors.Is(err, ErrUnknown) {
		t.Errorf("expected ErrUnknown, got %v", err)
	}
}

func TestPool_NilAndEmpty(t *testing.T) {
	var nilPool *Pool
	if nilPool.Next() != nil || nilPool.Len() != 0 {
		t.Error("nil pool should hand out nothing")
	}
	if u := NewPool(Config{}).Next(); u != nil {
		t.Errorf("expected nil on empty pool, got %v", u)
	}
}

func TestTransportProxy(t *testing.T) {
	u, _ := url.Parse("http://10.0.0.1:3128")
	req, _ := http.NewRequestWithContext(WithProxy(context.Background(), u), http.MethodGet, "https://example.com", nil)

	got, err := TransportProxy(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.String() != u.String() {
		t.Errorf("expected pinned proxy, got %v", got)
	}

	if _, ok := FromContext(context.Background()); ok {
		t.Error("bare context should carry no proxy")
	}
}
