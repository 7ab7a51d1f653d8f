package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/rivalscout/internal/fingerprint"
	"github.com/FranksOps/rivalscout/pkg/proxy"
	"github.com/FranksOps/rivalscout/pkg/useragent"
)

func TestFirecrawl_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fc-key" {
			t.Errorf("missing bearer token")
		}
		var body firecrawlRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.URL != "https://example.com/pricing" || len(body.Formats) != 1 || body.Formats[0] != "markdown" {
			t.Errorf("unexpected request %+v", body)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"# Pricing","metadata":{"title":"Pricing","statusCode":200}}}`))
	}))
	defer ts.Close()

	res := NewFirecrawl("fc-key", ts.URL, nil).Fetch(context.Background(), "https://example.com/pricing")
	if !res.Success {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	if res.Content != "# Pricing" || res.Title() != "Pricing" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Metadata["statusCode"] != "200" {
		t.Errorf("expected stringified status code, got %q", res.Metadata["statusCode"])
	}
}

func TestFirecrawl_NoKey(t *testing.T) {
	res := NewFirecrawl("", "", nil).Fetch(context.Background(), "https://example.com")
	if res.Success || !errors.Is(res.Err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %+v", res)
	}
}

func TestFirecrawl_Unsuccessful(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"blocked"}`))
	}))
	defer ts.Close()

	res := NewFirecrawl("k", ts.URL, nil).Fetch(context.Background(), "https://example.com")
	if res.Success || res.Err == nil || !strings.Contains(res.Err.Error(), "blocked") {
		t.Errorf("expected blocked error, got %+v", res)
	}
}

func TestJina_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/markdown" {
			t.Errorf("unexpected Accept %q", r.Header.Get("Accept"))
		}
		if r.Header.Get("User-Agent") != useragent.Desktop {
			t.Errorf("unexpected UA %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("no key configured, got Authorization header")
		}
		if r.URL.Path != "/https://example.com/a" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte("Title: Example\n\nURL Source: https://example.com/a\n\nMarkdown Content:\nhello"))
	}))
	defer ts.Close()

	res := NewJina("", ts.URL, nil).Fetch(context.Background(), "https://example.com/a")
	if !res.Success {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	if res.Title() != "Example" {
		t.Errorf("expected title Example, got %q", res.Title())
	}
}

func TestJina_Status(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer ts.Close()

	res := NewJina("k", ts.URL, nil).Fetch(context.Background(), "https://example.com")
	if res.Success || res.Err == nil {
		t.Errorf("expected failure, got %+v", res)
	}
}

func newDirect(t *testing.T, robots bool) *Direct {
	t.Helper()
	d, err := NewDirect(DirectConfig{
		Timeout:       5 * time.Second,
		Fingerprint:   fingerprint.ProfileGo,
		UAPool:        useragent.NewPool([]string{"TestBrowser/1.0"}),
		RespectRobots: robots,
	})
	if err != nil {
		t.Fatalf("NewDirect: %v", err)
	}
	return d
}

const page = `<html><head><title>Acme Writer</title>
<meta name="description" content="AI writing"></head>
<body><nav>menu</nav><main><h1>Features</h1><p>Acme writes <b>copy</b> for you.</p>
<script>alert(1)</script></main><footer>foot</footer></body></html>`

func TestDirect_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestBrowser/1.0" {
			t.Errorf("expected pooled UA, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer ts.Close()

	res := newDirect(t, false).Fetch(context.Background(), ts.URL)
	if !res.Success {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	if res.Title() != "Acme Writer" || res.Metadata["description"] != "AI writing" {
		t.Errorf("unexpected metadata %v", res.Metadata)
	}
	if !strings.Contains(res.Content, "# Features") || !strings.Contains(res.Content, "**copy**") {
		t.Errorf("expected markdown body, got %q", res.Content)
	}
	for _, unwanted := range []string{"menu", "foot", "alert"} {
		if strings.Contains(res.Content, unwanted) {
			t.Errorf("content should not contain %q: %q", unwanted, res.Content)
		}
	}
}

func TestDirect_PlainTextPassthrough(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown")
		_, _ = w.Write([]byte("# already markdown"))
	}))
	defer ts.Close()

	res := newDirect(t, false).Fetch(context.Background(), ts.URL)
	if !res.Success || res.Content != "# already markdown" {
		t.Errorf("expected passthrough, got %+v", res)
	}
}

func TestDirect_Challenged(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.Header().Set("Cf-Mitigated", "challenge")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html>Just a moment...</html>"))
	}))
	defer ts.Close()

	res := newDirect(t, false).Fetch(context.Background(), ts.URL)
	if res.Success || !errors.Is(res.Err, ErrChallenge) {
		t.Errorf("expected challenge error, got %+v", res)
	}
}

func TestDirect_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	res := newDirect(t, false).Fetch(context.Background(), ts.URL)
	if res.Success || res.Err == nil {
		t.Errorf("expected failure on 404, got %+v", res)
	}
}

func TestDirect_Robots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	d := newDirect(t, true)
	if res := d.Fetch(context.Background(), ts.URL+"/private/x"); !errors.Is(res.Err, ErrDisallowed) {
		t.Errorf("expected ErrDisallowed, got %+v", res)
	}
	if res := d.Fetch(context.Background(), ts.URL+"/pricing"); !res.Success {
		t.Errorf("expected allowed fetch, got %v", res.Err)
	}
}

func TestRobotsAuditor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
User-agent: *
Disallow: /admin/
Allow: /admin/public/

User-agent: BadBot
Disallow: /

Sitemap: https://example.com/sitemap.xml
`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	auditor := NewRobotsAuditor(nil, nil)
	ctx := context.Background()

	tests := []struct {
		path, ua string
		want     bool
	}{
		{"/public-page", "GoodBot", true},
		{"/admin/secret", "GoodBot", false},
		{"/admin/public/x", "GoodBot", true},
		{"/public-page", "BadBot", false},
	}
	for _, tt := range tests {
		got, err := auditor.IsAllowed(ctx, ts.URL+tt.path, tt.ua)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsAllowed(%s, %s) = %v, want %v", tt.path, tt.ua, got, tt.want)
		}
	}

	if sm := auditor.Sitemaps(ctx, ts.URL); len(sm) != 1 || sm[0] != "https://example.com/sitemap.xml" {
		t.Errorf("unexpected sitemaps %v", sm)
	}
}

func TestRobotsAuditor_MissingAllowsAll(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	allowed, err := NewRobotsAuditor(nil, nil).IsAllowed(context.Background(), ts.URL+"/anything", "x")
	if err != nil || !allowed {
		t.Errorf("expected allow on 404, got %v %v", allowed, err)
	}
}

func TestRobotsAuditor_SlowHostDoesNotBlockOthers(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var slowHits atomic.Int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slowHits.Add(1) == 1 {
			close(entered)
		}
		<-release
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /admin\n"))
	}))
	defer fast.Close()

	auditor := NewRobotsAuditor(nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	slowResults := make([]bool, 2)
	for i := range slowResults {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slowResults[i], _ = auditor.IsAllowed(ctx, slow.URL+"/private/x", "bot")
		}()
	}
	<-entered

	done := make(chan bool, 1)
	go func() {
		allowed, _ := auditor.IsAllowed(ctx, fast.URL+"/admin/x", "bot")
		done <- allowed
	}()
	select {
	case allowed := <-done:
		if allowed {
			t.Error("fast host rules not applied")
		}
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("robots check for one host waited on another host's fetch")
	}

	close(release)
	wg.Wait()
	for i, allowed := range slowResults {
		if allowed {
			t.Errorf("caller %d: slow host rules not applied", i)
		}
	}
	if n := slowHits.Load(); n != 1 {
		t.Errorf("expected one robots.txt fetch for the slow host, got %d", n)
	}
}

func TestDirect_RoutesThroughProxyPool(t *testing.T) {
	var seen string
	exit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.String()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer exit.Close()

	pool := proxy.NewPool(proxy.Config{})
	if err := pool.Add(exit.URL); err != nil {
		t.Fatalf("add proxy: %v", err)
	}
	d, err := NewDirect(DirectConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		UAPool:      useragent.NewPool([]string{"TestBrowser/1.0"}),
		Proxies:     pool,
	})
	if err != nil {
		t.Fatalf("NewDirect: %v", err)
	}

	res := d.Fetch(context.Background(), "http://competitor.test/features")
	if !res.Success {
		t.Fatalf("fetch through proxy failed: %v", res.Err)
	}
	if seen != "http://competitor.test/features" {
		t.Errorf("proxy saw %q, want absolute target URL", seen)
	}
}
