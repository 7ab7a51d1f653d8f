// Package proxy rotates outbound requests across a list of HTTP or SOCKS
// proxies and benches endpoints that keep failing.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknown is returned when reporting on a proxy the pool does not hold.
var ErrUnknown = errors.New("proxy: not in pool")

type endpoint struct {
	url       *url.URL
	failures  int
	successes int
	benchedTo time.Time
}

func (e *endpoint) benched(now time.Time) bool {
	return now.Before(e.benchedTo)
}

// Pool hands out proxies round-robin. It is safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*endpoint
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config defines settings for the Pool.
type Config struct {
	// MaxFailures is the number of consecutive failures before a proxy is benched.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
}

// NewPool creates an empty pool. Zero values fall back to 3 failures and a
// five minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// LoadFile reads one proxy URL per line. Blank lines and lines starting with
// '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open list: %w", err)
	}
	defer f.Close()

	var raw []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("proxy: read list: %w", err)
	}
	return p.Add(raw...)
}

// Add parses and appends proxy URLs. A missing scheme means http.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*endpoint, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: %q has no host", raw)
		}
		parsed = append(parsed, &endpoint{url: u})
	}

	p.mu.Lock()
	p.endpoints = append(p.endpoints, parsed...)
	p.mu.Unlock()
	return nil
}

// Len reports how many proxies the pool holds, benched or not.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next proxy that is not benched, or nil when the pool is
// empty or every proxy is cooling down. A nil pool returns nil.
func (p *Pool) Next() *url.URL {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.endpoints {
		e := p.endpoints[p.next]
		p.next = (p.next + 1) % len(p.endpoints)
		if e.benched(now) {
			continue
		}
		if !e.benchedTo.IsZero() {
			// back from the bench with a clean slate
			e.benchedTo = time.Time{}
			e.failures = 0
		}
		return e.url
	}
	return nil
}

// Report records the outcome of a request made through u. A nil err counts
// as a success and forgives one earlier failure.
func (p *Pool) Report(u *url.URL, err error) error {
	if p == nil || u == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.lookup(u)
	if e == nil {
		return ErrUnknown
	}
	if err == nil {
		e.successes++
		if e.failures > 0 {
			e.failures--
		}
		return nil
	}
	e.failures++
	if e.failures >= p.maxFailures {
		e.benchedTo = p.now().Add(p.cooldown)
	}
	return nil
}

func (p *Pool) lookup(u *url.URL) *endpoint {
	target := u.String()
	for _, e := range p.endpoints {
		if e.url.String() == target {
			return e
		}
	}
	return nil
}

type ctxKey struct{}

// WithProxy pins the proxy a request built from ctx should use.
func WithProxy(ctx context.Context, u *url.URL) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the proxy pinned by WithProxy, if any.
func FromContext(ctx context.Context) (*url.URL, bool) {
	u, ok := ctx.Value(ctxKey{}).(*url.URL)
	return u, ok
}

// TransportProxy is an http.Transport Proxy func: it uses the proxy pinned on
// the request context and falls back to the environment otherwise.
func TransportProxy(req *http.Request) (*url.URL, error) {
	if u, ok := FromContext(req.Context()); ok {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}
