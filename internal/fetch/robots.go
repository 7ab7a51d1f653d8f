package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/FranksOps/rivalscout/pkg/httpclient"
	"github.com/temoto/robotstxt"
)

// ErrDisallowed is reported when robots.txt forbids the path.
var ErrDisallowed = errors.New("fetch: disallowed by robots.txt")

// RobotsAuditor fetches and caches robots.txt per host. Each host is fetched
// once; concurrent callers for that host wait on the same fetch while other
// hosts proceed.
type RobotsAuditor struct {
	client *httpclient.Client
	logger *slog.Logger
	mu     sync.Mutex
	cache  map[string]*robotsEntry
}

type robotsEntry struct {
	done chan struct{}
	data *robotstxt.RobotsData
	err  error
}

// NewRobotsAuditor creates an auditor that reads robots.txt through client.
func NewRobotsAuditor(client *httpclient.Client, logger *slog.Logger) *RobotsAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = httpclient.New(httpclient.Config{MaxRedirects: 5})
	}
	return &RobotsAuditor{
		client: client,
		logger: logger,
		cache:  make(map[string]*robotsEntry),
	}
}

// IsAllowed reports whether userAgent may fetch targetURL. An unreachable or
// unparsable robots.txt allows everything.
func (r *RobotsAuditor) IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("fetch: invalid url: %w", err)
	}

	host := u.Scheme + "://" + u.Host
	data, err := r.getOrFetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "err", err)
		return true, nil
	}
	if data == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.FindGroup(userAgent).Test(path), nil
}

// Sitemaps returns the sitemap URLs a host's robots.txt declares.
func (r *RobotsAuditor) Sitemaps(ctx context.Context, host string) []string {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	data, err := r.getOrFetch(ctx, strings.TrimSuffix(host, "/"))
	if err != nil || data == nil {
		return nil
	}
	return data.Sitemaps
}

func (r *RobotsAuditor) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	r.mu.Lock()
	e, ok := r.cache[host]
	if !ok {
		e = &robotsEntry{done: make(chan struct{})}
		r.cache[host] = e
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-e.done:
			return e.data, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.data, e.err = r.load(ctx, host)
	if ctx.Err() != nil {
		// A cancelled fetch says nothing about the host; let the next caller retry.
		r.mu.Lock()
		delete(r.cache, host)
		r.mu.Unlock()
	}
	close(e.done)
	return e.data, e.err
}

// load reads and parses host's robots.txt. A non-2xx status means no rules.
func (r *RobotsAuditor) load(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	body, err := r.client.GetText(ctx, host+"/robots.txt", nil)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch: robots.txt: %w", err)
	}

	parsed, err := robotstxt.FromString(body)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse robots.txt: %w", err)
	}
	return parsed, nil
}
