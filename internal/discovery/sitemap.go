package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/FranksOps/rivalscout/pkg/httpclient"
	"github.com/oxffaa/gopher-parse-sitemap"
)

const (
	// maxPerCategory bounds how many sitemap URLs are added per category.
	maxPerCategory = 2
	// maxIndexDepth bounds recursion through sitemap indexes.
	maxIndexDepth = 2
)

// SitemapHit is a sitemap URL classified into a source category.
type SitemapHit struct {
	Category string
	URL      string
}

// SitemapLister reports the sitemaps a host declares. *fetch.RobotsAuditor
// satisfies it.
type SitemapLister interface {
	Sitemaps(ctx context.Context, host string) []string
}

// SitemapProbe reads an official site's sitemap looking for pricing and
// features pages.
type SitemapProbe struct {
	client *httpclient.Client
	robots SitemapLister
	logger *slog.Logger
}

// NewSitemapProbe creates a probe. robots may be nil, in which case only
// /sitemap.xml is tried.
func NewSitemapProbe(client *httpclient.Client, robots SitemapLister, logger *slog.Logger) *SitemapProbe {
	if client == nil {
		client = httpclient.New(httpclient.Config{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapProbe{client: client, robots: robots, logger: logger}
}

// Probe reads the sitemaps declared in the site's robots.txt, falling back to
// <site root>/sitemap.xml, and returns up to two pricing and two features
// URLs. Any failure yields no hits.
func (s *SitemapProbe) Probe(ctx context.Context, site string) []SitemapHit {
	u, err := url.Parse(site)
	if err != nil || u.Host == "" {
		return nil
	}
	root := u.Scheme + "://" + u.Host

	var urls []string
	for _, loc := range s.locations(ctx, root) {
		got, err := s.Fetch(ctx, loc)
		if err != nil {
			s.logger.Debug("sitemap probe failed", "site", root, "sitemap", loc, "err", err)
			continue
		}
		urls = got
		break
	}
	if len(urls) == 0 {
		return nil
	}

	counts := map[string]int{}
	var hits []SitemapHit
	for _, loc := range urls {
		cat := classify(loc)
		if cat == "" || counts[cat] >= maxPerCategory {
			continue
		}
		counts[cat]++
		hits = append(hits, SitemapHit{Category: cat, URL: loc})
	}
	return hits
}

// locations lists candidate sitemaps for root: robots.txt declarations first,
// then the conventional path.
func (s *SitemapProbe) locations(ctx context.Context, root string) []string {
	fallback := root + "/sitemap.xml"
	var locs []string
	if s.robots != nil {
		for _, loc := range s.robots.Sitemaps(ctx, root) {
			if loc = strings.TrimSpace(loc); loc != "" && loc != fallback {
				locs = append(locs, loc)
			}
		}
	}
	return append(locs, fallback)
}

func classify(loc string) string {
	u, err := url.Parse(loc)
	if err != nil {
		return ""
	}
	path := strings.ToLower(u.Path)
	switch {
	case strings.Contains(path, "pricing"), strings.Contains(path, "price"):
		return CategoryPricing
	case strings.Contains(path, "features"):
		return CategoryFeatures
	}
	return ""
}

// Fetch reads a sitemap or sitemap index and returns every page URL.
func (s *SitemapProbe) Fetch(ctx context.Context, sitemapURL string) ([]string, error) {
	return s.fetch(ctx, sitemapURL, 0)
}

func (s *SitemapProbe) fetch(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	s.logger.Debug("fetching sitemap", "url", sitemapURL)

	body, err := s.client.GetText(ctx, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: fetch sitemap: %w", err)
	}

	var urls []string
	err = sitemap.Parse(strings.NewReader(body), func(e sitemap.Entry) error {
		urls = append(urls, strings.TrimSpace(e.GetLocation()))
		return nil
	})
	if err == nil && len(urls) > 0 {
		return urls, nil
	}

	// Not a urlset; try it as an index.
	var nested []string
	indexErr := sitemap.ParseIndex(strings.NewReader(body), func(e sitemap.IndexEntry) error {
		nested = append(nested, strings.TrimSpace(e.GetLocation()))
		return nil
	})
	if indexErr != nil || len(nested) == 0 {
		return nil, fmt.Errorf("discovery: not a sitemap or index: %s", sitemapURL)
	}
	if depth >= maxIndexDepth {
		return nil, fmt.Errorf("discovery: sitemap index nested too deep: %s", sitemapURL)
	}

	for _, n := range nested {
		sub, err := s.fetch(ctx, n, depth+1)
		if err != nil {
			s.logger.Warn("failed to fetch nested sitemap", "url", n, "err", err)
			continue
		}
		urls = append(urls, sub...)
	}
	return urls, nil
}
