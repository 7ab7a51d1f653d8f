// Package discovery finds per-competitor data sources through web search.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/rivalscout/internal/serp"
	"github.com/FranksOps/rivalscout/internal/storage"
	"github.com/google/uuid"
)

// Source categories.
const (
	CategoryOfficialSite = "official-site"
	CategoryFeatures     = "features"
	CategoryPricing      = "pricing"
	CategoryReviews      = "reviews"
	CategoryEcommerce    = "ecommerce"
	CategoryBlog         = "blog"
	CategoryOther        = "other"
)

const (
	// SearchCount is how many results are requested per category query.
	SearchCount = 3
	// KeepPerCategory is how many of those results become sources.
	KeepPerCategory = 2
	// DefaultQuality is the quality score given to search-discovered sources.
	DefaultQuality = 0.8
	// StatusActive marks a usable source.
	StatusActive = "active"
)

var priorities = map[string]int{
	CategoryOfficialSite: 1,
	CategoryFeatures:     1,
	CategoryPricing:      1,
	CategoryReviews:      2,
	CategoryEcommerce:    2,
	CategoryBlog:         3,
	CategoryOther:        4,
}

// Priority returns the acquisition priority of a category; lower is earlier.
func Priority(category string) int {
	if p, ok := priorities[category]; ok {
		return p
	}
	return 4
}

type categoryQuery struct {
	category string
	format   string
}

// Only the first query of each category is issued.
var categoryQueries = []categoryQuery{
	{CategoryOfficialSite, "%s 官网"},
	{CategoryFeatures, "%s features"},
	{CategoryPricing, "%s pricing"},
	{CategoryReviews, "%s 评价 site:xiaohongshu.com"},
}

// Searcher is the search capability the discoverer needs. *serp.Coordinator
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, count int) []serp.Result
}

// Discoverer turns a competitor name into candidate data sources.
type Discoverer struct {
	search  Searcher
	sitemap *SitemapProbe
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Discoverer. sitemap may be nil to skip the sitemap probe.
func New(search Searcher, sitemap *SitemapProbe, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{search: search, sitemap: sitemap, logger: logger, now: time.Now}
}

// DiscoverSources searches each category in order and keeps the top results.
// An empty category does not stop the others. The category templates do not
// use topic.
func (d *Discoverer) DiscoverSources(ctx context.Context, competitor, topic string) []storage.DataSource {
	var sources []storage.DataSource
	officialURL := ""

	for _, cq := range categoryQueries {
		if ctx.Err() != nil {
			break
		}
		query := fmt.Sprintf(cq.format, competitor)
		results := d.search.Search(ctx, query, SearchCount)
		if len(results) == 0 {
			d.logger.Debug("no sources for category", "competitor", competitor, "category", cq.category)
			continue
		}
		if len(results) > KeepPerCategory {
			results = results[:KeepPerCategory]
		}
		for _, r := range results {
			sources = append(sources, d.newSource(cq.category, r.URL, r.Title, r.Snippet))
		}
		if cq.category == CategoryOfficialSite && officialURL == "" {
			officialURL = results[0].URL
		}
	}

	if d.sitemap != nil && officialURL != "" {
		sources = append(sources, d.fromSitemap(ctx, officialURL, sources)...)
	}

	d.logger.Info("sources discovered", "competitor", competitor, "count", len(sources))
	return sources
}

func (d *Discoverer) fromSitemap(ctx context.Context, site string, existing []storage.DataSource) []storage.DataSource {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s.URL] = true
	}

	var out []storage.DataSource
	for _, hit := range d.sitemap.Probe(ctx, site) {
		if seen[hit.URL] {
			continue
		}
		seen[hit.URL] = true
		out = append(out, d.newSource(hit.Category, hit.URL, "", ""))
	}
	return out
}

func (d *Discoverer) newSource(category, url, title, snippet string) storage.DataSource {
	return storage.DataSource{
		ID:             uuid.NewString(),
		Category:       category,
		URL:            url,
		Title:          title,
		Snippet:        snippet,
		Priority:       Priority(category),
		QualityScore:   DefaultQuality,
		AutoDiscovered: true,
		Status:         StatusActive,
		CreatedAt:      d.now().UTC(),
	}
}
