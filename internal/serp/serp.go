package serp

import (
	"context"
	"errors"
)

// ErrNoCredentials is returned by adapters that are not configured.
var ErrNoCredentials = errors.New("serp: provider credentials not configured")

// Result is one normalised organic search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Locale selects the market and interface language of a search.
type Locale struct {
	GL string
	HL string
}

// DefaultLocale targets the mainland China market.
var DefaultLocale = Locale{GL: "cn", HL: "zh-cn"}

// Provider executes a single query against one search backend. Implementations
// return at most count results. Any failure, including missing credentials,
// is reported as an error; callers treat errors as an empty result set.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, count int, locale Locale) ([]Result, error)
}

// Cache is the result store consulted before any provider is called.
type Cache interface {
	Get(ctx context.Context, query string) ([]Result, bool)
	Put(ctx context.Context, query string, results []Result, provider string)
}

func truncate(results []Result, n int) []Result {
	if n >= 0 && len(results) > n {
		return results[:n]
	}
	return results
}
