package serp

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/FranksOps/rivalscout/pkg/httpclient"
	"github.com/FranksOps/rivalscout/pkg/ratelimit"
)

const (
	// GoogleEndpoint is the Custom Search JSON API.
	GoogleEndpoint = "https://www.googleapis.com/customsearch/v1"

	googlePageSize = 10
	// The API refuses start offsets beyond the first 100 results.
	googleMaxStart = 91
)

// GoogleConfig configures the Google Custom Search adapter.
type GoogleConfig struct {
	APIKey   string
	EngineID string
	Endpoint string
	Client   *httpclient.Client
	// PageDelay spaces consecutive page requests. Zero disables the delay.
	PageDelay time.Duration
}

// Google pages through the Custom Search API until count results are
// collected or the backend runs out.
type Google struct {
	apiKey    string
	engineID  string
	endpoint  string
	client    *httpclient.Client
	pageDelay time.Duration
}

// NewGoogle builds a Google Custom Search adapter.
func NewGoogle(cfg GoogleConfig) *Google {
	if cfg.Endpoint == "" {
		cfg.Endpoint = GoogleEndpoint
	}
	if cfg.Client == nil {
		cfg.Client = httpclient.New(httpclient.Config{})
	}
	return &Google{
		apiKey:    cfg.APIKey,
		engineID:  cfg.EngineID,
		endpoint:  cfg.Endpoint,
		client:    cfg.Client,
		pageDelay: cfg.PageDelay,
	}
}

func (g *Google) Name() string { return "google" }

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (g *Google) Search(ctx context.Context, query string, count int, locale Locale) ([]Result, error) {
	if g.apiKey == "" || g.engineID == "" {
		return nil, ErrNoCredentials
	}

	limiter := ratelimit.Every(g.pageDelay, 0)
	defer limiter.Stop()

	results := make([]Result, 0, count)
	for start := 1; len(results) < count && start <= googleMaxStart; start += googlePageSize {
		if start > 1 {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("google: %w", err)
			}
		}

		num := min(googlePageSize, count-len(results))
		params := url.Values{}
		params.Set("key", g.apiKey)
		params.Set("cx", g.engineID)
		params.Set("q", query)
		params.Set("num", strconv.Itoa(num))
		params.Set("start", strconv.Itoa(start))
		if locale.GL != "" {
			params.Set("gl", locale.GL)
		}
		if locale.HL != "" {
			params.Set("hl", locale.HL)
		}

		var page googleResponse
		if err := g.client.GetJSON(ctx, g.endpoint+"?"+params.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("google: page at %d: %w", start, err)
		}

		for _, item := range page.Items {
			results = append(results, Result{Title: item.Title, URL: item.Link, Snippet: item.Snippet, Source: g.Name()})
		}
		if len(page.Items) < num {
			break
		}
	}

	return truncate(results, count), nil
}
