package serp

import (
	"context"
	"fmt"

	"github.com/FranksOps/rivalscout/pkg/httpclient"
)

// SerperEndpoint is the Serper search API.
const SerperEndpoint = "https://google.serper.dev/search"

// SerperConfig configures the Serper adapter.
type SerperConfig struct {
	APIKey   string
	Endpoint string
	Client   *httpclient.Client
}

// Serper queries Google through serper.dev in a single call.
type Serper struct {
	apiKey   string
	endpoint string
	client   *httpclient.Client
}

// NewSerper builds a Serper adapter. An empty key yields an adapter that
// always reports ErrNoCredentials.
func NewSerper(cfg SerperConfig) *Serper {
	if cfg.Endpoint == "" {
		cfg.Endpoint = SerperEndpoint
	}
	if cfg.Client == nil {
		cfg.Client = httpclient.New(httpclient.Config{})
	}
	return &Serper{apiKey: cfg.APIKey, endpoint: cfg.Endpoint, client: cfg.Client}
}

func (s *Serper) Name() string { return "serper" }

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
	GL  string `json:"gl,omitempty"`
	HL  string `json:"hl,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *Serper) Search(ctx context.Context, query string, count int, locale Locale) ([]Result, error) {
	if s.apiKey == "" {
		return nil, ErrNoCredentials
	}

	var resp serperResponse
	err := s.client.PostJSON(ctx, s.endpoint,
		map[string]string{"X-API-KEY": s.apiKey},
		serperRequest{Q: query, Num: count, GL: locale.GL, HL: locale.HL},
		&resp)
	if err != nil {
		return nil, fmt.Errorf("serper: %w", err)
	}

	results := make([]Result, 0, len(resp.Organic))
	for _, item := range resp.Organic {
		results = append(results, Result{Title: item.Title, URL: item.Link, Snippet: item.Snippet, Source: s.Name()})
	}
	return truncate(results, count), nil
}
