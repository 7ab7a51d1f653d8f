package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/FranksOps/rivalscout/pkg/httpclient"
)

// FirecrawlEndpoint is the Firecrawl scrape API.
const FirecrawlEndpoint = "https://api.firecrawl.dev/v1/scrape"

// Firecrawl is the rich-extraction tier. It returns main-content Markdown
// and page metadata.
type Firecrawl struct {
	apiKey   string
	endpoint string
	client   *httpclient.Client
}

// NewFirecrawl builds the Firecrawl tier. An empty endpoint selects the public API.
func NewFirecrawl(apiKey, endpoint string, client *httpclient.Client) *Firecrawl {
	if endpoint == "" {
		endpoint = FirecrawlEndpoint
	}
	if client == nil {
		client = httpclient.New(httpclient.Config{})
	}
	return &Firecrawl{apiKey: apiKey, endpoint: endpoint, client: client}
}

func (f *Firecrawl) Name() string { return "firecrawl" }

type firecrawlRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string         `json:"markdown"`
		Metadata map[string]any `json:"metadata"`
	} `json:"data"`
}

func (f *Firecrawl) Fetch(ctx context.Context, url string) Result {
	if f.apiKey == "" {
		return failure(f.Name(), ErrNoCredentials)
	}

	var resp firecrawlResponse
	err := f.client.PostJSON(ctx, f.endpoint,
		map[string]string{"Authorization": "Bearer " + f.apiKey},
		firecrawlRequest{URL: url, Formats: []string{"markdown"}, OnlyMainContent: true},
		&resp)
	if err != nil {
		return failure(f.Name(), fmt.Errorf("firecrawl: %w", err))
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unsuccessful scrape"
		}
		return failure(f.Name(), errors.New("firecrawl: "+msg))
	}

	meta := make(map[string]string, len(resp.Data.Metadata))
	for k, v := range resp.Data.Metadata {
		if v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			meta[k] = val
		default:
			meta[k] = fmt.Sprint(val)
		}
	}

	return Result{Success: true, Content: resp.Data.Markdown, Metadata: meta}
}
