package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/FranksOps/rivalscout/pkg/httpclient"
	"github.com/FranksOps/rivalscout/pkg/useragent"
)

// JinaEndpoint is the Jina Reader prefix; the target URL is appended verbatim.
const JinaEndpoint = "https://r.jina.ai/"

// Jina is the lightweight reader tier. An API key is optional and only
// raises the rate limit.
type Jina struct {
	apiKey   string
	endpoint string
	client   *httpclient.Client
}

func NewJina(apiKey, endpoint string, client *httpclient.Client) *Jina {
	if endpoint == "" {
		endpoint = JinaEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if client == nil {
		client = httpclient.New(httpclient.Config{})
	}
	return &Jina{apiKey: apiKey, endpoint: endpoint, client: client}
}

func (j *Jina) Name() string { return "jina" }

func (j *Jina) Fetch(ctx context.Context, url string) Result {
	headers := map[string]string{
		"Accept":     "text/markdown",
		"User-Agent": useragent.Desktop,
	}
	if j.apiKey != "" {
		headers["Authorization"] = "Bearer " + j.apiKey
	}

	body, err := j.client.GetText(ctx, j.endpoint+url, headers)
	if err != nil {
		return failure(j.Name(), fmt.Errorf("jina: %w", err))
	}

	meta := map[string]string{}
	if title := readerTitle(body); title != "" {
		meta["title"] = title
	}
	return Result{Success: true, Content: body, Metadata: meta}
}

// readerTitle picks the "Title:" header line the reader emits first.
func readerTitle(body string) string {
	for i, line := range strings.SplitN(body, "\n", 6) {
		if i == 5 {
			break
		}
		if t, ok := strings.CutPrefix(line, "Title:"); ok {
			return strings.TrimSpace(t)
		}
	}
	return ""
}
