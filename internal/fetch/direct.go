package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/FranksOps/rivalscout/internal/bypass"
	"github.com/FranksOps/rivalscout/internal/fingerprint"
	"github.com/FranksOps/rivalscout/pkg/httpclient"
	"github.com/FranksOps/rivalscout/pkg/proxy"
	"github.com/FranksOps/rivalscout/pkg/ratelimit"
	"github.com/FranksOps/rivalscout/pkg/useragent"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// maxBody caps how much of a page the direct tier reads.
const maxBody = 5 << 20

// mainSelectors are tried in order; the first match is treated as the page body.
var mainSelectors = []string{"article", "[role='main']", "main", ".post-content", ".article-content", ".entry-content", "#content", ".content"}

// DirectConfig configures the direct HTTP tier.
type DirectConfig struct {
	Timeout     time.Duration
	Fingerprint fingerprint.Profile
	UAPool      *useragent.Pool
	Limiter     *ratelimit.Limiter
	// Proxies, when non-empty, rotates each fetch through the next healthy proxy.
	Proxies *proxy.Pool
	// RespectRobots enables the robots.txt check.
	RespectRobots bool
	// Transport overrides the fingerprinted transport. Tests use it.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Direct fetches pages itself over a browser-fingerprinted TLS connection and
// converts the HTML to Markdown.
type Direct struct {
	cfg       DirectConfig
	client    *httpclient.Client
	robots    *RobotsAuditor
	sanitizer *bluemonday.Policy
	md        *converter.Converter
	logger    *slog.Logger
}

// NewDirect builds the direct tier. The transport is created once so
// connections are pooled across fetches.
func NewDirect(cfg DirectConfig) (*Direct, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		t, err := fingerprint.Transport(fingerprint.Config{Profile: cfg.Fingerprint, Proxy: proxy.TransportProxy})
		if err != nil {
			return nil, fmt.Errorf("fetch: setup transport: %w", err)
		}
		transport = t
	}

	client := httpclient.New(httpclient.Config{Timeout: cfg.Timeout, Transport: transport})
	d := &Direct{
		cfg:       cfg,
		client:    client,
		sanitizer: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: logger,
	}
	if cfg.RespectRobots {
		d.robots = NewRobotsAuditor(httpclient.New(httpclient.Config{
			Timeout:      cfg.Timeout,
			MaxRedirects: 5,
			Transport:    transport,
		}), logger)
	}
	return d, nil
}

func (d *Direct) Name() string { return "direct" }

func (d *Direct) Fetch(ctx context.Context, targetURL string) Result {
	if err := d.cfg.Limiter.Wait(ctx); err != nil {
		return failure(d.Name(), fmt.Errorf("direct: rate limiter: %w", err))
	}

	exit := d.cfg.Proxies.Next()
	ctx = proxy.WithProxy(ctx, exit)

	ua := d.cfg.UAPool.Next()
	if d.robots != nil {
		allowed, err := d.robots.IsAllowed(ctx, targetURL, ua)
		if err != nil {
			return failure(d.Name(), fmt.Errorf("direct: %w", err))
		}
		if !allowed {
			return failure(d.Name(), ErrDisallowed)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return failure(d.Name(), fmt.Errorf("direct: build request: %w", err))
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	start := time.Now()
	resp, err := d.client.Do(ctx, req)
	if exit != nil {
		if rerr := d.cfg.Proxies.Report(exit, err); rerr != nil {
			d.logger.Warn("proxy report failed", "proxy", exit.Redacted(), "error", rerr)
		}
	}
	if err != nil {
		return failure(d.Name(), fmt.Errorf("direct: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return failure(d.Name(), fmt.Errorf("direct: read body: %w", err))
	}
	d.logger.Debug("direct fetch", "url", targetURL, "status", resp.StatusCode, "bytes", len(body), "duration", time.Since(start))

	if det := bypass.Analyze(&bypass.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, bypass.DefaultDetectors()); det.Detected {
		return failure(d.Name(), fmt.Errorf("direct: challenged by %s: %w", det.Source, ErrChallenge))
	}
	if resp.StatusCode >= 400 {
		return failure(d.Name(), fmt.Errorf("direct: unexpected status %d", resp.StatusCode))
	}

	meta := map[string]string{
		"sourceURL":  resp.Request.URL.String(),
		"statusCode": fmt.Sprint(resp.StatusCode),
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "" && mediaType != "text/html" && mediaType != "application/xhtml+xml" {
		// Plain text and Markdown pass through unchanged.
		return Result{Success: true, Content: string(body), Metadata: meta}
	}

	content, err := d.toMarkdown(string(body), resp.Request.URL.String(), meta)
	if err != nil {
		return failure(d.Name(), fmt.Errorf("direct: %w", err))
	}
	return Result{Success: true, Content: content, Metadata: meta}
}

// toMarkdown extracts title and description into meta and converts the main
// content to Markdown.
func (d *Direct) toMarkdown(page, pageURL string, meta map[string]string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta["title"] = title
	} else if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		meta["title"] = strings.TrimSpace(og)
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && desc != "" {
		meta["description"] = strings.TrimSpace(desc)
	}

	doc.Find("script, style, noscript, nav, footer, header, aside, iframe, .sidebar, .advertisement, .ads").Remove()

	root := doc.Find("body")
	for _, sel := range mainSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			root = s
			break
		}
	}
	inner, err := goquery.OuterHtml(root)
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	clean := d.sanitizer.Sanitize(inner)
	out, err := d.md.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}
