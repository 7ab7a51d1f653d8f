package persist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/FranksOps/rivalscout/internal/metrics"
	"github.com/FranksOps/rivalscout/pkg/httpclient"
	"github.com/FranksOps/rivalscout/pkg/useragent"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxImages caps image downloads per page.
	DefaultMaxImages = 20
	// DefaultImageConcurrency bounds parallel image downloads per page.
	DefaultImageConcurrency = 4
	// xiaohongshuReferer is required by the xiaohongshu image CDN.
	xiaohongshuReferer = "https://www.xiaohongshu.com/"
	maxImageBytes      = 20 << 20
)

var (
	markdownImage = regexp.MustCompile(`(?i)!\[.*?\]\((https?://[^)]+)\)`)
	bareImage     = regexp.MustCompile(`(?i)(https?://\S+\.(?:jpg|jpeg|png|gif|webp))`)
	// remoteImageRef matches a Markdown image whose target is still remote.
	remoteImageRef = regexp.MustCompile(`(?i)!\[(.*?)\]\(https?://[^)]+\)`)
)

// ImageURLs returns image URLs in content, Markdown references first, then
// bare links, deduplicated in first-seen order.
func ImageURLs(content string) []string {
	seen := map[string]bool{}
	var urls []string
	for _, re := range []*regexp.Regexp{markdownImage, bareImage} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			if u := m[1]; !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// Referer picks the Referer header for an image download.
func Referer(imageURL, pageURL string) string {
	if strings.Contains(imageURL, "xiaohongshu.com") || strings.Contains(imageURL, "xhscdn.com") {
		return xiaohongshuReferer
	}
	return pageURL
}

func extension(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "png"):
		return ".png"
	case strings.Contains(ct, "gif"):
		return ".gif"
	case strings.Contains(ct, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}

// rewriteImages replaces remote Markdown image targets with the local file
// names, one per downloaded image, in order of appearance. Images are matched
// by position rather than URL, so a failed download shifts later references.
func rewriteImages(content string, local []string) string {
	for _, path := range local {
		loc := remoteImageRef.FindStringSubmatchIndex(content)
		if loc == nil {
			break
		}
		alt := content[loc[2]:loc[3]]
		content = content[:loc[0]] + "![" + alt + "](" + filepath.Base(path) + ")" + content[loc[1]:]
	}
	return content
}

type imageDownloader struct {
	client      *httpclient.Client
	limit       int
	concurrency int
	logger      *slog.Logger
}

func newImageDownloader(client *httpclient.Client, limit, concurrency int, logger *slog.Logger) *imageDownloader {
	if client == nil {
		client = httpclient.New(httpclient.Config{Timeout: 10 * time.Second})
	}
	if limit <= 0 {
		limit = DefaultMaxImages
	}
	if concurrency <= 0 {
		concurrency = DefaultImageConcurrency
	}
	return &imageDownloader{client: client, limit: limit, concurrency: concurrency, logger: logger}
}

// download fetches up to limit images into dir and returns the saved paths in
// discovery order. Failures are skipped.
func (d *imageDownloader) download(ctx context.Context, content, dir, pageURL string) []string {
	urls := ImageURLs(content)
	if len(urls) > d.limit {
		urls = urls[:d.limit]
	}
	if len(urls) == 0 {
		return nil
	}

	paths := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			path, err := d.fetchOne(gctx, u, dir, i+1, pageURL)
			metrics.RecordImage(err == nil)
			if err != nil {
				d.logger.Debug("image download failed", "url", u, "err", err)
				return nil
			}
			paths[i] = path
			return nil
		})
	}
	_ = g.Wait()

	var saved []string
	for _, p := range paths {
		if p != "" {
			saved = append(saved, p)
		}
	}
	return saved
}

func (d *imageDownloader) fetchOne(ctx context.Context, imageURL, dir string, index int, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", useragent.Desktop)
	req.Header.Set("Referer", Referer(imageURL, pageURL))

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("img_%02d%s", index, extension(resp.Header.Get("Content-Type"))))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
