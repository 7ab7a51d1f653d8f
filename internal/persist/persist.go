// Package persist writes acquired content and its images to the data directory.
package persist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/FranksOps/rivalscout/internal/fetch"
	"github.com/FranksOps/rivalscout/internal/storage"
	"github.com/FranksOps/rivalscout/pkg/httpclient"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	// ContentFile is the Markdown file written in every acquisition directory.
	ContentFile = "content.md"
	// MaxNameLength bounds the competitor part of a directory name, in runes.
	MaxNameLength = 50
	// UntitledTitle is used when the provider reported no title.
	UntitledTitle = "未知标题"
)

var unsafeRunes = regexp.MustCompile(`[^\p{L}\p{N}\p{M}_\s-]`)

// SafeName replaces every rune that is not a word character, whitespace or
// hyphen with '_' and truncates to MaxNameLength runes.
func SafeName(name string) string {
	s := unsafeRunes.ReplaceAllString(name, "_")
	if utf8.RuneCountInString(s) <= MaxNameLength {
		return s
	}
	return string([]rune(s)[:MaxNameLength])
}

// Fingerprint is the hex SHA-256 of content. Identical bytes give identical
// fingerprints.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Config configures a Persister.
type Config struct {
	DataDir string
	// Client downloads images. A default client is used when nil.
	Client *httpclient.Client
	// MaxImages caps downloads per page; zero means DefaultMaxImages.
	MaxImages int
	// ImageConcurrency bounds parallel downloads per page.
	ImageConcurrency int
	Logger           *slog.Logger
}

// Persister stores fetch results on disk.
type Persister struct {
	dataDir string
	images  *imageDownloader
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg Config) *Persister {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		dataDir: cfg.DataDir,
		images:  newImageDownloader(cfg.Client, cfg.MaxImages, cfg.ImageConcurrency, logger),
		logger:  logger,
		now:     time.Now,
	}
}

type frontMatter struct {
	Title      string `yaml:"title"`
	URL        string `yaml:"url"`
	Platform   string `yaml:"platform"`
	Competitor string `yaml:"competitor"`
	CrawlTime  string `yaml:"crawl_time"`
}

// Persist writes res under a fresh directory and downloads referenced images.
// Image failures are logged and skipped; write failures are returned.
func (p *Persister) Persist(ctx context.Context, res fetch.Result, url, competitor, platform string) (*storage.AcquiredContent, error) {
	now := p.now()

	dir, err := p.makeDir(now, competitor)
	if err != nil {
		return nil, err
	}

	title := res.Title()
	if title == "" {
		title = UntitledTitle
	}
	header, err := yaml.Marshal(frontMatter{
		Title:      title,
		URL:        url,
		Platform:   platform,
		Competitor: competitor,
		CrawlTime:  now.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("persist: encode front matter: %w", err)
	}

	assets := p.images.download(ctx, res.Content, dir, url)
	body := res.Content
	if len(assets) > 0 {
		body = rewriteImages(body, assets)
	}

	contentPath := filepath.Join(dir, ContentFile)
	doc := "---\n" + string(header) + "---\n\n" + body
	if err := os.WriteFile(contentPath, []byte(doc), 0o644); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			p.logger.Warn("failed to remove partial acquisition", "dir", dir, "error", rmErr)
		}
		return nil, fmt.Errorf("persist: write content: %w", err)
	}

	meta := make(map[string]string, len(res.Metadata)+1)
	maps.Copy(meta, res.Metadata)
	meta["content_length"] = strconv.Itoa(utf8.RuneCountInString(res.Content))

	p.logger.Info("content saved", "path", contentPath, "images", len(assets))

	return &storage.AcquiredContent{
		ID:          uuid.NewString(),
		URL:         url,
		Platform:    platform,
		Provider:    res.Provider,
		Title:       title,
		Path:        contentPath,
		Fingerprint: Fingerprint(res.Content),
		Metadata:    meta,
		Assets:      assets,
		FetchedAt:   now.UTC(),
	}, nil
}

// makeDir creates <data_dir>/<YYYYMMDD_HHMMSS>_<safe name>, adding _2, _3, ...
// when the directory already exists.
func (p *Persister) makeDir(now time.Time, competitor string) (string, error) {
	if err := os.MkdirAll(p.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("persist: create data dir: %w", err)
	}

	base := filepath.Join(p.dataDir, now.Format("20060102_150405")+"_"+SafeName(competitor))
	dir := base
	for i := 2; ; i++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("persist: create dir: %w", err)
		}
		dir = base + "_" + strconv.Itoa(i)
	}
}
