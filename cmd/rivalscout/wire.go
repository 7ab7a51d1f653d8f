package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/FranksOps/rivalscout/internal/analyzer"
	"github.com/FranksOps/rivalscout/internal/cache"
	"github.com/FranksOps/rivalscout/internal/config"
	"github.com/FranksOps/rivalscout/internal/dedupe"
	"github.com/FranksOps/rivalscout/internal/discovery"
	"github.com/FranksOps/rivalscout/internal/extract"
	"github.com/FranksOps/rivalscout/internal/fetch"
	"github.com/FranksOps/rivalscout/internal/fingerprint"
	"github.com/FranksOps/rivalscout/internal/llm"
	"github.com/FranksOps/rivalscout/internal/persist"
	"github.com/FranksOps/rivalscout/internal/pipeline"
	"github.com/FranksOps/rivalscout/internal/serp"
	"github.com/FranksOps/rivalscout/internal/storage"
	"github.com/FranksOps/rivalscout/internal/storage/postgres"
	"github.com/FranksOps/rivalscout/internal/storage/sqlite"
	"github.com/FranksOps/rivalscout/pkg/httpclient"
	"github.com/FranksOps/rivalscout/pkg/proxy"
	"github.com/FranksOps/rivalscout/pkg/ratelimit"
	"github.com/FranksOps/rivalscout/pkg/useragent"
)

// openStore opens the configured backend and makes sure its schema exists.
func openStore(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return postgres.New(ctx, cfg.Storage.DSN)
	default:
		if cfg.Storage.DSN == "" {
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		return sqlite.New(cfg.SQLitePath())
	}
}

// googlePageDelay spaces Custom Search page requests.
const googlePageDelay = 500 * time.Millisecond

// searchProviders returns the configured adapters in preference order:
// Serper, then Google Custom Search, then SerpAPI.
func searchProviders(cfg *config.Config, client *httpclient.Client) []serp.Provider {
	var providers []serp.Provider
	if cfg.Search.SerperAPIKey != "" {
		providers = append(providers, serp.NewSerper(serp.SerperConfig{APIKey: cfg.Search.SerperAPIKey, Client: client}))
	}
	if cfg.Search.GoogleAPIKey != "" && cfg.Search.GoogleEngineID != "" {
		providers = append(providers, serp.NewGoogle(serp.GoogleConfig{
			APIKey:    cfg.Search.GoogleAPIKey,
			EngineID:  cfg.Search.GoogleEngineID,
			Client:    client,
			PageDelay: googlePageDelay,
		}))
	}
	if cfg.Search.SerpAPIKey != "" {
		providers = append(providers, serp.NewSerpAPI(cfg.Search.SerpAPIKey))
	}
	return providers
}

// fetchChain builds firecrawl → jina → direct → browser. Firecrawl is left
// out without a key; the reader tier works anonymously.
func fetchChain(cfg *config.Config, logger *slog.Logger) (*fetch.Chain, func(), error) {
	profile, err := fingerprint.ParseProfile(cfg.Fetch.Fingerprint)
	if err != nil {
		return nil, nil, err
	}

	var proxies *proxy.Pool
	if cfg.Fetch.ProxyFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.LoadFile(cfg.Fetch.ProxyFile); err != nil {
			return nil, nil, err
		}
		logger.Info("proxy pool loaded", "proxies", proxies.Len())
	}

	limiter := ratelimit.NewLimiter(cfg.Fetch.RPS, 0.3)
	direct, err := fetch.NewDirect(fetch.DirectConfig{
		Timeout:       cfg.Fetch.Timeout,
		Fingerprint:   profile,
		UAPool:        useragent.NewPool(nil),
		Limiter:       limiter,
		Proxies:       proxies,
		RespectRobots: cfg.Fetch.RespectRobots,
		Logger:        logger,
	})
	if err != nil {
		limiter.Stop()
		return nil, nil, err
	}

	api := httpclient.New(httpclient.Config{Timeout: cfg.Fetch.Timeout})
	var tiers []fetch.Provider
	if cfg.Fetch.FirecrawlAPIKey != "" {
		tiers = append(tiers, fetch.NewFirecrawl(cfg.Fetch.FirecrawlAPIKey, "", api))
	}
	tiers = append(tiers,
		fetch.NewJina(cfg.Fetch.JinaAPIKey, "", api),
		direct,
		fetch.Browser{},
	)
	return fetch.NewChain(tiers, logger), limiter.Stop, nil
}

// stageOptions selects the optional stages of a run.
type stageOptions struct {
	acquire bool
	analyze bool
}

// buildPipeline wires every collaborator from cfg. The returned func releases
// background resources.
func buildPipeline(cfg *config.Config, store storage.Backend, opts stageOptions, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	client, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey(),
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, nil, err
	}

	searchClient := httpclient.New(httpclient.Config{Timeout: cfg.Fetch.Timeout})
	providers := searchProviders(cfg, searchClient)
	if len(providers) == 0 {
		logger.Warn("no search provider configured; every query will come back empty")
	}
	coordinator := serp.NewCoordinator(serp.CoordinatorConfig{
		Providers:           providers,
		Cache:               cache.New(store, cfg.Cache.TTL(), logger),
		Locale:              serp.Locale{GL: cfg.Search.GL, HL: cfg.Search.HL},
		BatchDelay:          cfg.Search.BatchDelay,
		BatchConcurrency:    cfg.Search.BatchConcurrency,
		ProviderConcurrency: int64(cfg.Search.ProviderConcurrency),
		Logger:              logger,
	})

	var probe *discovery.SitemapProbe
	if cfg.Discovery.SitemapProbe {
		siteClient := httpclient.New(httpclient.Config{
			Timeout:   cfg.Fetch.Timeout,
			UserAgent: useragent.Desktop,
		})
		probe = discovery.NewSitemapProbe(siteClient, fetch.NewRobotsAuditor(siteClient, logger), logger)
	}

	pcfg := pipeline.Config{
		Store:              store,
		Search:             coordinator,
		Extractor:          extract.New(client, logger),
		Merger:             dedupe.NewMerger(cfg.Dedupe.Threshold, logger),
		Sources:            discovery.New(coordinator, probe, logger),
		SearchCount:        cfg.Search.ResultsPerQuery,
		MaxSources:         cfg.Acquire.MaxSources,
		AcquireConcurrency: cfg.Acquire.Concurrency,
		Logger:             logger,
	}

	cleanup := func() {}
	if opts.acquire {
		chain, stop, err := fetchChain(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup = stop
		pcfg.Fetcher = chain
		pcfg.Persister = persist.New(persist.Config{
			DataDir: cfg.DataDir,
			Client: httpclient.New(httpclient.Config{
				Timeout:   cfg.Fetch.Timeout,
				UserAgent: useragent.Desktop,
			}),
			MaxImages: cfg.Acquire.MaxImages,
			Logger:    logger,
		})
	}
	if opts.analyze {
		pcfg.Analyzer = analyzer.New(client, logger)
	}
	return pipeline.New(pcfg), cleanup, nil
}
