package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// emptyEnvFile keeps a developer's .env from leaking into the test.
func emptyEnvFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rivalscout.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{EnvFile: emptyEnvFile(t)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Cache.TTL() != 7*24*time.Hour {
		t.Errorf("ttl = %v, want 7 days", cfg.Cache.TTL())
	}
	if cfg.Dedupe.Threshold != 85 {
		t.Errorf("threshold = %d, want 85", cfg.Dedupe.Threshold)
	}
	if cfg.Search.GL != "cn" || cfg.Search.HL != "zh-cn" {
		t.Errorf("locale = %s/%s", cfg.Search.GL, cfg.Search.HL)
	}
	if cfg.Search.BatchDelay != time.Second {
		t.Errorf("batch delay = %v", cfg.Search.BatchDelay)
	}
	if cfg.Acquire.MaxSources != 3 || cfg.Acquire.MaxImages != 20 {
		t.Errorf("acquire = %+v", cfg.Acquire)
	}
	if !cfg.Discovery.SitemapProbe || !cfg.Fetch.RespectRobots {
		t.Errorf("expected sitemap probe and robots on by default")
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SERPER_API_KEY", "legacy-key")
	t.Setenv("CACHE_EXPIRY_DAYS", "14")
	t.Setenv("RIVALSCOUT_DEDUPE_THRESHOLD", "90")
	t.Setenv("RIVALSCOUT_SEARCH_BATCH_DELAY", "2s")

	cfg, err := Load(Options{EnvFile: emptyEnvFile(t)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.SerperAPIKey != "legacy-key" {
		t.Errorf("serper key = %q", cfg.Search.SerperAPIKey)
	}
	if cfg.Cache.TTLDays != 14 {
		t.Errorf("ttl days = %d, want 14", cfg.Cache.TTLDays)
	}
	if cfg.Dedupe.Threshold != 90 {
		t.Errorf("threshold = %d, want 90", cfg.Dedupe.Threshold)
	}
	if cfg.Search.BatchDelay != 2*time.Second {
		t.Errorf("batch delay = %v", cfg.Search.BatchDelay)
	}
}

func TestLoad_PrefixedBeatsLegacy(t *testing.T) {
	t.Setenv("SERPER_API_KEY", "legacy")
	t.Setenv("RIVALSCOUT_SEARCH_SERPER_API_KEY", "prefixed")

	cfg, err := Load(Options{EnvFile: emptyEnvFile(t)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.SerperAPIKey != "prefixed" {
		t.Errorf("serper key = %q, want prefixed", cfg.Search.SerperAPIKey)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	// Register restoration, then clear so godotenv is allowed to set it.
	t.Setenv("FIRECRAWL_API_KEY", "")
	os.Unsetenv("FIRECRAWL_API_KEY")

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("FIRECRAWL_API_KEY=fc-from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(Options{EnvFile: envFile})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.FirecrawlAPIKey != "fc-from-dotenv" {
		t.Errorf("firecrawl key = %q", cfg.Fetch.FirecrawlAPIKey)
	}
}

func TestLoad_MissingExplicitEnvFile(t *testing.T) {
	_, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	if err == nil {
		t.Fatal("expected error for missing explicit env file")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/scout
llm:
  provider: anthropic
  anthropic_api_key: ant-key
search:
  batch_concurrency: 2
dedupe:
  threshold: 80
`)
	cfg, err := Load(Options{File: path, EnvFile: emptyEnvFile(t)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/scout" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.LLM.APIKey() != "ant-key" {
		t.Errorf("api key = %q, want anthropic key", cfg.LLM.APIKey())
	}
	if cfg.Search.BatchConcurrency != 2 || cfg.Dedupe.Threshold != 80 {
		t.Errorf("file values not applied: %+v %+v", cfg.Search, cfg.Dedupe)
	}
	if cfg.SQLitePath() != filepath.Join("/tmp/scout", "rivalscout.db") {
		t.Errorf("sqlite path = %q", cfg.SQLitePath())
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: postgres\n")
	_, err := Load(Options{File: path, EnvFile: emptyEnvFile(t)})
	if !errors.Is(err, ErrMissingDSN) {
		t.Fatalf("expected ErrMissingDSN, got %v", err)
	}
}

func validConfig() Config {
	return Config{
		Storage: StorageConfig{Driver: "sqlite"},
		Cache:   CacheConfig{TTLDays: 7},
		Search:  SearchConfig{ResultsPerQuery: 10, BatchConcurrency: 5, ProviderConcurrency: 3},
		LLM:     LLMConfig{Provider: "openai"},
		Dedupe:  DedupeConfig{Threshold: 85},
		Fetch:   FetchConfig{Timeout: time.Second, Fingerprint: "chrome"},
		Acquire: AcquireConfig{MaxSources: 3, Concurrency: 3},
		Log:     LogConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mysql" }, ErrInvalidDriver},
		{"postgres with dsn", func(c *Config) { c.Storage = StorageConfig{Driver: "postgres", DSN: "postgres://x"} }, nil},
		{"zero ttl", func(c *Config) { c.Cache.TTLDays = 0 }, ErrInvalidTTL},
		{"threshold too high", func(c *Config) { c.Dedupe.Threshold = 101 }, ErrInvalidThreshold},
		{"no results", func(c *Config) { c.Search.ResultsPerQuery = 0 }, ErrInvalidResultCount},
		{"zero concurrency", func(c *Config) { c.Acquire.Concurrency = 0 }, ErrInvalidConcurrency},
		{"unknown llm", func(c *Config) { c.LLM.Provider = "gemini" }, ErrInvalidLLMProvider},
		{"zero timeout", func(c *Config) { c.Fetch.Timeout = 0 }, ErrInvalidTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	cfg := validConfig()
	cfg.Fetch.Fingerprint = "netscape"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown fingerprint")
	}
}
