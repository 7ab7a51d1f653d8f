// Package config loads runtime settings from defaults, an optional config
// file, a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/FranksOps/rivalscout/internal/fingerprint"
	"github.com/FranksOps/rivalscout/internal/logging"
)

// EnvPrefix namespaces environment overrides, e.g. RIVALSCOUT_SEARCH_GL.
const EnvPrefix = "RIVALSCOUT"

// Configuration validation errors.
var (
	ErrInvalidDriver      = errors.New("storage.driver must be one of: sqlite, postgres")
	ErrMissingDSN         = errors.New("storage.dsn is required for postgres")
	ErrInvalidTTL         = errors.New("cache.ttl_days must be at least 1")
	ErrInvalidThreshold   = errors.New("dedupe.threshold must be between 1 and 100")
	ErrInvalidConcurrency = errors.New("concurrency settings must be at least 1")
	ErrInvalidResultCount = errors.New("search.results_per_query must be between 1 and 100")
	ErrInvalidLLMProvider = errors.New("llm.provider must be one of: openai, anthropic")
	ErrInvalidTimeout     = errors.New("fetch.timeout must be positive")
)

// Config is the complete runtime configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Search    SearchConfig    `mapstructure:"search"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Dedupe    DedupeConfig    `mapstructure:"dedupe"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Acquire   AcquireConfig   `mapstructure:"acquire"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig selects the record store. An empty sqlite DSN places the
// database under DataDir.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type CacheConfig struct {
	TTLDays int `mapstructure:"ttl_days"`
}

// TTL returns the cache lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// SearchConfig holds provider credentials and coordinator tuning.
type SearchConfig struct {
	SerperAPIKey        string        `mapstructure:"serper_api_key"`
	GoogleAPIKey        string        `mapstructure:"google_api_key"`
	GoogleEngineID      string        `mapstructure:"google_engine_id"`
	SerpAPIKey          string        `mapstructure:"serpapi_api_key"`
	GL                  string        `mapstructure:"gl"`
	HL                  string        `mapstructure:"hl"`
	ResultsPerQuery     int           `mapstructure:"results_per_query"`
	BatchDelay          time.Duration `mapstructure:"batch_delay"`
	BatchConcurrency    int           `mapstructure:"batch_concurrency"`
	ProviderConcurrency int           `mapstructure:"provider_concurrency"`
}

type LLMConfig struct {
	Provider        string `mapstructure:"provider"`
	Model           string `mapstructure:"model"`
	BaseURL         string `mapstructure:"base_url"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
}

// APIKey returns the key for the selected provider.
func (c LLMConfig) APIKey() string {
	if strings.EqualFold(c.Provider, "anthropic") {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

type DedupeConfig struct {
	Threshold int `mapstructure:"threshold"`
}

type DiscoveryConfig struct {
	SitemapProbe bool `mapstructure:"sitemap_probe"`
}

// FetchConfig tunes the content fetch chain.
type FetchConfig struct {
	FirecrawlAPIKey string        `mapstructure:"firecrawl_api_key"`
	JinaAPIKey      string        `mapstructure:"jina_api_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Fingerprint     string        `mapstructure:"fingerprint"`
	RespectRobots   bool          `mapstructure:"respect_robots"`
	RPS             float64       `mapstructure:"rps"`
	ProxyFile       string        `mapstructure:"proxy_file"`
}

type AcquireConfig struct {
	MaxSources  int `mapstructure:"max_sources"`
	Concurrency int `mapstructure:"concurrency"`
	MaxImages   int `mapstructure:"max_images"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// legacyEnv maps config keys to the un-prefixed variable names older
// deployments export. They are bound alongside the prefixed form.
var legacyEnv = map[string]string{
	"data_dir":                 "DATA_DIR",
	"storage.dsn":              "DATABASE_URL",
	"cache.ttl_days":           "CACHE_EXPIRY_DAYS",
	"search.serper_api_key":    "SERPER_API_KEY",
	"search.google_api_key":    "GOOGLE_SEARCH_API_KEY",
	"search.google_engine_id":  "GOOGLE_SEARCH_ENGINE_ID",
	"search.serpapi_api_key":   "SERPAPI_API_KEY",
	"search.results_per_query": "SEARCH_RESULTS_PER_QUERY",
	"llm.model":                "DEFAULT_LLM_MODEL",
	"llm.openai_api_key":       "OPENAI_API_KEY",
	"llm.anthropic_api_key":    "ANTHROPIC_API_KEY",
	"fetch.firecrawl_api_key":  "FIRECRAWL_API_KEY",
	"fetch.jina_api_key":       "JINA_API_KEY",
	"acquire.concurrency":      "MAX_CONCURRENT_CRAWLS",
	"log.level":                "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("cache.ttl_days", 7)
	v.SetDefault("search.gl", "cn")
	v.SetDefault("search.hl", "zh-cn")
	v.SetDefault("search.results_per_query", 10)
	v.SetDefault("search.batch_delay", time.Second)
	v.SetDefault("search.batch_concurrency", 1)
	v.SetDefault("search.provider_concurrency", 3)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("dedupe.threshold", 85)
	v.SetDefault("discovery.sitemap_probe", true)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.fingerprint", string(fingerprint.ProfileChrome))
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.rps", 1.0)
	v.SetDefault("fetch.proxy_file", "")
	v.SetDefault("acquire.max_sources", 3)
	v.SetDefault("acquire.concurrency", 3)
	v.SetDefault("acquire.max_images", 20)
	v.SetDefault("metrics.port", 0)

	// Secrets have no default but must be known to viper for env binding
	// to reach Unmarshal.
	for _, k := range []string{
		"search.serper_api_key", "search.google_api_key", "search.google_engine_id",
		"search.serpapi_api_key", "llm.openai_api_key", "llm.anthropic_api_key",
		"fetch.firecrawl_api_key", "fetch.jina_api_key",
	} {
		v.SetDefault(k, "")
	}
}

// Options control where Load looks.
type Options struct {
	// File is an explicit config file. Empty means look for rivalscout.yaml
	// in the working directory, then the home directory, and carry on
	// without one.
	File string
	// EnvFile is loaded with godotenv before the environment is read.
	// Empty means ".env"; a missing default file is not an error.
	EnvFile string
	Logger  *slog.Logger
}

// Load assembles the configuration and validates it.
func Load(opts Options) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if opts.EnvFile != "" {
			return nil, fmt.Errorf("config: load env file: %w", err)
		}
		logger.Debug("no .env file found, using environment", "path", envFile)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName("rivalscout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read config: %w", err)
			}
		}
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("config file loaded", "path", used)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations. Missing provider credentials are
// not an error here; the components that need them report it.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return ErrInvalidDriver
	}
	if c.Cache.TTLDays < 1 {
		return ErrInvalidTTL
	}
	if c.Dedupe.Threshold < 1 || c.Dedupe.Threshold > 100 {
		return ErrInvalidThreshold
	}
	if c.Search.ResultsPerQuery < 1 || c.Search.ResultsPerQuery > 100 {
		return ErrInvalidResultCount
	}
	if c.Search.BatchConcurrency < 1 || c.Search.ProviderConcurrency < 1 ||
		c.Acquire.Concurrency < 1 || c.Acquire.MaxSources < 1 {
		return ErrInvalidConcurrency
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "anthropic":
	default:
		return ErrInvalidLLMProvider
	}
	if c.Fetch.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if _, err := fingerprint.ParseProfile(c.Fetch.Fingerprint); err != nil {
		return fmt.Errorf("config: fetch.fingerprint: %w", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

// SQLitePath is where the sqlite database lives when no DSN is given.
func (c *Config) SQLitePath() string {
	if c.Storage.DSN != "" {
		return c.Storage.DSN
	}
	return filepath.Join(c.DataDir, "rivalscout.db")
}
