package llm

import (
	"fmt"
	"strings"
)

// Config selects and configures a Client.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// New builds the Client named by cfg.Provider ("openai" or "anthropic").
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key for %q not configured", cfg.Provider)
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return NewOpenAIClient(cfg.APIKey, model, cfg.BaseURL), nil
	case "anthropic", "claude":
		model := cfg.Model
		if model == "" {
			model = "claude-3-5-haiku-latest"
		}
		return NewAnthropicClient(cfg.APIKey, model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}
