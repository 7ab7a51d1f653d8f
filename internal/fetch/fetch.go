// Package fetch retrieves page content through an ordered chain of providers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/FranksOps/rivalscout/internal/metrics"
)

// ErrNotImplemented is reported by tiers that are declared but not built.
var ErrNotImplemented = errors.New("fetch: provider not implemented")

// ErrNoCredentials is reported by tiers that need an API key.
var ErrNoCredentials = errors.New("fetch: provider credentials not configured")

// Result is the outcome of fetching one URL.
type Result struct {
	Success  bool
	Content  string
	Metadata map[string]string
	Err      error
	// Provider names the tier that produced the result.
	Provider string
}

// Title returns the page title reported by the provider, if any.
func (r Result) Title() string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata["title"]
}

func failure(provider string, err error) Result {
	return Result{Provider: provider, Err: err}
}

// Provider is one fetch strategy.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, url string) Result
}

// Chain tries providers strictly in order. The first result that both
// succeeds and passes validation wins.
type Chain struct {
	providers []Provider
	validator Validator
	logger    *slog.Logger
}

// NewChain builds a chain over providers using DefaultValidator.
func NewChain(providers []Provider, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: append([]Provider(nil), providers...),
		validator: DefaultValidator(),
		logger:    logger,
	}
}

// WithValidator replaces the chain's validator.
func (c *Chain) WithValidator(v Validator) *Chain {
	c.validator = v
	return c
}

// Fetch returns the first valid result. When every tier fails the returned
// Result carries all tier errors joined.
func (c *Chain) Fetch(ctx context.Context, url string) Result {
	var errs []error
	for _, p := range c.providers {
		res := p.Fetch(ctx, url)
		res.Provider = p.Name()

		if res.Success {
			if err := c.validator.Validate(res.Content); err != nil {
				res.Success = false
				res.Err = err
				metrics.RecordFetch(p.Name(), metrics.OutcomeRejected, 0)
			} else {
				metrics.RecordFetch(p.Name(), metrics.OutcomeOK, len(res.Content))
				c.logger.Info("content fetched", "url", url, "provider", p.Name(), "chars", utf8.RuneCountInString(res.Content))
				return res
			}
		} else {
			if res.Err == nil {
				res.Err = errors.New("fetch: provider reported failure")
			}
			metrics.RecordFetch(p.Name(), metrics.OutcomeError, 0)
		}

		c.logger.Info("fetch tier failed, falling back", "url", url, "provider", p.Name(), "error", res.Err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), res.Err))
	}

	if len(errs) == 0 {
		return Result{Err: errors.New("fetch: no providers configured")}
	}
	return Result{Err: fmt.Errorf("fetch: all providers failed for %s: %w", url, errors.Join(errs...))}
}
