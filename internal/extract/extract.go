// Package extract turns search snippets into named competitor candidates.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/FranksOps/rivalscout/internal/llm"
	"github.com/FranksOps/rivalscout/internal/metrics"
	"github.com/FranksOps/rivalscout/internal/serp"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	// ContextResults is how many results of one query are shown to the model.
	ContextResults = 5
	// DefaultMaxCandidates caps candidates returned per query.
	DefaultMaxCandidates = 10
)

// Candidate is a product the model found mentioned in search results.
type Candidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type response struct {
	Competitors []Candidate `json:"competitors"`
}

var candidateSchema = &llm.Schema{
	Name: "competitor_candidates",
	Definition: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"competitors": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"name":       {Type: jsonschema.String, Description: "Product name exactly as mentioned"},
						"confidence": {Type: jsonschema.Number, Description: "0-1, based on mention frequency and prominence"},
						"reason":     {Type: jsonschema.String, Description: "Where and how the product is mentioned"},
					},
					Required:             []string{"name", "confidence", "reason"},
					AdditionalProperties: false,
				},
			},
		},
		Required:             []string{"competitors"},
		AdditionalProperties: false,
	},
}

// Extractor asks the model which products the results mention.
type Extractor struct {
	client      llm.Client
	temperature float32
	logger      *slog.Logger
}

// New creates an Extractor backed by client.
func New(client llm.Client, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, temperature: 0.3, logger: logger}
}

// Extract returns at most maxCandidates candidates named in the top results.
// Any model or parse failure yields an empty slice; it never aborts a run.
func (e *Extractor) Extract(ctx context.Context, topic string, results []serp.Result, maxCandidates int) []Candidate {
	if len(results) == 0 || e.client == nil {
		return []Candidate{}
	}
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}

	raw, err := e.client.Complete(ctx, llm.Request{
		Prompt:      buildPrompt(topic, results, maxCandidates),
		Schema:      candidateSchema,
		Temperature: e.temperature,
	})
	if err != nil {
		metrics.RecordExtraction(0, err)
		e.logger.Warn("candidate extraction failed", "topic", topic, "error", err)
		return []Candidate{}
	}

	parsed, err := llm.ParseJSON[response](raw)
	if err != nil {
		metrics.RecordExtraction(0, err)
		e.logger.Warn("candidate extraction returned malformed output", "topic", topic, "error", err)
		return []Candidate{}
	}

	out := make([]Candidate, 0, len(parsed.Competitors))
	for _, c := range parsed.Competitors {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		c.Confidence = clamp(c.Confidence)
		out = append(out, c)
		if len(out) == maxCandidates {
			break
		}
	}

	metrics.RecordExtraction(len(out), nil)
	e.logger.Debug("candidates extracted", "topic", topic, "count", len(out))
	return out
}

func buildPrompt(topic string, results []serp.Result, maxCandidates int) string {
	var sb strings.Builder
	for i, r := range results {
		if i == ContextResults {
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n%s\n\n", i+1, r.Title, r.Snippet)
	}

	return fmt.Sprintf(`You are a market research analyst. Extract the names of every product or tool related to %q that is mentioned in the search results below.

Search results:
%s
Rules:
1. Only extract product names that are explicitly mentioned. Do not guess.
2. Exclude generic category nouns such as "AI tools" or "software".
3. Give each product a confidence between 0 and 1 based on how often and how prominently it is mentioned, not on what you know about it.
4. Return at most %d products. Returning none is acceptable.

Answer as JSON: {"competitors": [{"name": "...", "confidence": 0.9, "reason": "..."}]}`, topic, sb.String(), maxCandidates)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
