// Package llm wraps the chat-completion services used for structured extraction.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Schema names and describes the JSON document a completion must produce.
type Schema struct {
	Name       string
	Definition jsonschema.Definition
}

// Request is a single-turn completion request.
type Request struct {
	Prompt string
	Schema *Schema
	// JSONObject asks for a free-form JSON object when Schema is nil.
	JSONObject  bool
	Temperature float32
	MaxTokens   int
}

// Client is the language-model collaborator. Complete returns the raw text
// of the first choice; structured callers decode it with ParseJSON.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ParseJSON decodes the outermost JSON object embedded in response. Leading
// prose and trailing commentary, including Markdown fences, are ignored.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	start := strings.IndexByte(response, '{')
	if start == -1 {
		return zero, fmt.Errorf("llm: no JSON object found in response")
	}
	end := strings.LastIndexByte(response, '}')
	if end < start {
		return zero, fmt.Errorf("llm: unterminated JSON object in response")
	}

	var out T
	if err := json.Unmarshal([]byte(response[start:end+1]), &out); err != nil {
		return zero, fmt.Errorf("llm: decode response: %w", err)
	}
	return out, nil
}

// schemaInstructions renders s as a prompt suffix for providers without
// native structured output.
func schemaInstructions(s *Schema) (string, error) {
	raw, err := json.MarshalIndent(s.Definition, "", "  ")
	if err != nil {
		return "", fmt.Errorf("llm: encode schema: %w", err)
	}
	return "\n\nRespond with a single JSON object only, no prose, matching this JSON schema:\n" + string(raw), nil
}
