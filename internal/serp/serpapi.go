package serp

import (
	"context"
	"fmt"
	"strconv"

	g "github.com/serpapi/google-search-results-golang"
)

// serpAPIQuery runs one SerpAPI request and returns the decoded JSON document.
type serpAPIQuery func(params map[string]string, apiKey string) (map[string]any, error)

func googleSearchJSON(params map[string]string, apiKey string) (map[string]any, error) {
	search := g.NewGoogleSearch(params, apiKey)
	results, err := search.GetJSON()
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SerpAPI queries the SerpAPI Google engine.
type SerpAPI struct {
	apiKey string
	query  serpAPIQuery
}

// NewSerpAPI builds a SerpAPI adapter.
func NewSerpAPI(apiKey string) *SerpAPI {
	return &SerpAPI{apiKey: apiKey, query: googleSearchJSON}
}

func (s *SerpAPI) Name() string { return "serpapi" }

func (s *SerpAPI) Search(ctx context.Context, query string, count int, locale Locale) ([]Result, error) {
	if s.apiKey == "" {
		return nil, ErrNoCredentials
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("serpapi: %w", err)
	}

	params := map[string]string{
		"engine": "google",
		"q":      query,
		"num":    strconv.Itoa(count),
	}
	if locale.GL != "" {
		params["gl"] = locale.GL
	}
	if locale.HL != "" {
		params["hl"] = locale.HL
	}

	doc, err := s.query(params, s.apiKey)
	if err != nil {
		return nil, fmt.Errorf("serpapi: %w", err)
	}

	organic, ok := doc["organic_results"].([]interface{})
	if !ok {
		return []Result{}, nil
	}

	results := make([]Result, 0, len(organic))
	for _, item := range organic {
		res, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		title, _ := res["title"].(string)
		link, _ := res["link"].(string)
		snippet, _ := res["snippet"].(string)
		if link == "" {
			continue
		}
		results = append(results, Result{Title: title, URL: link, Snippet: snippet, Source: s.Name()})
	}
	return truncate(results, count), nil
}
