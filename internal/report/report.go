// Package report summarises a discovery and acquisition run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/rivalscout/internal/pipeline"
)

// CompetitorLine is one competitor's row in the summary.
type CompetitorLine struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Sources    int     `json:"sources"`
	Acquired   int     `json:"acquired"`
	Failed     int     `json:"failed"`
	Error      string  `json:"error,omitempty"`
}

// Failure is one source that could not be acquired.
type Failure struct {
	Competitor string `json:"competitor"`
	URL        string `json:"url"`
	Error      string `json:"error"`
}

// Summary contains aggregated counts about one run.
type Summary struct {
	TaskID             string           `json:"task_id"`
	Topic              string           `json:"topic"`
	Market             string           `json:"market"`
	Depth              string           `json:"depth"`
	Status             string           `json:"status"`
	Queries            int              `json:"queries"`
	Competitors        []CompetitorLine `json:"competitors"`
	TotalSources       int              `json:"total_sources"`
	SourcesByCategory  map[string]int   `json:"sources_by_category"`
	Acquired           int              `json:"acquired"`
	AcquiredByProvider map[string]int   `json:"acquired_by_provider"`
	AcquiredByPlatform map[string]int   `json:"acquired_by_platform"`
	Failures           []Failure        `json:"failures"`
	StartTime          time.Time        `json:"start_time"`
	EndTime            time.Time        `json:"end_time"`
	Duration           time.Duration    `json:"duration"`
}

// GenerateSummary aggregates run and its acquisitions. acqs may be empty when
// acquisition was skipped.
func GenerateSummary(run *pipeline.Run, acqs []pipeline.Acquisition) Summary {
	s := Summary{
		SourcesByCategory:  make(map[string]int),
		AcquiredByProvider: make(map[string]int),
		AcquiredByPlatform: make(map[string]int),
	}
	if run == nil {
		return s
	}

	if t := run.Task; t != nil {
		s.TaskID = t.ID
		s.Topic = t.Topic
		s.Market = t.Market
		s.Depth = t.Depth
		s.Status = string(t.Status)
		s.StartTime = t.CreatedAt
		s.EndTime = t.CreatedAt
		if t.CompletedAt != nil {
			s.EndTime = *t.CompletedAt
		}
	}
	s.Queries = len(run.Queries)

	index := make(map[string]int, len(run.Competitors))
	for _, cs := range run.Competitors {
		index[cs.Competitor.ID] = len(s.Competitors)
		line := CompetitorLine{
			Name:       cs.Competitor.Name,
			Confidence: cs.Competitor.Confidence,
			Sources:    len(cs.Sources),
		}
		if cs.Err != nil {
			line.Error = cs.Err.Error()
		}
		s.Competitors = append(s.Competitors, line)
		s.TotalSources += len(cs.Sources)
		for _, src := range cs.Sources {
			s.SourcesByCategory[src.Category]++
		}
	}

	for _, a := range acqs {
		i, known := index[a.Competitor.ID]
		if a.OK() {
			s.Acquired++
			s.AcquiredByProvider[a.Provider]++
			s.AcquiredByPlatform[a.Platform]++
			if known {
				s.Competitors[i].Acquired++
			}
			if a.Record.FetchedAt.After(s.EndTime) {
				s.EndTime = a.Record.FetchedAt
			}
			continue
		}
		if known {
			s.Competitors[i].Failed++
		}
		msg := "unknown error"
		if a.Err != nil {
			msg = a.Err.Error()
		}
		s.Failures = append(s.Failures, Failure{Competitor: a.Competitor.Name, URL: a.Source.URL, Error: msg})
	}

	if !s.StartTime.IsZero() {
		s.Duration = s.EndTime.Sub(s.StartTime)
	}
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

const textTmpl = `RivalScout Run Summary
----------------------
Task:          {{.TaskID}} ({{.Status}})
Topic:         {{.Topic}} [{{.Market}}, {{.Depth}}]
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Queries:       {{.Queries}}
Sources:       {{.TotalSources}}
Acquired:      {{.Acquired}}
Failed:        {{len .Failures}}

Competitors:
{{- range .Competitors}}
  {{printf "%-24s" .Name}} confidence {{printf "%.2f" .Confidence}}  sources {{.Sources}}  acquired {{.Acquired}}  failed {{.Failed}}
{{- if .Error}}
    store error: {{.Error}}
{{- end}}
{{- else}}
  None
{{- end}}

Sources By Category:
{{- range $cat, $count := .SourcesByCategory}}
  {{$cat}}: {{$count}}
{{- else}}
  None
{{- end}}

Acquired By Tier:
{{- range $p, $count := .AcquiredByProvider}}
  {{$p}}: {{$count}}
{{- else}}
  None
{{- end}}

Acquired By Platform:
{{- range $p, $count := .AcquiredByPlatform}}
  {{$p}}: {{$count}}
{{- else}}
  None
{{- end}}
{{- if .Failures}}

Failures:
{{- range .Failures}}
  [{{.Competitor}}] {{.URL}}: {{.Error}}
{{- end}}
{{- end}}
`

var textReport = template.Must(template.New("textReport").Parse(textTmpl))

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	if err := textReport.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}
	return nil
}
