package pipeline

import (
	"context"
	"strings"

	"github.com/FranksOps/rivalscout/internal/analyzer"
)

// Profile is the analysed view of one competitor.
type Profile struct {
	Competitor string              `json:"competitor"`
	Confidence float64             `json:"confidence"`
	Sources    int                 `json:"sources"`
	Attributes analyzer.Attributes `json:"attributes"`
}

// Analyze joins each competitor's successful acquisitions and extracts
// attributes from them. Competitors without content get empty attributes.
func (p *Pipeline) Analyze(ctx context.Context, run *Run, acqs []Acquisition) []Profile {
	if p.cfg.Analyzer == nil || run == nil {
		return nil
	}

	content := map[string]*strings.Builder{}
	counts := map[string]int{}
	for _, a := range acqs {
		if !a.OK() {
			continue
		}
		b, ok := content[a.Competitor.ID]
		if !ok {
			b = &strings.Builder{}
			content[a.Competitor.ID] = b
		}
		b.WriteString(a.Content)
		b.WriteString("\n\n")
		counts[a.Competitor.ID]++
	}

	profiles := make([]Profile, 0, len(run.Competitors))
	for _, cs := range run.Competitors {
		c := cs.Competitor
		prof := Profile{Competitor: c.Name, Confidence: c.Confidence, Sources: counts[c.ID]}
		if b, ok := content[c.ID]; ok {
			prof.Attributes = p.cfg.Analyzer.Extract(ctx, b.String(), c.Name)
		} else {
			p.logger.Warn("no acquired content, skipping analysis", "competitor", c.Name)
			prof.Attributes = analyzer.Empty()
		}
		profiles = append(profiles, prof)
	}
	return profiles
}
