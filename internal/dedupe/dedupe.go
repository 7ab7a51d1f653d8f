// Package dedupe merges near-duplicate competitor candidates and ranks them.
package dedupe

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/FranksOps/rivalscout/internal/extract"
)

// DefaultThreshold is the similarity a name must exceed to be merged.
const DefaultThreshold = 85

// Competitor is an accepted candidate after merging.
type Competitor struct {
	Name       string
	Confidence float64
	Reason     string
	// Mentions counts how many candidates were folded into this entry.
	Mentions int
}

// Merger folds candidates into a ranked, duplicate-free list.
type Merger struct {
	Metric    Similarity
	Threshold int
	Logger    *slog.Logger
}

// NewMerger returns a Merger using Ratio and the given threshold. A
// non-positive threshold selects DefaultThreshold.
func NewMerger(threshold int, logger *slog.Logger) *Merger {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{Metric: Ratio{}, Threshold: threshold, Logger: logger}
}

// MergeAndRank makes a single greedy pass over candidates. A candidate whose
// best similarity to an accepted entry exceeds the threshold raises that
// entry's confidence to the max of the two; otherwise it is accepted as new.
// The result is sorted by confidence, descending and stable, and truncated
// to target entries.
func (m *Merger) MergeAndRank(candidates []extract.Candidate, target int) []Competitor {
	metric := m.Metric
	if metric == nil {
		metric = Ratio{}
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var accepted []Competitor
	for _, c := range candidates {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}

		best, bestScore := -1, -1
		for i := range accepted {
			if s := metric.Score(c.Name, accepted[i].Name); s > bestScore {
				best, bestScore = i, s
			}
		}

		if best >= 0 && bestScore > m.Threshold {
			logger.Debug("merging duplicate candidate", "name", c.Name, "into", accepted[best].Name, "similarity", bestScore)
			accepted[best].Confidence = max(accepted[best].Confidence, c.Confidence)
			accepted[best].Mentions++
			continue
		}
		accepted = append(accepted, Competitor{
			Name:       strings.TrimSpace(c.Name),
			Confidence: c.Confidence,
			Reason:     c.Reason,
			Mentions:   1,
		})
	}

	slices.SortStableFunc(accepted, func(a, b Competitor) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return 0
		}
	})

	if target >= 0 && len(accepted) > target {
		accepted = accepted[:target]
	}
	logger.Info("candidates merged", "candidates", len(candidates), "kept", len(accepted))
	return accepted
}
