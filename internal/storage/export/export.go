// Package export writes stored acquisitions as CSV or newline-delimited JSON
// for use outside the database.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/FranksOps/rivalscout/internal/storage"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSONL:
		return f, nil
	case "json", "ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("export: unknown format %q", s)
	}
}

// headers defines the CSV column order.
var headers = []string{
	"id",
	"competitor_id",
	"source_id",
	"url",
	"platform",
	"provider",
	"title",
	"path",
	"fingerprint",
	"metadata_json",
	"assets_json",
	"fetched_at",
}

// Record is the serialised form of one acquisition.
type Record struct {
	ID           string            `json:"id"`
	CompetitorID string            `json:"competitor_id"`
	SourceID     string            `json:"source_id"`
	URL          string            `json:"url"`
	Platform     string            `json:"platform"`
	Provider     string            `json:"provider"`
	Title        string            `json:"title"`
	Path         string            `json:"path"`
	Fingerprint  string            `json:"fingerprint"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Assets       []string          `json:"assets,omitempty"`
	FetchedAt    time.Time         `json:"fetched_at"`
}

func toRecord(ac *storage.AcquiredContent) Record {
	return Record{
		ID:           ac.ID,
		CompetitorID: ac.CompetitorID,
		SourceID:     ac.SourceID,
		URL:          ac.URL,
		Platform:     ac.Platform,
		Provider:     ac.Provider,
		Title:        ac.Title,
		Path:         ac.Path,
		Fingerprint:  ac.Fingerprint,
		Metadata:     ac.Metadata,
		Assets:       ac.Assets,
		FetchedAt:    ac.FetchedAt.UTC(),
	}
}

// Write encodes records to w in format f. Nil entries are skipped.
func Write(w io.Writer, f Format, records []*storage.AcquiredContent) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, records)
	case FormatJSONL:
		return writeJSONL(w, records)
	default:
		return fmt.Errorf("export: unknown format %q", f)
	}
}

func writeCSV(w io.Writer, records []*storage.AcquiredContent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for _, ac := range records {
		if ac == nil {
			continue
		}
		meta, err := json.Marshal(ac.Metadata)
		if err != nil {
			return fmt.Errorf("export: encode metadata: %w", err)
		}
		assets, err := json.Marshal(ac.Assets)
		if err != nil {
			return fmt.Errorf("export: encode assets: %w", err)
		}
		row := []string{
			ac.ID,
			ac.CompetitorID,
			ac.SourceID,
			ac.URL,
			ac.Platform,
			ac.Provider,
			ac.Title,
			ac.Path,
			ac.Fingerprint,
			string(meta),
			string(assets),
			ac.FetchedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}
	return nil
}

func writeJSONL(w io.Writer, records []*storage.AcquiredContent) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, ac := range records {
		if ac == nil {
			continue
		}
		if err := enc.Encode(toRecord(ac)); err != nil {
			return fmt.Errorf("export: encode record: %w", err)
		}
	}
	return nil
}
