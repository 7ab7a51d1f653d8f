package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/rivalscout/internal/pipeline"
	"github.com/FranksOps/rivalscout/internal/planner"
	"github.com/FranksOps/rivalscout/internal/report"
	"github.com/FranksOps/rivalscout/internal/storage"
	"github.com/FranksOps/rivalscout/internal/storage/export"
)

func newDiscoverCmd(g *globals) *cobra.Command {
	var (
		market    string
		count     int
		depth     string
		noAcquire bool
		analyze   bool
		format    string
	)

	cmd := &cobra.Command{
		Use:   "discover <topic>",
		Short: "Find competitors for a topic, discover their sources and acquire the content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := strings.TrimSpace(args[0])
			if topic == "" {
				return fmt.Errorf("topic must not be empty")
			}
			d, err := planner.ParseDepth(depth)
			if err != nil {
				return err
			}
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}
			if analyze && noAcquire {
				return fmt.Errorf("--analyze needs acquired content; drop --no-acquire")
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			p, cleanup, err := buildPipeline(g.cfg, store, stageOptions{acquire: !noAcquire, analyze: analyze}, g.logger)
			if err != nil {
				return err
			}
			defer cleanup()

			run, err := p.Discover(ctx, pipeline.Request{
				Topic:       topic,
				Market:      market,
				TargetCount: count,
				Depth:       d,
			})
			if err != nil {
				return err
			}

			var acqs []pipeline.Acquisition
			if !noAcquire {
				if acqs, err = p.Acquire(ctx, run); err != nil {
					return err
				}
			}
			if analyze {
				path, err := writeProfiles(g.cfg.DataDir, run.Task.ID, p.Analyze(ctx, run, acqs))
				if err != nil {
					return err
				}
				g.logger.Info("competitor profiles written", "path", path)
			}

			summary := report.GenerateSummary(run, acqs)
			if format == "json" {
				return report.WriteJSON(cmd.OutOrStdout(), summary)
			}
			return report.WriteText(cmd.OutOrStdout(), summary)
		},
	}

	f := cmd.Flags()
	f.StringVar(&market, "market", pipeline.DefaultMarket, "target market")
	f.IntVar(&count, "count", pipeline.DefaultTargetCount, "number of competitors to keep")
	f.StringVar(&depth, "depth", planner.Standard.String(), "query plan depth: quick, standard, deep")
	f.BoolVar(&noAcquire, "no-acquire", false, "stop after source discovery")
	f.BoolVar(&analyze, "analyze", false, "extract structured attributes from acquired content")
	f.StringVar(&format, "format", "text", "summary format: text or json")
	return cmd
}

func writeProfiles(dataDir, taskID string, profiles []pipeline.Profile) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "profiles_"+taskID+".json")
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode profiles: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write profiles: %w", err)
	}
	return path, nil
}

func newInitDBCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the storage schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), g.cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "storage ready (%s)\n", g.cfg.Storage.Driver)
			return nil
		},
	}
}

func newCacheStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "cache-stats",
		Short: "Show search cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), g.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.CacheStats(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "entries:    %d\n", stats.Entries)
			fmt.Fprintf(out, "live:       %d\n", stats.Live)
			fmt.Fprintf(out, "expired:    %d\n", stats.Entries-stats.Live)
			fmt.Fprintf(out, "total hits: %d\n", stats.TotalHits)
			return nil
		},
	}
}

func newExportCmd(g *globals) *cobra.Command {
	var (
		taskID       string
		competitorID string
		format       string
		output       string
		since        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored acquisitions as CSV or JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if taskID == "" && competitorID == "" {
				return fmt.Errorf("one of --task or --competitor is required")
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			competitorIDs := []string{competitorID}
			if taskID != "" {
				comps, err := store.ListCompetitors(ctx, taskID)
				if err != nil {
					return err
				}
				competitorIDs = competitorIDs[:0]
				for _, c := range comps {
					competitorIDs = append(competitorIDs, c.ID)
				}
			}

			filter := storage.Filter{}
			if since > 0 {
				cutoff := time.Now().Add(-since)
				filter.Since = &cutoff
			}
			var records []*storage.AcquiredContent
			for _, id := range competitorIDs {
				filter.CompetitorID = id
				got, err := store.QueryAcquisitions(ctx, filter)
				if err != nil {
					return err
				}
				records = append(records, got...)
			}

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer file.Close()
				out = file
			}
			if err := export.Write(out, f, records); err != nil {
				return err
			}
			g.logger.Info("acquisitions exported", "records", len(records), "format", f)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&taskID, "task", "", "export every competitor of this discovery task")
	fl.StringVar(&competitorID, "competitor", "", "export a single competitor")
	fl.StringVar(&format, "format", string(export.FormatJSONL), "output format: csv or jsonl")
	fl.StringVarP(&output, "output", "o", "", "output file (default stdout)")
	fl.DurationVar(&since, "since", 0, "only acquisitions fetched within this window, e.g. 72h")
	return cmd
}
