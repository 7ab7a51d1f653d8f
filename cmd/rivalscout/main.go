package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FranksOps/rivalscout/internal/config"
	"github.com/FranksOps/rivalscout/internal/logging"
	"github.com/FranksOps/rivalscout/internal/metrics"
)

// globals holds state shared by every subcommand once PersistentPreRunE ran.
type globals struct {
	configFile  string
	envFile     string
	logLevel    string
	logFormat   string
	metricsPort int

	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Server
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "rivalscout",
		Short:         "Discover competitors for a product topic and collect their public pages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Options{File: g.configFile, EnvFile: g.envFile})
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = g.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = g.logFormat
			}
			if cmd.Flags().Changed("metrics-port") {
				cfg.Metrics.Port = g.metricsPort
			}

			l, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			slog.SetDefault(l.Logger)
			g.cfg = cfg
			g.logger = l.Logger

			if cfg.Metrics.Port > 0 {
				g.metrics = metrics.Start(cfg.Metrics.Port, g.logger)
				g.logger.Info("metrics server started", "port", cfg.Metrics.Port)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return g.metrics.Stop(context.Background())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "config file (default: ./rivalscout.yaml or ~/rivalscout.yaml)")
	pf.StringVar(&g.envFile, "env-file", "", "dotenv file to load (default: .env)")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", logging.FormatText, "log format: text or json")
	pf.IntVar(&g.metricsPort, "metrics-port", 0, "expose Prometheus metrics on this port (0 disables)")

	root.AddCommand(newDiscoverCmd(g), newInitDBCmd(g), newCacheStatsCmd(g), newExportCmd(g))
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
