package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/qepting91/social-scraper/internal/collector"
	"github.com/qepting91/social-scraper/internal/config"
	"github.com/qepting91/social-scraper/internal/domain"
	"github.com/qepting91/social-scraper/internal/metrics"
	"github.com/qepting91/social-scraper/internal/pipeline"
	"github.com/qepting91/social-scraper/internal/retry"
)

// app is the state every subcommand shares once the root pre-run has loaded it.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector
}

var (
	configPath string
	state      app
)

var rootCmd = &cobra.Command{
	Use:   "scraper",
	Short: "Collect posts and reply trees from forum and microblog sources",
	Long: `scraper fetches items from a forum (reddit) or a microblog (via a nitter
instance), filters and projects them, optionally extracts their reply trees,
and writes the result as CSV, JSON, NDJSON or SQLite.

Credentials and defaults come from .env, an optional YAML file and the
environment, in that order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional.
		_ = godotenv.Load()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		state.cfg = cfg
		state.logger = setupLogger(cfg.Logging.Level)
		slog.SetDefault(state.logger)

		state.registry = prometheus.NewRegistry()
		state.metrics, err = metrics.New(state.registry)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	rootCmd.AddCommand(collectCmd, detailCmd, batchCmd, dashboardCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

// newPipeline builds an adapter for source and a pipeline configured from state.
func (a *app) newPipeline(source domain.Source) (*pipeline.Pipeline, error) {
	adapter, err := collector.NewCollector(a.cfg, source)
	if err != nil {
		return nil, err
	}
	a.logger.Info("collector_initialized", "mode", a.cfg.Mode, "source", string(source))

	p := pipeline.New(adapter, retry.New(a.cfg.Retry.Attempts, a.cfg.Retry.Delay, a.logger), a.metrics, a.logger)
	p.Workers = a.cfg.Tree.Workers
	p.TreeTimeout = a.cfg.Tree.Timeout
	p.Expand = domain.ExpandOptions{MaxExpansions: a.cfg.Tree.MaxExpansions}
	return p, nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// exitCode maps error kinds to distinct process exit statuses.
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return 2
	case errors.Is(err, domain.ErrSubjectNotFound):
		return 3
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return 4
	}
	return 1
}
