package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openmuni/cividex/internal/async"
	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/ingest"
	"github.com/openmuni/cividex/internal/logging"
	"github.com/openmuni/cividex/internal/server"
	"github.com/openmuni/cividex/internal/store"
	"github.com/openmuni/cividex/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search and record APIs over HTTP",
		Long: `Serve the indexed records over HTTP.

Read endpoints (/api/search, /api/records, /api/stats) are open.
Admin endpoints (/admin/reindex, record deletion) require the bearer
token from server.admin_token and stay locked until one is set.

On a fresh corpus the first ingest runs in the background, so the
server answers health checks immediately while the index builds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8930)")

	return cmd
}

func runServe(ctx context.Context, addr string) error {
	if logger, cleanup, err := logging.Setup(logging.DefaultConfig()); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	root, cfg, err := loadCorpusConfig(".")
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	dataDir := cfg.Index.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	backend := cfg.Index.Backend
	firstRun := true
	if detected := index.DetectBackend(dataDir); detected != "" {
		backend = string(detected)
		firstRun = false
	}

	engine, err := index.NewEngineWithBackend(dataDir, engineConfig(cfg), backend)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer func() { _ = engine.Close() }()

	records, err := store.NewSQLiteStore(recordsPath(dataDir))
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer func() { _ = records.Close() }()

	var metrics *telemetry.QueryMetrics
	if cfg.Telemetry.Enabled {
		if metricsStore, err := telemetry.NewSQLiteMetricsStore(records.DB()); err != nil {
			slog.Warn("telemetry_store_unavailable", slog.String("error", err.Error()))
			metrics = telemetry.NewQueryMetrics(nil)
		} else {
			metricsCfg := telemetry.DefaultQueryMetricsConfig()
			metricsCfg.FlushInterval = cfg.Telemetry.FlushIntervalDuration()
			metrics = telemetry.NewQueryMetricsWithConfig(metricsStore, metricsCfg)
		}
		defer func() { _ = metrics.Close() }()
	}

	searcher, err := newSearcher(engine, cfg, metrics)
	if err != nil {
		return err
	}

	// The runner feeds progress into the job tracker it belongs to;
	// events before the reindexer exists cannot occur because only
	// Trigger starts runs.
	var jobs *async.Reindexer
	runner, err := ingest.NewRunner(cfg, engine, records,
		ingest.WithProgress(func(e ingest.Event) {
			if jobs != nil {
				jobs.Observe(e)
			}
		}))
	if err != nil {
		return fmt.Errorf("failed to create ingest runner: %w", err)
	}
	jobs = async.NewReindexer(runner.Run)
	defer jobs.Stop()

	srv, err := server.New(cfg, searcher, engine, records, jobs)
	if err != nil {
		return err
	}

	if firstRun {
		slog.Info("initial_ingest_triggered", slog.String("corpus", cfg.Corpus.Dir))
		jobs.Trigger(false)
	}

	slog.Info("server_starting",
		slog.String("addr", cfg.Server.Addr),
		slog.String("corpus", root),
		slog.String("backend", backend))
	return srv.Start(ctx)
}
