package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openmuni/cividex/internal/config"
	"github.com/openmuni/cividex/internal/logging"
	"github.com/openmuni/cividex/internal/mcp"
	"github.com/openmuni/cividex/internal/telemetry"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the records index to MCP clients on stdio",
		Long: `Serve the Model Context Protocol on stdio.

Exposes search_records and get_record tools plus a stats resource so
MCP clients can query the records corpus.

Stdout carries JSON-RPC exclusively; logs go to ~/.cividex/logs/.
Run this from an MCP client configuration, not interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, cfg, err := loadCorpusConfig(".")
			if err != nil {
				return err
			}
			return runMCP(ctx, cfg)
		},
	}

	return cmd
}

// runMCP serves MCP on stdio over an existing index. Also the tail of
// the zero-argument flow.
func runMCP(ctx context.Context, cfg *config.Config) error {
	// Stdio mode: nothing may write to stdout except JSON-RPC.
	if cleanup, err := logging.SetupStdioMode(cfg.Logging.Level); err == nil {
		defer cleanup()
	}

	engine, records, err := openExistingIndex(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()
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

	srv, err := mcp.NewServer(searcher, engine, records, cfg)
	if err != nil {
		return err
	}
	if metrics != nil {
		srv.SetMetrics(metrics)
	}

	return srv.Serve(ctx)
}
