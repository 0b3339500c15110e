// Package cmd provides the CLI commands for cividex.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openmuni/cividex/internal/config"
	"github.com/openmuni/cividex/internal/logging"
	"github.com/openmuni/cividex/internal/preflight"
	"github.com/openmuni/cividex/internal/profiling"
	"github.com/openmuni/cividex/pkg/version"
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the cividex CLI.
func NewRootCmd() *cobra.Command {
	var reindex bool
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "cividex",
		Short: "Full-text search over municipal records",
		Long: `Cividex indexes a directory of municipal records (ordinances,
meeting minutes, budgets, public notices) and serves full-text search
over them to the terminal, HTTP clients, and MCP assistants.

It runs entirely locally with zero configuration required.

Just run 'cividex' in your records directory to get started.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			// If help was explicitly requested, show it
			if len(args) > 0 {
				return cmd.Help()
			}
			return runSmartDefault(cmd.Context(), reindex, skipCheck)
		},
	}

	cmd.SetVersionTemplate("cividex version {{.Version}}\n")

	// Root flags
	cmd.Flags().BoolVar(&reindex, "reindex", false, "Force reingest even if an index exists")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")

	// Profiling flags
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	// Debug logging flag
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.cividex/logs/")

	// Setup profiling and logging hooks
	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts CPU/trace profiling and debug logging if flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	// Start debug logging if enabled
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("Debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	// Start CPU profiling
	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	// Start trace profiling
	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}

	return nil
}

// stopProfilingAndLogging stops profiling and logging, writes memory profile if requested.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	// Stop CPU profiling
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	// Stop tracing
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}

	// Write memory profile if requested
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	// Stop debug logging
	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// runSmartDefault implements the zero-argument flow: check the system,
// ingest the corpus if no index exists yet, then serve MCP on stdio.
// MCP requires stdout exclusively for JSON-RPC, so nothing here may
// print; diagnostics go to the log file and 'cividex doctor'.
func runSmartDefault(ctx context.Context, reindex, skipCheck bool) error {
	root, err := config.FindCorpusRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	dataDir := cfg.Index.DataDir

	// Run preflight checks silently (results logged to file)
	if !skipCheck && preflight.NeedsCheck(dataDir) {
		checker := preflight.New(preflight.WithOutput(io.Discard))
		results := checker.RunAll(ctx, root, dataDir)

		if checker.HasCriticalFailures(results) {
			slog.Error("System check failed, run 'cividex doctor' for diagnostics")
			return fmt.Errorf("system check failed")
		}

		if err := preflight.MarkPassed(dataDir); err != nil {
			slog.Debug("Failed to record preflight marker", slog.String("error", err.Error()))
		}
	}

	// Ingest if no index exists yet
	recordsPath := filepath.Join(dataDir, "records.db")
	if reindex || !fileExists(recordsPath) {
		slog.Info("Index not found, ingesting corpus", slog.String("root", root))

		if err := runIngestQuiet(ctx, cfg, reindex); err != nil {
			slog.Error("Ingest failed", slog.String("error", err.Error()))
			return fmt.Errorf("ingest failed: %w", err)
		}
		slog.Info("Ingest complete")
	} else {
		slog.Debug("Index found", slog.String("path", recordsPath))
	}

	// Start the MCP server. No stdout output before this point.
	return runMCP(ctx, cfg)
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
