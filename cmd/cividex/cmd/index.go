package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openmuni/cividex/internal/config"
	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/ingest"
	"github.com/openmuni/cividex/internal/logging"
	"github.com/openmuni/cividex/internal/store"
	"github.com/openmuni/cividex/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI   bool
		force   bool
		watch   bool
		backend string
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Ingest a records directory for searching",
		Long: `Ingest a directory of municipal records to enable full-text search.

This scans the corpus, parses records and their front matter, and
builds the stemmed and prefix full-text indexes.

Backend Selection:
  (default)          Reuse an existing index's backend, else SQLite FTS5
  --backend=sqlite   SQLite FTS5 (single file, concurrent readers)
  --backend=bleve    Bleve (pure Go index directory)

Use --force to clear existing index data and rebuild from scratch.
Use --watch to keep running and reingest when files change.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C must cancel a long ingest or the watch loop cleanly.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			return runIngestCmd(ctx, cmd, path, ingestOptions{
				noTUI:   noTUI,
				force:   force,
				watch:   watch,
				backend: backend,
			})
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&force, "force", false, "Clear existing index and rebuild from scratch")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and reingest when files change")
	cmd.Flags().StringVar(&backend, "backend", "", "Index backend: sqlite (default) or bleve")

	return cmd
}

type ingestOptions struct {
	noTUI   bool
	force   bool
	watch   bool
	backend string
}

func runIngestCmd(ctx context.Context, cmd *cobra.Command, path string, opts ingestOptions) error {
	// File-only logging keeps slog output out of the progress display.
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}
	// Continue even if logging setup fails, it is not critical for CLI use.

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindCorpusRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	dataDir := cfg.Index.DataDir

	if opts.force {
		if err := clearIndexData(dataDir); err != nil {
			return fmt.Errorf("failed to clear index data: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Cleared existing index data, starting fresh...")
		slog.Info("index_force_clear", slog.String("data_dir", dataDir))
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// An explicit --backend wins; otherwise reuse whatever backend an
	// existing index was built with so reingest does not orphan it.
	backend := cfg.Index.Backend
	if opts.backend != "" {
		backend = opts.backend
	} else if detected := index.DetectBackend(dataDir); detected != "" {
		backend = string(detected)
	}

	// Watch mode stays line oriented so later batches remain visible
	// after the first run's summary.
	uiCfg := ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI || opts.watch),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithCorpusDir(root))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

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

	runner, err := ingest.NewRunner(cfg, engine, records,
		ingest.WithProgress(renderProgress(renderer)))
	if err != nil {
		return fmt.Errorf("failed to create ingest runner: %w", err)
	}

	result, err := runner.Run(ctx, opts.force)
	if err != nil {
		if errors.Is(err, ingest.ErrLocked) {
			return fmt.Errorf("another ingest is already running for this corpus")
		}
		return err
	}

	renderer.Complete(completionStats(result, backend))

	if !opts.watch {
		return nil
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Watching for changes (Ctrl+C to stop)...")
	if err := runner.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runIngestQuiet performs one ingest pass without progress output, for
// the zero-argument flow where stdout must stay clean for MCP.
func runIngestQuiet(ctx context.Context, cfg *config.Config, force bool) error {
	dataDir := cfg.Index.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	backend := cfg.Index.Backend
	if detected := index.DetectBackend(dataDir); detected != "" {
		backend = string(detected)
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

	runner, err := ingest.NewRunner(cfg, engine, records)
	if err != nil {
		return fmt.Errorf("failed to create ingest runner: %w", err)
	}

	_, err = runner.Run(ctx, force)
	return err
}

// clearIndexData removes all index files from the data directory. The
// corpus config file lives at the corpus root, not in dataDir, so it
// survives.
func clearIndexData(dataDir string) error {
	indexFiles := []string{
		filepath.Join(dataDir, "records.db"),
		filepath.Join(dataDir, "records.db-shm"),
		filepath.Join(dataDir, "records.db-wal"),
		filepath.Join(dataDir, "index.db"),
		filepath.Join(dataDir, "index.db-shm"),
		filepath.Join(dataDir, "index.db-wal"),
		filepath.Join(dataDir, "index.bleve"),
	}

	for _, path := range indexFiles {
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
		}
	}

	return nil
}

// renderProgress adapts ingest progress events to the UI renderer.
func renderProgress(renderer ui.Renderer) func(ingest.Event) {
	return func(e ingest.Event) {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       uiStage(e.Stage),
			Current:     e.Current,
			Total:       e.Total,
			CurrentFile: e.Path,
		})
	}
}

func uiStage(stage ingest.Stage) ui.Stage {
	switch stage {
	case ingest.StageScan:
		return ui.StageScanning
	case ingest.StageParse:
		return ui.StageParsing
	case ingest.StageIndex:
		return ui.StageIndexing
	case ingest.StageSweep:
		return ui.StageSweeping
	default:
		return ui.StageScanning
	}
}

func completionStats(result *ingest.Result, backend string) ui.CompletionStats {
	return ui.CompletionStats{
		Scanned:   result.Scanned,
		Indexed:   result.Indexed,
		Unchanged: result.Unchanged,
		Deleted:   result.Deleted,
		Failed:    result.Failed,
		Duration:  result.Duration,
		Stages: ui.StageTimings{
			Scan:  result.Timings.Scan,
			Parse: result.Timings.Parse,
			Index: result.Timings.Index,
			Sweep: result.Timings.Sweep,
		},
		Backend: backend,
	}
}
