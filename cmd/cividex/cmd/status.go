package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmuni/cividex/internal/config"
	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/ingest"
	"github.com/openmuni/cividex/internal/store"
	"github.com/openmuni/cividex/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the current index including:
  - Number of indexed records, by kind
  - Last ingest time and whether an ingest is running
  - Which backend built the index
  - Storage sizes (index, record store)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, err := config.FindCorpusRoot(".")
	if err != nil {
		cwd, _ := os.Getwd()
		root = cwd
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	dataDir := cfg.Index.DataDir

	if !fileExists(recordsPath(dataDir)) {
		return fmt.Errorf("no index found in %s\nRun 'cividex index' to create one", root)
	}

	info, err := collectStatus(ctx, root, dataDir)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	noColor := ui.DetectNoColor()
	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)

	if jsonOutput {
		return renderer.RenderJSON(info)
	}

	return renderer.Render(info)
}

func collectStatus(ctx context.Context, root, dataDir string) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		CorpusRoot: root,
		Backend:    string(index.DetectBackend(dataDir)),
	}

	records, err := store.NewSQLiteStore(recordsPath(dataDir))
	if err != nil {
		return info, fmt.Errorf("failed to open record store: %w", err)
	}
	defer func() { _ = records.Close() }()

	if total, err := records.Count(ctx); err == nil {
		info.TotalRecords = total
	}

	if byKind, err := records.CountByKind(ctx); err == nil {
		info.ByKind = make(map[string]int, len(byKind))
		for kind, n := range byKind {
			info.ByKind[string(kind)] = n
		}
	}

	info.IngestStatus = "never"
	if raw, err := records.GetState(ctx, store.StateKeyLastIngest); err == nil && raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			info.LastIngest = t
			info.IngestStatus = "idle"
		}
	}

	// A held ingest lock means a run is in progress right now.
	lock := ingest.NewFileLock(dataDir)
	if locked, err := lock.TryLock(); err == nil {
		if locked {
			_ = lock.Unlock()
		} else {
			info.IngestStatus = "running"
		}
	}

	// Storage sizes; the Bleve backend is a directory, SQLite a file.
	if info.Backend == string(index.BackendBleve) {
		info.IndexSize = getDirSize(filepath.Join(dataDir, "index.bleve"))
	} else {
		info.IndexSize = getFileSize(filepath.Join(dataDir, "index.db"))
	}
	info.StoreSize = getFileSize(recordsPath(dataDir))
	info.TotalSize = info.IndexSize + info.StoreSize

	return info, nil
}

// getFileSize returns the size of a file in bytes.
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// getDirSize returns the total size of all files in a directory.
func getDirSize(path string) int64 {
	var size int64

	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size
}
