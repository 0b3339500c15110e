package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/openmuni/cividex/internal/config"
	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/search"
	"github.com/openmuni/cividex/internal/store"
	"github.com/openmuni/cividex/internal/telemetry"
)

// errNoIndex is returned by commands that need an existing index.
var errNoIndex = fmt.Errorf("no index found. Run 'cividex index' first")

// loadCorpusConfig resolves the corpus root upward from startDir and
// loads its configuration.
func loadCorpusConfig(startDir string) (string, *config.Config, error) {
	root, err := config.FindCorpusRoot(startDir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to find corpus root: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return root, cfg, nil
}

// engineConfig maps search tuning from the configuration onto the
// index engine.
func engineConfig(cfg *config.Config) index.Config {
	return index.Config{
		TitleWeight:   cfg.Search.TitleWeight,
		SnippetTokens: cfg.Search.SnippetTokens,
	}
}

// recordsPath returns the record store location under dataDir.
func recordsPath(dataDir string) string {
	return filepath.Join(dataDir, "records.db")
}

// openExistingIndex opens the engine and record store of an already
// built index. The backend is detected from the index files so an
// index built with either backend opens regardless of configuration.
func openExistingIndex(cfg *config.Config) (index.Engine, *store.SQLiteStore, error) {
	dataDir := cfg.Index.DataDir

	backend := index.DetectBackend(dataDir)
	if backend == "" {
		return nil, nil, errNoIndex
	}

	engine, err := index.NewEngineWithBackend(dataDir, engineConfig(cfg), string(backend))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}

	records, err := store.NewSQLiteStore(recordsPath(dataDir))
	if err != nil {
		_ = engine.Close()
		return nil, nil, fmt.Errorf("failed to open record store: %w", err)
	}

	return engine, records, nil
}

// newSearcher builds the two-pass search orchestrator over an open
// engine, with limits from the configuration and optional metrics.
func newSearcher(engine index.Engine, cfg *config.Config, metrics *telemetry.QueryMetrics) (*search.Orchestrator, error) {
	opts := []search.Option{
		search.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
	}
	if metrics != nil {
		opts = append(opts, search.WithMetrics(metrics))
	}
	return search.NewFromEngine(engine, opts...)
}
