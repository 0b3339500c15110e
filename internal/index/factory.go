package index

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend represents the index engine backend type.
type Backend string

const (
	// BackendSQLite uses SQLite FTS5 (default).
	// WAL mode allows concurrent multi-process access.
	BackendSQLite Backend = "sqlite"

	// BackendBleve uses Bleve v2.
	// BoltDB holds an exclusive file lock, single process only.
	BackendBleve Backend = "bleve"
)

// NewEngineWithBackend creates an Engine using the specified backend.
// The backend decides the on-disk layout under dataDir: a single
// index.db file for SQLite, an index.bleve directory for Bleve.
//
// backend options:
//   - "sqlite" (default): SQLite FTS5 with WAL mode
//   - "bleve": Bleve v2 (single-process only)
//
// If dataDir is empty, creates an in-memory engine for testing.
func NewEngineWithBackend(dataDir string, config Config, backend string) (Engine, error) {
	switch backend {
	case string(BackendSQLite), "":
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "index.db")
		}
		return NewSQLiteEngine(path, config)

	case string(BackendBleve):
		var path string
		if dataDir != "" {
			path = filepath.Join(dataDir, "index.bleve")
		}
		return NewBleveEngine(path, config)

	default:
		return nil, fmt.Errorf("unknown index backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// DetectBackend detects which backend an existing index uses based on
// its file layout. Returns an empty string if no index exists yet.
// Opening an index always uses the backend that built it, regardless
// of the configured default.
func DetectBackend(dataDir string) Backend {
	if fileExists(filepath.Join(dataDir, "index.db")) {
		return BackendSQLite
	}
	if dirExists(filepath.Join(dataDir, "index.bleve")) {
		return BackendBleve
	}
	return ""
}

// EnginePath returns the index path under dataDir for the backend.
func EnginePath(dataDir string, backend string) string {
	switch backend {
	case string(BackendBleve):
		return filepath.Join(dataDir, "index.bleve")
	default:
		return filepath.Join(dataDir, "index.db")
	}
}

// fileExists checks if a file exists at the given path.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists checks if a directory exists at the given path.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
