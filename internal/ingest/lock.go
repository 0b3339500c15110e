package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is the lock file kept under the index data directory.
// It guards against two ingest runs touching the same index at once,
// whether from concurrent CLI invocations or a watch loop overlapping
// a manual reindex.
const LockFileName = "ingest.lock"

// FileLock is an advisory file lock around ingest runs.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock rooted in the given data directory.
func NewFileLock(dataDir string) *FileLock {
	path := filepath.Join(dataDir, LockFileName)
	return &FileLock{
		path:  path,
		flock: flock.New(path),
	}
}

// TryLock attempts to acquire the lock without blocking. It returns
// false when another process holds the lock.
func (fl *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	locked, err := fl.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	fl.locked = locked
	return locked, nil
}

// Unlock releases the lock. Safe to call when the lock was never
// acquired.
func (fl *FileLock) Unlock() error {
	if !fl.locked {
		return nil
	}
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	fl.locked = false
	return nil
}

// Path returns the lock file path.
func (fl *FileLock) Path() string {
	return fl.path
}
