package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmuni/cividex/pkg/version"
)

// MarkerFile records the last passing preflight run in the data
// directory.
const MarkerFile = ".preflight-passed"

// NeedsCheck returns true if preflight checks should run: there is no
// marker, or the marker was written by a different build.
func NeedsCheck(dataDir string) bool {
	ver, _, err := readMarker(dataDir)
	if err != nil {
		return true
	}
	return ver != version.Version
}

// MarkPassed writes the marker recording that checks passed for this
// build.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}

	markerPath := filepath.Join(dataDir, MarkerFile)
	content := fmt.Sprintf("%s\n%s\n", version.Version, time.Now().Format(time.RFC3339))
	return os.WriteFile(markerPath, []byte(content), 0644)
}

// ClearMarker removes the marker file, forcing a re-check on next run.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if os.IsNotExist(err) {
		return nil // Already gone
	}
	if err != nil {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago the last passing run was recorded.
// Returns zero when there is no marker.
func MarkerAge(dataDir string) time.Duration {
	_, at, err := readMarker(dataDir)
	if err != nil {
		return 0
	}
	return time.Since(at)
}

func readMarker(dataDir string) (ver string, at time.Time, err error) {
	content, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return "", time.Time{}, err
	}

	lines := strings.SplitN(strings.TrimSpace(string(content)), "\n", 2)
	if len(lines) != 2 {
		return "", time.Time{}, fmt.Errorf("malformed marker file")
	}
	at, err = time.Parse(time.RFC3339, strings.TrimSpace(lines[1]))
	if err != nil {
		return "", time.Time{}, err
	}
	return strings.TrimSpace(lines[0]), at, nil
}
