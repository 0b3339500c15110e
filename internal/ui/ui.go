// Package ui provides terminal UI components: ingest progress rendering
// (rich TUI or plain text), index status display, and the interactive
// search view.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents an ingest stage.
type Stage int

const (
	// StageScanning is the corpus file discovery stage.
	StageScanning Stage = iota
	// StageParsing is the record parsing stage.
	StageParsing
	// StageIndexing is the index writing stage.
	StageIndexing
	// StageSweeping is the vanished-record removal stage.
	StageSweeping
	// StageComplete indicates the run is finished.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageParsing:
		return "Parsing"
	case StageIndexing:
		return "Indexing"
	case StageSweeping:
		return "Sweeping"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageParsing:
		return "PARSE"
	case StageIndexing:
		return "INDEX"
	case StageSweeping:
		return "SWEEP"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent represents an error during processing.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings tracks duration for each ingest stage.
type StageTimings struct {
	Scan  time.Duration
	Parse time.Duration
	Index time.Duration
	Sweep time.Duration
}

// CompletionStats contains final ingest statistics.
type CompletionStats struct {
	Scanned   int
	Indexed   int
	Unchanged int
	Deleted   int
	Failed    int
	Duration  time.Duration
	Stages    StageTimings
	Backend   string // Index backend name ("sqlite" or "bleve")
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	CorpusDir  string // Corpus root to display in the header
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithCorpusDir sets the corpus root path to display in the header.
func WithCorpusDir(dir string) ConfigOption {
	return func(c *Config) {
		c.CorpusDir = dir
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output: output,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// NewRenderer creates an appropriate renderer based on config and
// environment. It returns a TUI renderer for interactive terminals and
// a plain text renderer for CI environments, pipes, or when plain mode
// is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}

	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}

	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}

	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
