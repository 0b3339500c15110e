package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs line-oriented progress for CI and pipes.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	stage  Stage
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out: cfg.Output,
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = event.Stage

	// Format: [STAGE] current/total - message or file
	var msg string
	if event.Message != "" {
		msg = event.Message
	} else if event.CurrentFile != "" {
		msg = event.CurrentFile
	}

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}

	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files scanned, %d indexed, %d unchanged, %d deleted in %s",
		stats.Scanned, stats.Indexed, stats.Unchanged, stats.Deleted,
		stats.Duration.Round(100*time.Millisecond))

	if stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed)", stats.Failed)
	}

	_, _ = fmt.Fprintln(r.out)

	// Show the stage breakdown when timings were collected
	if stats.Stages.Scan > 0 || stats.Stages.Index > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		_, _ = fmt.Fprintf(r.out, "  Scan:  %s (files discovered)\n", stats.Stages.Scan.Round(100*time.Millisecond))
		_, _ = fmt.Fprintf(r.out, "  Parse: %s (records parsed)\n", stats.Stages.Parse.Round(100*time.Millisecond))
		if stats.Stages.Index > 0 && stats.Indexed > 0 {
			perSec := float64(stats.Indexed) / stats.Stages.Index.Seconds()
			_, _ = fmt.Fprintf(r.out, "  Index: %s (%d records @ %.1f/sec)\n",
				stats.Stages.Index.Round(100*time.Millisecond), stats.Indexed, perSec)
		} else {
			_, _ = fmt.Fprintf(r.out, "  Index: %s\n", stats.Stages.Index.Round(100*time.Millisecond))
		}
		_, _ = fmt.Fprintf(r.out, "  Sweep: %s (vanished records)\n", stats.Stages.Sweep.Round(100*time.Millisecond))
	}

	if stats.Backend != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "Backend: %s\n", stats.Backend)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
