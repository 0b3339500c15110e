package ingest

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Operation is the kind of filesystem change observed on a corpus file.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

// String returns a human-readable operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// FileEvent is a single filesystem change, with paths relative to the
// corpus root.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// pendingEvent tracks a coalesced event along with the first operation
// seen for its path, which decides how later operations fold in.
type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// Debouncer coalesces bursts of filesystem events into batches.
// Editors save files with write-rename-chmod dances; a debounce window
// turns each dance into one event per path.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*pendingEvent
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

// NewDebouncer creates a debouncer that emits a batch after the window
// elapses with no further events.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, 10),
	}
}

// Add feeds an event into the debouncer, restarting the window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[event.Path]; ok {
		coalesced, keep := coalesce(prev.firstOp, prev.event, event)
		if !keep {
			// Created then deleted inside the window: nothing happened.
			delete(d.pending, event.Path)
		} else {
			prev.event = coalesced
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce folds an incoming operation into the pending event for the
// same path. Returns false when the pair cancels out.
func coalesce(firstOp Operation, current, incoming FileEvent) (FileEvent, bool) {
	switch {
	case firstOp == OpCreate && incoming.Operation == OpModify:
		// Still a create as far as the index is concerned.
		return current, true
	case firstOp == OpCreate && incoming.Operation == OpDelete:
		return FileEvent{}, false
	case firstOp == OpDelete && incoming.Operation == OpCreate:
		// Replaced in place; treat as a modify.
		incoming.Operation = OpModify
		return incoming, true
	default:
		return incoming, true
	}
}

// flush emits all pending events as one batch, ordered by path.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		batch = append(batch, pe.event)
	}
	sort.Slice(batch, func(i, j int) bool {
		return batch[i].Path < batch[j].Path
	})
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- batch:
	default:
		slog.Warn("debounce_batch_dropped", "events", len(batch))
	}
}

// Events returns the channel batches are delivered on.
func (d *Debouncer) Events() <-chan []FileEvent {
	return d.output
}

// Stop halts the debouncer and closes the output channel. Pending
// events are discarded. Safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
