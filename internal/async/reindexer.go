package async

import (
	"context"
	"log/slog"
	"sync"

	"github.com/openmuni/cividex/internal/ingest"
)

// RunFunc performs one ingest run. (*ingest.Runner).Run satisfies it.
type RunFunc func(ctx context.Context, force bool) (*ingest.Result, error)

// Reindexer runs at most one background ingest at a time and tracks
// its progress. Jobs run on their own context, detached from the
// triggering request, so an admin call can return immediately while
// the run proceeds; Stop cancels whatever is in flight.
type Reindexer struct {
	run    RunFunc
	status *jobStatus

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	onDone  []func(*ingest.Result, error)
}

// NewReindexer creates a reindexer over the given run function.
func NewReindexer(run RunFunc) *Reindexer {
	return &Reindexer{
		run:    run,
		status: newJobStatus(),
	}
}

// OnDone registers a callback invoked after each run completes,
// successful or not. Callbacks run on the job goroutine and must not
// block. Must be called before the first Trigger.
func (r *Reindexer) OnDone(fn func(*ingest.Result, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDone = append(r.onDone, fn)
}

// Trigger starts a background run. Returns false when a run is
// already in progress; the caller can report the conflict along with
// the current Status.
func (r *Reindexer) Trigger(force bool) bool {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.running = true
	r.cancel = cancel
	r.doneCh = make(chan struct{})
	done := r.doneCh
	callbacks := r.onDone
	r.mu.Unlock()

	r.status.start(force)
	slog.Info("reindex_job_started", "force", force)

	go func() {
		defer cancel()
		res, err := r.run(ctx, force)
		r.status.finish(res, err)

		if err != nil {
			slog.Error("reindex_job_failed", "error", err)
		} else {
			slog.Info("reindex_job_complete",
				"indexed", res.Indexed,
				"deleted", res.Deleted,
				"duration_ms", res.Duration.Milliseconds())
		}

		// Callbacks run before the job is marked done so Wait callers
		// observe their effects.
		for _, fn := range callbacks {
			fn(res, err)
		}

		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(done)
	}()

	return true
}

// Observe feeds one ingest progress event into the job tracker. Safe
// to call from ingest goroutines; events arriving while no job is
// running are ignored.
func (r *Reindexer) Observe(e ingest.Event) {
	if r.status.running() {
		r.status.observe(e)
	}
}

// IsRunning reports whether a job is currently in flight.
func (r *Reindexer) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Status returns a snapshot of the current or most recent job.
func (r *Reindexer) Status() JobSnapshot {
	return r.status.snapshot()
}

// Wait blocks until the in-flight job finishes. Returns immediately
// when no job is running.
func (r *Reindexer) Wait() {
	r.mu.Lock()
	done := r.doneCh
	r.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Stop cancels any in-flight job and waits for it to finish. The
// ingest run is restartable, so cancellation mid-run is safe: the
// next run picks up the remaining files via content hashing.
func (r *Reindexer) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.doneCh
	r.mu.Unlock()

	cancel()
	<-done
}
