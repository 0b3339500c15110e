// Package async runs ingest work behind serving surfaces. A corpus
// reindex can take minutes, so the HTTP admin API hands the run to a
// background goroutine here and answers immediately; callers poll the
// job snapshot for progress.
package async

import (
	"sync"
	"time"

	"github.com/openmuni/cividex/internal/ingest"
)

// JobState is the lifecycle state of a reindex job.
type JobState string

const (
	// StateIdle means no reindex has been triggered yet.
	StateIdle JobState = "idle"
	// StateRunning means a reindex is in progress.
	StateRunning JobState = "running"
	// StateDone means the last reindex completed successfully.
	StateDone JobState = "done"
	// StateFailed means the last reindex ended with an error.
	StateFailed JobState = "failed"
)

// JobSnapshot is an immutable view of the current or most recent
// reindex job, shaped for JSON status responses.
type JobSnapshot struct {
	State JobState `json:"state"`
	Force bool     `json:"force,omitempty"`

	// Stage and counters reflect the run's live progress.
	Stage   string `json:"stage,omitempty"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`

	StartedAt      string `json:"started_at,omitempty"`
	FinishedAt     string `json:"finished_at,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`

	// Result counters are populated once the run completes.
	Scanned    int   `json:"scanned,omitempty"`
	Indexed    int   `json:"indexed,omitempty"`
	Unchanged  int   `json:"unchanged,omitempty"`
	Deleted    int   `json:"deleted,omitempty"`
	Failed     int   `json:"failed,omitempty"`
	DurationMS int64 `json:"duration_ms,omitempty"`

	Error string `json:"error,omitempty"`
}

// jobStatus is the mutable tracker behind JobSnapshot. Thread-safe.
type jobStatus struct {
	mu sync.RWMutex

	state      JobState
	force      bool
	stage      ingest.Stage
	current    int
	total      int
	startedAt  time.Time
	finishedAt time.Time
	result     *ingest.Result
	errMsg     string
}

func newJobStatus() *jobStatus {
	return &jobStatus{state: StateIdle}
}

// start resets the tracker for a fresh run.
func (j *jobStatus) start(force bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.state = StateRunning
	j.force = force
	j.stage = ""
	j.current = 0
	j.total = 0
	j.startedAt = time.Now()
	j.finishedAt = time.Time{}
	j.result = nil
	j.errMsg = ""
}

// observe records one ingest progress event.
func (j *jobStatus) observe(e ingest.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stage = e.Stage
	j.current = e.Current
	j.total = e.Total
}

// finish records the run's terminal outcome.
func (j *jobStatus) finish(res *ingest.Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.finishedAt = time.Now()
	if err != nil {
		j.state = StateFailed
		j.errMsg = err.Error()
		return
	}
	j.state = StateDone
	j.result = res
}

func (j *jobStatus) running() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state == StateRunning
}

// snapshot returns an immutable copy of the current state.
func (j *jobStatus) snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := JobSnapshot{
		State:   j.state,
		Force:   j.force,
		Stage:   string(j.stage),
		Current: j.current,
		Total:   j.total,
		Error:   j.errMsg,
	}
	if !j.startedAt.IsZero() {
		s.StartedAt = j.startedAt.Format(time.RFC3339)
		end := j.finishedAt
		if end.IsZero() {
			end = time.Now()
		}
		s.ElapsedSeconds = int(end.Sub(j.startedAt).Seconds())
	}
	if !j.finishedAt.IsZero() {
		s.FinishedAt = j.finishedAt.Format(time.RFC3339)
	}
	if j.result != nil {
		s.Scanned = j.result.Scanned
		s.Indexed = j.result.Indexed
		s.Unchanged = j.result.Unchanged
		s.Deleted = j.result.Deleted
		s.Failed = j.result.Failed
		s.DurationMS = j.result.Duration.Milliseconds()
	}
	return s
}
