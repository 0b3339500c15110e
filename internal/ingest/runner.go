package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openmuni/cividex/internal/config"
	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/store"
)

// ErrLocked is returned when another ingest run holds the lock.
var ErrLocked = errors.New("ingest already running")

// indexBatchSize is how many records are indexed per engine call.
const indexBatchSize = 64

// Stage identifies a phase of an ingest run.
type Stage string

const (
	StageScan  Stage = "scan"
	StageParse Stage = "parse"
	StageIndex Stage = "index"
	StageSweep Stage = "sweep"
)

// Event reports ingest progress to an optional observer.
type Event struct {
	Stage   Stage
	Current int
	Total   int
	Path    string
}

// Timings breaks an ingest run down by stage.
type Timings struct {
	Scan  time.Duration
	Parse time.Duration
	Index time.Duration
	Sweep time.Duration
}

// Result summarizes one ingest run.
type Result struct {
	// Scanned is the number of corpus files found.
	Scanned int

	// Indexed is the number of records written to the index.
	Indexed int

	// Unchanged is the number of files skipped because their content
	// hash matched the stored record.
	Unchanged int

	// Deleted is the number of records removed because their source
	// file vanished.
	Deleted int

	// Failed is the number of files that could not be read or parsed.
	// Failures are per-file; the run continues past them.
	Failed int

	// Duration is the total wall time of the run.
	Duration time.Duration

	// Timings holds per-stage durations.
	Timings Timings
}

// Runner executes ingest runs: scan the corpus, parse what changed,
// index it, and sweep records whose files are gone.
type Runner struct {
	cfg      *config.Config
	engine   index.Engine
	records  store.RecordStore
	progress func(Event)
	workers  int
}

// Option configures a Runner.
type Option func(*Runner)

// WithProgress registers a callback invoked as the run advances. The
// callback runs on ingest goroutines and must not block.
func WithProgress(fn func(Event)) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithWorkers overrides the parse parallelism.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// NewRunner validates dependencies and creates a runner.
func NewRunner(cfg *config.Config, engine index.Engine, records store.RecordStore, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("index engine is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}

	r := &Runner{
		cfg:     cfg,
		engine:  engine,
		records: records,
		workers: cfg.Index.Workers,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers <= 0 {
		r.workers = runtime.NumCPU()
	}
	return r, nil
}

// Run performs one ingest pass over the corpus. With force, the index
// is cleared first and every file is reindexed regardless of its
// content hash. Returns ErrLocked when another run is in progress.
func (r *Runner) Run(ctx context.Context, force bool) (*Result, error) {
	start := time.Now()

	lock := NewFileLock(r.cfg.Index.DataDir)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, ErrLocked
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("ingest_unlock_failed", "error", err)
		}
	}()

	slog.Info("ingest_started",
		"corpus", r.cfg.Corpus.Dir,
		"backend", r.cfg.Index.Backend,
		"force", force)

	result := &Result{}

	if force {
		if err := r.engine.Clear(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear index: %w", err)
		}
	}

	known, err := r.records.GetRecordsForReconciliation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load known records: %w", err)
	}

	scanStart := time.Now()
	files, err := r.scanCorpus(ctx, result)
	if err != nil {
		return nil, err
	}
	result.Scanned = len(files)
	result.Timings.Scan = time.Since(scanStart)

	parseStart := time.Now()
	changed, seen, err := r.parseFiles(ctx, files, known, force, result)
	if err != nil {
		return nil, err
	}
	result.Timings.Parse = time.Since(parseStart)

	indexStart := time.Now()
	if err := r.indexRecords(ctx, changed, result); err != nil {
		return nil, err
	}
	result.Timings.Index = time.Since(indexStart)

	sweepStart := time.Now()
	if err := r.sweepVanished(ctx, known, seen, result); err != nil {
		return nil, err
	}
	result.Timings.Sweep = time.Since(sweepStart)

	r.saveState(ctx)

	result.Duration = time.Since(start)
	slog.Info("ingest_complete",
		"scanned", result.Scanned,
		"indexed", result.Indexed,
		"unchanged", result.Unchanged,
		"deleted", result.Deleted,
		"failed", result.Failed,
		"scan_ms", result.Timings.Scan.Milliseconds(),
		"parse_ms", result.Timings.Parse.Milliseconds(),
		"index_ms", result.Timings.Index.Milliseconds(),
		"sweep_ms", result.Timings.Sweep.Milliseconds(),
		"total_ms", result.Duration.Milliseconds())

	return result, nil
}

// scanCorpus walks the corpus and collects candidate files. Walk
// errors count as failures but do not stop the run.
func (r *Runner) scanCorpus(ctx context.Context, result *Result) ([]*FileInfo, error) {
	results, err := Scan(ctx, &ScanOptions{
		RootDir:         r.cfg.Corpus.Dir,
		IncludePatterns: r.cfg.Corpus.Include,
		ExcludePatterns: r.cfg.Corpus.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan corpus: %w", err)
	}

	var files []*FileInfo
	for sr := range results {
		if sr.Error != nil {
			slog.Warn("scan_error", "error", sr.Error)
			result.Failed++
			continue
		}
		files = append(files, sr.File)
		r.emit(Event{Stage: StageScan, Current: len(files), Path: sr.File.Path})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// parseFiles reads and parses candidates in parallel, returning the
// records whose content changed plus the set of paths seen. Files that
// fail to read or parse keep their previously indexed record.
func (r *Runner) parseFiles(ctx context.Context, files []*FileInfo, known map[string]*store.Record, force bool, result *Result) ([]*store.Record, map[string]bool, error) {
	var (
		mu        sync.Mutex
		changed   []*store.Record
		seen      = make(map[string]bool, len(files))
		unchanged int
		failed    int
		done      int
	)

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, r.workers)

	for _, file := range files {
		file := file // Capture loop variable
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			rel := filepath.ToSlash(file.Path)

			content, err := os.ReadFile(file.AbsPath)
			if err != nil {
				slog.Warn("read_failed", "path", rel, "error", err)
				mu.Lock()
				seen[rel] = true
				failed++
				done++
				mu.Unlock()
				return nil
			}

			rec, err := ParseRecord(rel, content)
			if err != nil {
				slog.Warn("parse_failed", "path", rel, "error", err)
				mu.Lock()
				seen[rel] = true
				failed++
				done++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			seen[rel] = true
			done++
			cur := done
			if prev, ok := known[rel]; ok && !force && prev.ContentHash == rec.ContentHash {
				unchanged++
				mu.Unlock()
				return nil
			}
			changed = append(changed, rec)
			mu.Unlock()

			r.emit(Event{Stage: StageParse, Current: cur, Total: len(files), Path: rel})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Deterministic index order regardless of parse scheduling.
	sort.Slice(changed, func(i, j int) bool {
		return changed[i].Path < changed[j].Path
	})

	result.Unchanged = unchanged
	result.Failed += failed
	return changed, seen, nil
}

// indexRecords writes changed records to the engine and the metadata
// store in batches. The engine is written first so that a failed
// metadata save leaves a stale stored hash and the file reindexes on
// the next run.
func (r *Runner) indexRecords(ctx context.Context, records []*store.Record, result *Result) error {
	for i := 0; i < len(records); i += indexBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := i + indexBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[i:end]

		now := time.Now().UTC()
		docs := make([]*index.Document, len(batch))
		for j, rec := range batch {
			rec.IndexedAt = now
			docs[j] = &index.Document{
				ID:    rec.ID,
				Title: rec.Title,
				Body:  rec.Body,
			}
		}

		if err := r.engine.Index(ctx, docs); err != nil {
			return fmt.Errorf("index batch %d-%d: %w", i, end, err)
		}
		if err := r.records.SaveRecords(ctx, batch); err != nil {
			return fmt.Errorf("save batch %d-%d: %w", i, end, err)
		}

		result.Indexed += len(batch)
		r.emit(Event{Stage: StageIndex, Current: result.Indexed, Total: len(records)})
	}
	return nil
}

// sweepVanished removes records whose source files no longer exist.
func (r *Runner) sweepVanished(ctx context.Context, known map[string]*store.Record, seen map[string]bool, result *Result) error {
	var ids []string
	for path, rec := range known {
		if !seen[path] {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	if err := r.engine.Delete(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete vanished records from index: %w", err)
	}
	if err := r.records.DeleteRecords(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete vanished records: %w", err)
	}

	result.Deleted = len(ids)
	r.emit(Event{Stage: StageSweep, Current: len(ids), Total: len(ids)})
	return nil
}

// saveState records where and when the corpus was last ingested.
// State failures are logged, not fatal; the index itself is intact.
func (r *Runner) saveState(ctx context.Context) {
	states := map[string]string{
		store.StateKeyCorpusRoot:   r.cfg.Corpus.Dir,
		store.StateKeyIndexBackend: r.cfg.Index.Backend,
		store.StateKeyLastIngest:   time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range states {
		if err := r.records.SetState(ctx, key, value); err != nil {
			slog.Warn("state_save_failed", "key", key, "error", err)
		}
	}
}

// emit delivers a progress event if an observer is registered.
func (r *Runner) emit(e Event) {
	if r.progress != nil {
		r.progress(e)
	}
}

// Watch runs an incremental ingest pass for every debounced batch of
// filesystem changes until the context is canceled. Callers typically
// Run once before watching so the index starts current.
func (r *Runner) Watch(ctx context.Context) error {
	watcher, err := NewWatcher(r.cfg.Corpus.Dir, WatchOptions{
		DebounceWindow:  r.cfg.Index.WatchDebounceDuration(),
		ExcludePatterns: r.cfg.Corpus.Exclude,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- watcher.Start(ctx)
	}()

	slog.Info("watch_loop_started",
		"corpus", r.cfg.Corpus.Dir,
		"debounce", r.cfg.Index.WatchDebounceDuration())

	events := watcher.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case batch, ok := <-events:
			if !ok {
				// Channel closed; wait for Start to report why.
				events = nil
				continue
			}
			slog.Info("watch_batch", "events", len(batch))
			if _, err := r.Run(ctx, false); err != nil {
				switch {
				case errors.Is(err, ErrLocked):
					slog.Warn("watch_skip_locked")
				case errors.Is(err, context.Canceled):
					return err
				default:
					slog.Error("watch_reindex_failed", "error", err)
				}
			}
		case err := <-watcher.Errors():
			slog.Warn("watch_error", "error", err)
		}
	}
}
