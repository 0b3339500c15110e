package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/cividex/internal/config"
	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/ingest"
	"github.com/openmuni/cividex/internal/search"
	"github.com/openmuni/cividex/internal/store"
	"github.com/openmuni/cividex/internal/telemetry"
)

// Pipeline Integration Tests - These exercise the full flow with real
// components: corpus files on disk, an ingest pass into the engine and
// record store, and searches through the orchestrator.

// pipelineEnv wires every real component of the pipeline against a
// throwaway corpus directory.
type pipelineEnv struct {
	cfg      *config.Config
	engine   index.Engine
	records  *store.SQLiteStore
	runner   *ingest.Runner
	searcher *search.Orchestrator
	corpus   string
}

func newPipelineEnv(t *testing.T, backend string) *pipelineEnv {
	t.Helper()

	corpus := t.TempDir()

	cfg := config.NewConfig()
	cfg.Corpus.Dir = corpus
	cfg.Index.Backend = backend
	cfg.Index.DataDir = filepath.Join(corpus, ".cividex")
	cfg.Index.Workers = 2

	engine, err := index.NewEngineWithBackend("", index.DefaultConfig(), backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	records, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	runner, err := ingest.NewRunner(cfg, engine, records)
	require.NoError(t, err)

	searcher, err := search.NewFromEngine(engine)
	require.NoError(t, err)

	return &pipelineEnv{
		cfg:      cfg,
		engine:   engine,
		records:  records,
		runner:   runner,
		searcher: searcher,
		corpus:   corpus,
	}
}

func (e *pipelineEnv) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(e.corpus, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// seedCorpus lays down a small civic corpus covering every record kind.
func (e *pipelineEnv) seedCorpus(t *testing.T) {
	t.Helper()
	e.writeFile(t, "ordinances/ord-2024-17.md", `---
kind: ordinance
title: Noise Control Ordinance
number: "2024-17"
date: 2024-03-12
---
An ordinance regulating noise levels in residential districts.
Quiet hours run from ten at night until seven in the morning.
`)
	e.writeFile(t, "ordinances/ord-2024-21.md", `---
kind: ordinance
title: Zoning Amendment for the Riverfront
number: "2024-21"
date: 2024-05-02
---
An ordinance rezoning parcels along the riverfront from industrial
to mixed commercial use.
`)
	e.writeFile(t, "minutes/2024-03-19.md",
		"# Regular Session\n\nThe council discussed sidewalk repairs on Elm Street\nand approved the contract by a vote of five to two.\n")
	e.writeFile(t, "budgets/fy2025.md", `---
kind: budget
title: FY2025 Adopted Budget
date: 2024-06-30
---
Appropriations for the water utility fund increase four percent.
`)
	e.writeFile(t, "notices/reservoir.txt",
		"Public hearing on reservoir maintenance October 7 at the annex.\n")
}

func (e *pipelineEnv) ingest(t *testing.T) *ingest.Result {
	t.Helper()
	res, err := e.runner.Run(context.Background(), false)
	require.NoError(t, err)
	return res
}

// =============================================================================
// Ingest then search
// =============================================================================

func TestPipeline_IngestThenSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: an ingested civic corpus
	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	res := env.ingest(t)
	require.Equal(t, 5, res.Indexed)

	// When: searching for an ordinance by topic
	got, err := env.searcher.Search(context.Background(), "noise ordinance", 10)
	require.NoError(t, err)

	// Then: the stemmed variant answers without a fallback
	require.NotEmpty(t, got.Hits)
	assert.Equal(t, index.VariantStemmed, got.Variant)
	assert.False(t, got.Fallback)
	assert.Equal(t, ingest.RecordID("ordinances/ord-2024-17.md"), got.Hits[0].DocID)

	// And: the matching record is retrievable from the store
	rec, err := env.records.GetRecord(context.Background(), got.Hits[0].DocID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Noise Control Ordinance", rec.Title)
	assert.Equal(t, store.KindOrdinance, rec.Kind)
}

func TestPipeline_StemmedMatchesInflectedForms(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	env.ingest(t)

	// "repair" should reach the minutes mentioning "repairs".
	got, err := env.searcher.Search(context.Background(), "repair", 10)
	require.NoError(t, err)

	require.NotEmpty(t, got.Hits)
	assert.Equal(t, index.VariantStemmed, got.Variant)
	assert.Equal(t, ingest.RecordID("minutes/2024-03-19.md"), got.Hits[0].DocID)
}

func TestPipeline_PrefixFallbackOnPartialTerm(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	env.ingest(t)

	// When: searching a truncated term no stemmed token matches
	got, err := env.searcher.Search(context.Background(), "sidew", 10)
	require.NoError(t, err)

	// Then: the prefix variant answers via the fallback
	require.NotEmpty(t, got.Hits)
	assert.True(t, got.Fallback)
	assert.Equal(t, index.VariantPrefix, got.Variant)
	assert.Equal(t, ingest.RecordID("minutes/2024-03-19.md"), got.Hits[0].DocID)
}

func TestPipeline_MissRunsBothVariants(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	env.ingest(t)

	got, err := env.searcher.Search(context.Background(), "helicopter", 10)
	require.NoError(t, err)

	// A full miss still reports the fallback that ran and found nothing.
	assert.Empty(t, got.Hits)
	assert.True(t, got.Fallback)
	assert.Equal(t, index.VariantPrefix, got.Variant)
}

func TestPipeline_QuerySyntaxIsNeutralized(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	env.ingest(t)

	// Operator characters and keywords must not reach the engine.
	got, err := env.searcher.Search(context.Background(), `"noise" AND (control)`, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"noise", "control"}, got.Terms)
	require.NotEmpty(t, got.Hits)
	assert.Equal(t, ingest.RecordID("ordinances/ord-2024-17.md"), got.Hits[0].DocID)
}

func TestPipeline_EmptyAfterSanitizationShortCircuits(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	env.ingest(t)

	got, err := env.searcher.Search(context.Background(), `AND OR ()"*`, 10)
	require.NoError(t, err)

	assert.Empty(t, got.Hits)
	assert.Empty(t, got.Terms)
	assert.False(t, got.Fallback)
	assert.Empty(t, got.Variant)
}

// =============================================================================
// Incremental reingestion
// =============================================================================

func TestPipeline_ReingestPicksUpEditedFile(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	env.ingest(t)
	ctx := context.Background()

	before, err := env.searcher.Search(ctx, "skatepark", 10)
	require.NoError(t, err)
	require.Empty(t, before.Hits)

	// When: a minutes file gains new content and ingest runs again
	env.writeFile(t, "minutes/2024-03-19.md",
		"# Regular Session\n\nThe council discussed sidewalk repairs on Elm Street\nand funding for the new skatepark at Miller Field.\n")
	res := env.ingest(t)

	// Then: only the edited file is reindexed and the new term is live
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 4, res.Unchanged)

	after, err := env.searcher.Search(ctx, "skatepark", 10)
	require.NoError(t, err)
	require.NotEmpty(t, after.Hits)
	assert.Equal(t, ingest.RecordID("minutes/2024-03-19.md"), after.Hits[0].DocID)
}

func TestPipeline_ReingestSweepsVanishedFile(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	env.ingest(t)
	ctx := context.Background()

	// When: the notice is removed from the corpus
	require.NoError(t, os.Remove(filepath.Join(env.corpus, "notices", "reservoir.txt")))
	res := env.ingest(t)

	// Then: the sweep drops it from both the engine and the store
	assert.Equal(t, 1, res.Deleted)

	got, err := env.searcher.Search(ctx, "reservoir", 10)
	require.NoError(t, err)
	assert.Empty(t, got.Hits)

	rec, err := env.records.GetRecord(ctx, ingest.RecordID("notices/reservoir.txt"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPipeline_EmptyCorpusSearchesClean(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	res := env.ingest(t)
	require.Zero(t, res.Indexed)

	got, err := env.searcher.Search(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Empty(t, got.Hits)
}

// =============================================================================
// Backend parity
// =============================================================================

func TestPipeline_BleveBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "bleve")
	env.seedCorpus(t)
	res := env.ingest(t)
	require.Equal(t, 5, res.Indexed)
	ctx := context.Background()

	// Stemmed search behaves the same as the sqlite backend.
	direct, err := env.searcher.Search(ctx, "appropriations budget", 10)
	require.NoError(t, err)
	require.NotEmpty(t, direct.Hits)
	assert.Equal(t, index.VariantStemmed, direct.Variant)
	assert.Equal(t, ingest.RecordID("budgets/fy2025.md"), direct.Hits[0].DocID)

	// So does the prefix fallback.
	partial, err := env.searcher.Search(ctx, "sidew", 10)
	require.NoError(t, err)
	require.NotEmpty(t, partial.Hits)
	assert.True(t, partial.Fallback)
	assert.Equal(t, index.VariantPrefix, partial.Variant)
}

// =============================================================================
// Concurrency and metrics
// =============================================================================

func TestPipeline_ConcurrentSearches(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	env.ingest(t)

	queries := []string{"noise", "sidewalk", "sidew", "water utility", "reservoir"}

	var wg sync.WaitGroup
	errCh := make(chan error, len(queries)*4)
	for i := 0; i < 4; i++ {
		for _, q := range queries {
			wg.Add(1)
			go func(q string) {
				defer wg.Done()
				if _, err := env.searcher.Search(context.Background(), q, 10); err != nil {
					errCh <- err
				}
			}(q)
		}
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent search failed: %v", err)
	}
}

func TestPipeline_MetricsObserveOutcomes(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	env.ingest(t)

	metrics := telemetry.NewQueryMetrics(nil)
	defer func() { _ = metrics.Close() }()

	searcher, err := search.NewFromEngine(env.engine, search.WithMetrics(metrics))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = searcher.Search(ctx, "noise", 10)
	require.NoError(t, err)
	_, err = searcher.Search(ctx, "sidew", 10)
	require.NoError(t, err)
	_, err = searcher.Search(ctx, "helicopter", 10)
	require.NoError(t, err)

	// A fallback that still finds nothing counts as zero-result,
	// not as a fallback success.
	snap := metrics.GetSnapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, int64(1), snap.FallbackCount)
	assert.Contains(t, snap.ZeroResultQueries, "helicopter")
}

func TestPipeline_SearchHonorsCanceledContext(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	env.ingest(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.searcher.Search(ctx, "noise", 10)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Ingest progress
// =============================================================================

func TestPipeline_ProgressEventsCoverAllStages(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)

	var mu sync.Mutex
	stages := map[ingest.Stage]bool{}
	runner, err := ingest.NewRunner(env.cfg, env.engine, env.records,
		ingest.WithProgress(func(e ingest.Event) {
			mu.Lock()
			stages[e.Stage] = true
			mu.Unlock()
		}))
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), false)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, stages[ingest.StageScan])
	assert.True(t, stages[ingest.StageParse])
	assert.True(t, stages[ingest.StageIndex])
	assert.True(t, stages[ingest.StageSweep])
}

func TestPipeline_ForceReingestAfterClear(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := newPipelineEnv(t, "sqlite")
	env.seedCorpus(t)
	env.ingest(t)
	ctx := context.Background()

	// When: the engine loses its contents but the store still knows
	// the records
	require.NoError(t, env.engine.Clear(ctx))

	miss, err := env.searcher.Search(ctx, "noise", 10)
	require.NoError(t, err)
	require.Empty(t, miss.Hits)

	// Then: a forced run rebuilds the index from the corpus
	res, err := env.runner.Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Indexed)

	hit, err := env.searcher.Search(ctx, "noise", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hit.Hits)

	stats, err := env.engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.DocumentCount)
}
