package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/cividex/internal/telemetry"
)

// Helper to create an in-memory test store with cleanup
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecords() []*Record {
	return []*Record{
		{
			ID:          "a1",
			Kind:        KindOrdinance,
			Number:      "2024-17",
			Title:       "Ordinance 2024-17 Noise Control",
			Body:        "An ordinance regulating noise levels in residential districts.",
			Date:        time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
			Path:        "ordinances/2024/ord-2024-17.md",
			ContentHash: "hash-a1",
		},
		{
			ID:          "b2",
			Kind:        KindMinutes,
			Title:       "Council Minutes March 2024",
			Body:        "The council discussed sidewalk repairs on Elm Street.",
			Date:        time.Date(2024, 3, 19, 0, 0, 0, 0, time.UTC),
			Path:        "minutes/2024/2024-03-19.md",
			ContentHash: "hash-b2",
		},
		{
			ID:          "c3",
			Kind:        KindBudget,
			Title:       "FY2025 Adopted Budget",
			Body:        "General fund appropriations for fiscal year 2025.",
			FiscalYear:  2025,
			Path:        "budgets/fy2025.md",
			ContentHash: "hash-c3",
		},
	}
}

// =============================================================================
// TS-01: Record CRUD
// =============================================================================

func TestSQLiteStore_RecordCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: a batch of records
	require.NoError(t, s.SaveRecords(ctx, sampleRecords()))

	// When: retrieving one by ID
	got, err := s.GetRecord(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)

	// Then: every field round-trips
	assert.Equal(t, KindOrdinance, got.Kind)
	assert.Equal(t, "2024-17", got.Number)
	assert.Equal(t, "Ordinance 2024-17 Noise Control", got.Title)
	assert.Contains(t, got.Body, "noise levels")
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), got.Date)
	assert.Equal(t, "ordinances/2024/ord-2024-17.md", got.Path)
	assert.Equal(t, "hash-a1", got.ContentHash)
	assert.False(t, got.IndexedAt.IsZero())

	// And: fiscal year survives for budgets
	budget, err := s.GetRecord(ctx, "c3")
	require.NoError(t, err)
	require.NotNil(t, budget)
	assert.Equal(t, 2025, budget.FiscalYear)
	assert.True(t, budget.Date.IsZero())
}

func TestSQLiteStore_GetRecord_NotFound(t *testing.T) {
	s := newTestStore(t)

	// When: getting a non-existent record
	got, err := s.GetRecord(context.Background(), "missing")

	// Then: nil is returned without error
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_SaveIsUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecords(ctx, sampleRecords()))

	// When: saving the same ID with changed content
	updated := sampleRecords()[0]
	updated.Title = "Ordinance 2024-17 Noise Control (Amended)"
	updated.ContentHash = "hash-a1-v2"
	require.NoError(t, s.SaveRecords(ctx, []*Record{updated}))

	// Then: the record is replaced, not duplicated
	got, err := s.GetRecord(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Ordinance 2024-17 Noise Control (Amended)", got.Title)
	assert.Equal(t, "hash-a1-v2", got.ContentHash)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// =============================================================================
// TS-02: Batch Retrieval
// =============================================================================

func TestSQLiteStore_GetRecords_PreservesInputOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecords(ctx, sampleRecords()))

	// When: fetching a batch in hit order, with an unknown ID mixed in
	got, err := s.GetRecords(ctx, []string{"c3", "missing", "a1"})
	require.NoError(t, err)

	// Then: results follow the input order and skip unknowns
	require.Len(t, got, 2)
	assert.Equal(t, "c3", got[0].ID)
	assert.Equal(t, "a1", got[1].ID)
}

func TestSQLiteStore_GetRecords_EmptyInput(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_GetRecordByPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecords(ctx, sampleRecords()))

	got, err := s.GetRecordByPath(ctx, "budgets/fy2025.md")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c3", got.ID)

	missing, err := s.GetRecordByPath(ctx, "nope.md")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// =============================================================================
// TS-03: Listing and Paging
// =============================================================================

func TestSQLiteStore_ListRecords_Paging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: five ordinances with ordered IDs
	var records []*Record
	for i := 1; i <= 5; i++ {
		records = append(records, &Record{
			ID:          fmt.Sprintf("ord-%02d", i),
			Kind:        KindOrdinance,
			Title:       fmt.Sprintf("Ordinance %d", i),
			Body:        "text",
			Path:        fmt.Sprintf("ordinances/ord-%02d.md", i),
			ContentHash: fmt.Sprintf("h%d", i),
		})
	}
	require.NoError(t, s.SaveRecords(ctx, records))

	// When: paging with limit 2
	page1, cursor1, err := s.ListRecords(ctx, "", "", 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "ord-01", page1[0].ID)
	assert.Equal(t, "ord-02", cursor1)

	page2, cursor2, err := s.ListRecords(ctx, "", cursor1, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "ord-03", page2[0].ID)
	assert.Equal(t, "ord-04", cursor2)

	// Then: the final page has no next cursor
	page3, cursor3, err := s.ListRecords(ctx, "", cursor2, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "ord-05", page3[0].ID)
	assert.Empty(t, cursor3)
}

func TestSQLiteStore_ListRecords_KindFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecords(ctx, sampleRecords()))

	got, cursor, err := s.ListRecords(ctx, KindMinutes, "", 10)
	require.NoError(t, err)
	assert.Empty(t, cursor)
	require.Len(t, got, 1)
	assert.Equal(t, "b2", got[0].ID)
}

// =============================================================================
// TS-04: Deletion
// =============================================================================

func TestSQLiteStore_DeleteRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecords(ctx, sampleRecords()))

	// When: deleting two IDs, one of them unknown
	require.NoError(t, s.DeleteRecords(ctx, []string{"a1", "missing"}))

	// Then: only the existing record is removed
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := s.GetRecord(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_DeleteAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecords(ctx, sampleRecords()))
	require.NoError(t, s.SetState(ctx, StateKeyIndexBackend, "sqlite"))

	require.NoError(t, s.DeleteAll(ctx))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// And: state survives a record wipe
	backend, err := s.GetState(ctx, StateKeyIndexBackend)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", backend)
}

// =============================================================================
// TS-05: Reconciliation Projection
// =============================================================================

func TestSQLiteStore_GetRecordsForReconciliation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecords(ctx, sampleRecords()))

	// When: loading the reconciliation projection
	byPath, err := s.GetRecordsForReconciliation(ctx)
	require.NoError(t, err)

	// Then: every record is keyed by path with id and hash only
	require.Len(t, byPath, 3)
	r := byPath["minutes/2024/2024-03-19.md"]
	require.NotNil(t, r)
	assert.Equal(t, "b2", r.ID)
	assert.Equal(t, "hash-b2", r.ContentHash)
	assert.Empty(t, r.Body, "projection must not load bodies")
}

// =============================================================================
// TS-06: Statistics
// =============================================================================

func TestSQLiteStore_CountByKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRecords(ctx, sampleRecords()))

	counts, err := s.CountByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[KindOrdinance])
	assert.Equal(t, 1, counts[KindMinutes])
	assert.Equal(t, 1, counts[KindBudget])
	assert.Zero(t, counts[KindNotice])
}

// =============================================================================
// TS-07: State Key-Value Store
// =============================================================================

func TestSQLiteStore_State(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: an unset key reads as empty
	v, err := s.GetState(ctx, StateKeyCorpusRoot)
	require.NoError(t, err)
	assert.Empty(t, v)

	// When: setting and overwriting
	require.NoError(t, s.SetState(ctx, StateKeyCorpusRoot, "/var/civic/records"))
	require.NoError(t, s.SetState(ctx, StateKeyCorpusRoot, "/srv/records"))

	// Then: the latest value wins
	v, err = s.GetState(ctx, StateKeyCorpusRoot)
	require.NoError(t, err)
	assert.Equal(t, "/srv/records", v)
}

// =============================================================================
// TS-08: Persistence Across Reopen
// =============================================================================

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), ".cividex", "records.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.SaveRecords(ctx, sampleRecords()))
	require.NoError(t, s1.SetState(ctx, StateKeyIndexBackend, "sqlite"))
	require.NoError(t, s1.Close())

	// When: reopening the same file
	s2, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	// Then: records and state are still there
	count, err := s2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	backend, err := s2.GetState(ctx, StateKeyIndexBackend)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", backend)
}

func TestSQLiteStore_CloseIsIdempotent(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

// =============================================================================
// TS-09: Shared Database With Telemetry
// =============================================================================

func TestSQLiteStore_SharesDBWithTelemetry(t *testing.T) {
	s := newTestStore(t)

	// When: building a telemetry store over the same connection
	metricsStore, err := telemetry.NewSQLiteMetricsStore(s.DB())
	require.NoError(t, err)

	// Then: the telemetry tables were created by the migrations
	require.NoError(t, metricsStore.SaveOutcomeCounts("2025-06-01",
		map[telemetry.Outcome]int64{telemetry.OutcomeStemmed: 2}))

	counts, err := metricsStore.GetOutcomeCounts("2025-06-01", "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[telemetry.OutcomeStemmed])
}

// =============================================================================
// TS-10: Kind Helpers
// =============================================================================

func TestKindValidation(t *testing.T) {
	for _, k := range Kinds() {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, Kind("memo").Valid())
	assert.False(t, Kind("").Valid())
}
