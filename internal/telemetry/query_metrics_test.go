package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TS-01: Outcome Classification
// =============================================================================

func TestQueryEventOutcome(t *testing.T) {
	tests := []struct {
		name  string
		event QueryEvent
		want  Outcome
	}{
		{
			name:  "stemmed hits",
			event: QueryEvent{Terms: []string{"zoning"}, ResultCount: 3},
			want:  OutcomeStemmed,
		},
		{
			name:  "fallback hits",
			event: QueryEvent{Terms: []string{"ordin"}, ResultCount: 2, Fallback: true},
			want:  OutcomeFallback,
		},
		{
			name:  "zero results",
			event: QueryEvent{Terms: []string{"xyzzy"}, ResultCount: 0},
			want:  OutcomeZero,
		},
		{
			name:  "empty after sanitization",
			event: QueryEvent{Query: `"*-^`, Terms: nil},
			want:  OutcomeEmpty,
		},
		{
			name:  "error wins over everything",
			event: QueryEvent{Terms: []string{"budget"}, ResultCount: 5, Fallback: true, Failed: true},
			want:  OutcomeError,
		},
		{
			name:  "zero results via fallback still zero",
			event: QueryEvent{Terms: []string{"xyzzy"}, ResultCount: 0, Fallback: true},
			want:  OutcomeZero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.Outcome())
		})
	}
}

func TestQueryEventIsZeroResult(t *testing.T) {
	// Given: an event with terms but no results
	event := QueryEvent{Terms: []string{"nothing"}, ResultCount: 0}

	// Then: it is a zero-result query
	assert.True(t, event.IsZeroResult())

	// And: empty queries are not counted as zero-result
	empty := QueryEvent{Terms: nil}
	assert.False(t, empty.IsZeroResult())
}

// =============================================================================
// TS-02: Latency Buckets
// =============================================================================

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP100},
		{99 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{499 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{2 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.latency))
		})
	}
}

// =============================================================================
// TS-03: Circular Buffer
// =============================================================================

func TestCircularBufferFIFO(t *testing.T) {
	// Given: a buffer with capacity 3
	buf := NewCircularBuffer[string](3)

	// When: adding fewer items than capacity
	buf.Add("a")
	buf.Add("b")

	// Then: items come back oldest first
	assert.Equal(t, []string{"a", "b"}, buf.Items())
	assert.Equal(t, 2, buf.Size())
}

func TestCircularBufferEviction(t *testing.T) {
	// Given: a full buffer
	buf := NewCircularBuffer[int](3)
	buf.Add(1)
	buf.Add(2)
	buf.Add(3)

	// When: adding past capacity
	buf.Add(4)
	buf.Add(5)

	// Then: oldest items are evicted, order preserved
	assert.Equal(t, []int{3, 4, 5}, buf.Items())
	assert.Equal(t, 3, buf.Size())
}

func TestCircularBufferClear(t *testing.T) {
	buf := NewCircularBuffer[string](5)
	buf.Add("x")
	buf.Add("y")

	buf.Clear()

	assert.Equal(t, 0, buf.Size())
	assert.Empty(t, buf.Items())
}

func TestCircularBufferInvalidCapacity(t *testing.T) {
	// Given: a non-positive capacity
	buf := NewCircularBuffer[string](0)

	// Then: the default capacity is used
	for i := 0; i < 150; i++ {
		buf.Add("q")
	}
	assert.Equal(t, 100, buf.Size())
}

// =============================================================================
// TS-04: Recording and Snapshots
// =============================================================================

func TestRecordAggregatesOutcomes(t *testing.T) {
	// Given: a metrics collector without persistence
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{FlushInterval: 0})
	defer m.Close()

	// When: recording a mix of outcomes
	m.Record(QueryEvent{Query: "noise ordinance", Terms: []string{"noise", "ordinance"}, ResultCount: 4, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "ordin", Terms: []string{"ordin"}, ResultCount: 2, Fallback: true, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Query: "xyzzy", Terms: []string{"xyzzy"}, ResultCount: 0, Latency: 8 * time.Millisecond})
	m.Record(QueryEvent{Query: `"""`, Terms: nil})
	m.Record(QueryEvent{Query: "budget", Terms: []string{"budget"}, Failed: true})

	// Then: the snapshot reflects every outcome
	snap := m.GetSnapshot()
	assert.Equal(t, int64(5), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.OutcomeCounts[OutcomeStemmed])
	assert.Equal(t, int64(1), snap.OutcomeCounts[OutcomeFallback])
	assert.Equal(t, int64(1), snap.OutcomeCounts[OutcomeZero])
	assert.Equal(t, int64(1), snap.OutcomeCounts[OutcomeEmpty])
	assert.Equal(t, int64(1), snap.OutcomeCounts[OutcomeError])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, int64(1), snap.FallbackCount)
	assert.Equal(t, int64(1), snap.ErrorCount)
}

func TestRecordTracksZeroResultQueries(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{FlushInterval: 0})
	defer m.Close()

	// When: recording zero-result queries
	m.Record(QueryEvent{Query: "flooble permits", Terms: []string{"flooble", "permits"}, ResultCount: 0})
	m.Record(QueryEvent{Query: "zorp variance", Terms: []string{"zorp", "variance"}, ResultCount: 0})

	// Then: the raw queries are kept for review
	snap := m.GetSnapshot()
	assert.Equal(t, []string{"flooble permits", "zorp variance"}, snap.ZeroResultQueries)
}

func TestRecordTracksTopTerms(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{FlushInterval: 0})
	defer m.Close()

	// When: the same term appears across queries in different casing
	m.Record(QueryEvent{Query: "Zoning map", Terms: []string{"Zoning", "map"}, ResultCount: 1})
	m.Record(QueryEvent{Query: "zoning appeal", Terms: []string{"zoning", "appeal"}, ResultCount: 1})
	m.Record(QueryEvent{Query: "ZONING board", Terms: []string{"ZONING", "board"}, ResultCount: 1})

	// Then: counts are case-folded and sorted descending
	snap := m.GetSnapshot()
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, "zoning", snap.TopTerms[0].Term)
	assert.Equal(t, int64(3), snap.TopTerms[0].Count)
}

func TestRecordSkipsShortTerms(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{FlushInterval: 0})
	defer m.Close()

	// When: terms shorter than 3 characters are recorded
	m.Record(QueryEvent{Query: "rt 9 widening", Terms: []string{"rt", "9", "widening"}, ResultCount: 1})

	// Then: only the meaningful term is tracked
	snap := m.GetSnapshot()
	require.Len(t, snap.TopTerms, 1)
	assert.Equal(t, "widening", snap.TopTerms[0].Term)
}

func TestRecordTracksLatencyDistribution(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{FlushInterval: 0})
	defer m.Close()

	m.Record(QueryEvent{Query: "a1", Terms: []string{"one"}, ResultCount: 1, Latency: 2 * time.Millisecond})
	m.Record(QueryEvent{Query: "a2", Terms: []string{"two"}, ResultCount: 1, Latency: 3 * time.Millisecond})
	m.Record(QueryEvent{Query: "a3", Terms: []string{"three"}, ResultCount: 1, Latency: 200 * time.Millisecond})

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP500])
}

// =============================================================================
// TS-05: Repetition Tracking
// =============================================================================

func TestExactRepeatDetection(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{FlushInterval: 0})
	defer m.Close()

	// When: the same query is issued three times (case and whitespace vary)
	m.Record(QueryEvent{Query: "noise ordinance", Terms: []string{"noise", "ordinance"}, ResultCount: 2})
	m.Record(QueryEvent{Query: "Noise Ordinance", Terms: []string{"Noise", "Ordinance"}, ResultCount: 2})
	m.Record(QueryEvent{Query: "  noise ordinance  ", Terms: []string{"noise", "ordinance"}, ResultCount: 2})
	m.Record(QueryEvent{Query: "parking fines", Terms: []string{"parking", "fines"}, ResultCount: 1})

	// Then: two repeats of the normalized query are detected
	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.ExactRepeatCount)
	assert.Equal(t, int64(2), snap.UniqueQueryCount)
	assert.InDelta(t, 0.5, snap.ExactRepeatRate, 0.001)
}

// =============================================================================
// TS-06: Percentages and Summary
// =============================================================================

func TestSnapshotPercentages(t *testing.T) {
	// Given: an empty snapshot
	empty := &Snapshot{}
	assert.Equal(t, 0.0, empty.ZeroResultPercentage())
	assert.Equal(t, 0.0, empty.FallbackPercentage())
	assert.Equal(t, "No queries recorded", empty.Summary())

	// Given: a populated snapshot
	snap := &Snapshot{TotalQueries: 10, ZeroResultCount: 3, FallbackCount: 2}
	assert.InDelta(t, 30.0, snap.ZeroResultPercentage(), 0.001)
	assert.InDelta(t, 20.0, snap.FallbackPercentage(), 0.001)
	assert.Equal(t, int64(5), snap.FallbackAttemptCount())
	assert.Equal(t, "10 queries, 20.0% fallback, 30.0% zero-result", snap.Summary())
}

// =============================================================================
// TS-07: Persistence via Store
// =============================================================================

// mockStore records calls for flush verification.
type mockStore struct {
	outcomeCounts map[Outcome]int64
	termCounts    map[string]int64
	latencyCounts map[LatencyBucket]int64
	closed        bool
}

func newMockStore() *mockStore {
	return &mockStore{
		outcomeCounts: make(map[Outcome]int64),
		termCounts:    make(map[string]int64),
		latencyCounts: make(map[LatencyBucket]int64),
	}
}

func (s *mockStore) SaveOutcomeCounts(date string, counts map[Outcome]int64) error {
	for k, v := range counts {
		s.outcomeCounts[k] += v
	}
	return nil
}

func (s *mockStore) GetOutcomeCounts(from, to string) (map[Outcome]int64, error) {
	return s.outcomeCounts, nil
}

func (s *mockStore) UpsertTermCounts(terms map[string]int64) error {
	for k, v := range terms {
		s.termCounts[k] += v
	}
	return nil
}

func (s *mockStore) GetTopTerms(limit int) ([]TermCount, error) {
	return nil, nil
}

func (s *mockStore) AddZeroResultQuery(query string, timestamp time.Time) error {
	return nil
}

func (s *mockStore) GetZeroResultQueries(limit int) ([]string, error) {
	return nil, nil
}

func (s *mockStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	for k, v := range counts {
		s.latencyCounts[k] += v
	}
	return nil
}

func (s *mockStore) GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	return s.latencyCounts, nil
}

func (s *mockStore) Close() error {
	s.closed = true
	return nil
}

func TestFlushPersistsToStore(t *testing.T) {
	// Given: a collector wired to a store, no auto-flush
	store := newMockStore()
	m := NewQueryMetricsWithConfig(store, QueryMetricsConfig{FlushInterval: 0})

	m.Record(QueryEvent{Query: "sidewalk repair", Terms: []string{"sidewalk", "repair"}, ResultCount: 2, Latency: 4 * time.Millisecond})
	m.Record(QueryEvent{Query: "sidew", Terms: []string{"sidew"}, ResultCount: 1, Fallback: true, Latency: 12 * time.Millisecond})

	// When: flushing
	require.NoError(t, m.Flush())

	// Then: outcome, term, and latency counts reach the store
	assert.Equal(t, int64(1), store.outcomeCounts[OutcomeStemmed])
	assert.Equal(t, int64(1), store.outcomeCounts[OutcomeFallback])
	assert.Equal(t, int64(1), store.termCounts["sidewalk"])
	assert.Equal(t, int64(1), store.termCounts["sidew"])
	assert.Equal(t, int64(1), store.latencyCounts[BucketP10])
	assert.Equal(t, int64(1), store.latencyCounts[BucketP50])
}

func TestFlushWithoutStore(t *testing.T) {
	// Given: no store configured
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{FlushInterval: 0})
	defer m.Close()

	m.Record(QueryEvent{Query: "anything", Terms: []string{"anything"}, ResultCount: 1})

	// Then: flush is a no-op, not an error
	assert.NoError(t, m.Flush())
}

// =============================================================================
// TS-08: Close Behavior
// =============================================================================

func TestCloseFlushesAndStopsRecording(t *testing.T) {
	store := newMockStore()
	m := NewQueryMetricsWithConfig(store, QueryMetricsConfig{FlushInterval: 0})

	m.Record(QueryEvent{Query: "tree removal", Terms: []string{"tree", "removal"}, ResultCount: 1})

	// When: closing
	require.NoError(t, m.Close())

	// Then: the final flush happened
	assert.Equal(t, int64(1), store.outcomeCounts[OutcomeStemmed])

	// And: subsequent records are ignored
	m.Record(QueryEvent{Query: "late", Terms: []string{"late"}, ResultCount: 1})
	snap := m.GetSnapshot()
	assert.Equal(t, int64(1), snap.TotalQueries)

	// And: close is idempotent
	assert.NoError(t, m.Close())
}
