// Package telemetry provides query pattern telemetry for search tuning.
// All telemetry data is stored locally - no external reporting.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Query Outcomes
// =============================================================================

// Outcome classifies how a search query resolved.
type Outcome string

const (
	// OutcomeStemmed means the stemmed variant returned hits.
	OutcomeStemmed Outcome = "stemmed"
	// OutcomeFallback means the prefix variant ran and returned hits.
	OutcomeFallback Outcome = "fallback"
	// OutcomeZero means both variants returned nothing.
	OutcomeZero Outcome = "zero"
	// OutcomeEmpty means sanitization left no terms, no query ran.
	OutcomeEmpty Outcome = "empty"
	// OutcomeError means a variant query failed.
	OutcomeError Outcome = "error"
)

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// =============================================================================
// Query Event
// =============================================================================

// QueryEvent represents a single search query for telemetry recording.
type QueryEvent struct {
	Query       string
	Terms       []string
	Fallback    bool
	ResultCount int
	Failed      bool
	Latency     time.Duration
	Timestamp   time.Time
}

// Outcome derives the outcome classification from the event.
func (e QueryEvent) Outcome() Outcome {
	switch {
	case e.Failed:
		return OutcomeError
	case len(e.Terms) == 0:
		return OutcomeEmpty
	case e.ResultCount == 0:
		return OutcomeZero
	case e.Fallback:
		return OutcomeFallback
	default:
		return OutcomeStemmed
	}
}

// IsZeroResult returns true if this query ran and returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.Outcome() == OutcomeZero
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // Next write position
	size     int // Current number of items
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in the buffer in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		// Buffer not full - items start at 0
		copy(result, b.items[:b.size])
	} else {
		// Buffer full - oldest item is at head
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items from the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// =============================================================================
// Term Count
// =============================================================================

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// =============================================================================
// Query Metrics Snapshot
// =============================================================================

// Snapshot is an immutable snapshot of query metrics.
type Snapshot struct {
	OutcomeCounts       map[Outcome]int64       `json:"outcome_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	FallbackCount       int64                   `json:"fallback_count"`
	ErrorCount          int64                   `json:"error_count"`
	Since               time.Time               `json:"since"`

	// Repetition metrics
	ExactRepeatCount int64   `json:"exact_repeat_count"`
	ExactRepeatRate  float64 `json:"exact_repeat_rate"`
	UniqueQueryCount int64   `json:"unique_query_count"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// FallbackPercentage returns the percentage of queries answered by the
// prefix fallback. A climbing rate means the stemmed variant misses
// vocabulary users actually search with.
func (s *Snapshot) FallbackPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.FallbackCount) / float64(s.TotalQueries) * 100
}

// FallbackAttemptCount returns how many queries reached the prefix
// variant at all. The stemmed variant returned nothing for each of
// these; FallbackCount of them were rescued with prefix hits, the
// rest ended as zero-result queries.
func (s *Snapshot) FallbackAttemptCount() int64 {
	return s.FallbackCount + s.ZeroResultCount
}

// Summary returns a one-line overview for status output.
func (s *Snapshot) Summary() string {
	if s.TotalQueries == 0 {
		return "No queries recorded"
	}
	return fmt.Sprintf("%d queries, %.1f%% fallback, %.1f%% zero-result",
		s.TotalQueries, s.FallbackPercentage(), s.ZeroResultPercentage())
}

// =============================================================================
// Query Metrics Store (Interface)
// =============================================================================

// MetricsStore defines persistence operations for query metrics.
type MetricsStore interface {
	// SaveOutcomeCounts upserts daily outcome counts.
	SaveOutcomeCounts(date string, counts map[Outcome]int64) error

	// GetOutcomeCounts retrieves counts for a date range.
	GetOutcomeCounts(from, to string) (map[Outcome]int64, error)

	// UpsertTermCounts updates term frequency counts.
	UpsertTermCounts(terms map[string]int64) error

	// GetTopTerms retrieves the top N terms by frequency.
	GetTopTerms(limit int) ([]TermCount, error)

	// AddZeroResultQuery adds a query to the circular buffer.
	AddZeroResultQuery(query string, timestamp time.Time) error

	// GetZeroResultQueries retrieves recent zero-result queries.
	GetZeroResultQueries(limit int) ([]string, error)

	// SaveLatencyCounts upserts daily latency histogram counts.
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error

	// GetLatencyCounts retrieves latency distribution for a date range.
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)

	// Close releases resources.
	Close() error
}

// =============================================================================
// Query Metrics Configuration
// =============================================================================

// QueryMetricsConfig configures the query metrics collector.
type QueryMetricsConfig struct {
	TopTermsCapacity      int           // Max terms to track (default: 100)
	ZeroResultsCapacity   int           // Max zero-result queries to track (default: 100)
	RecentQueriesCapacity int           // Max queries to track for repetition (default: 500)
	FlushInterval         time.Duration // How often to flush to store (default: 60s, 0 = no auto-flush)
}

// DefaultQueryMetricsConfig returns sensible defaults.
func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// =============================================================================
// Query Metrics
// =============================================================================

// QueryMetrics collects query telemetry for search tuning.
// Thread-safe for concurrent access.
type QueryMetrics struct {
	mu sync.RWMutex

	// In-memory aggregates
	outcomes        map[Outcome]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	fallbackCount   int64
	errorCount      int64
	startTime       time.Time

	// Repetition tracking
	recentQueries    *lru.Cache[string, struct{}] // LRU of query hashes
	exactRepeatCount int64

	// Persistence
	store       MetricsStore
	config      QueryMetricsConfig
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewQueryMetrics creates a new metrics collector with default configuration.
// If store is nil, metrics are only kept in memory.
func NewQueryMetrics(store MetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

// NewQueryMetricsWithConfig creates a new metrics collector with custom configuration.
func NewQueryMetricsWithConfig(store MetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		outcomes:      make(map[Outcome]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		startTime:     time.Now(),
		recentQueries: recentQueries,
		store:         store,
		config:        cfg,
		stopCh:        make(chan struct{}),
	}

	// Start auto-flush if configured
	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}

	return m
}

// flushLoop periodically flushes metrics to storage.
func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record captures metrics from a search query.
// This method is thread-safe and non-blocking.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	outcome := event.Outcome()
	m.outcomes[outcome]++
	m.totalQueries++

	switch outcome {
	case OutcomeZero:
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
	case OutcomeFallback:
		m.fallbackCount++
	case OutcomeError:
		m.errorCount++
	}

	// Track sanitized terms; short tokens are mostly noise
	for _, term := range event.Terms {
		term = strings.ToLower(term)
		if len(term) < 3 {
			continue
		}
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	// Track latency
	m.latencies[LatencyToBucket(event.Latency)]++

	// Track exact query repetition
	queryHash := hashQuery(event.Query)
	if _, exists := m.recentQueries.Get(queryHash); exists {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(queryHash, struct{}{})
}

// hashQuery creates a normalized hash of the query for repetition detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16]) // First 16 bytes keep keys short
}

// GetSnapshot returns current metrics for reporting.
func (m *QueryMetrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	outcomeCounts := make(map[Outcome]int64)
	for k, v := range m.outcomes {
		outcomeCounts[k] = v
	}

	// Top terms sorted by count descending
	var topTerms []TermCount
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	for i := 0; i < len(topTerms); i++ {
		for j := i + 1; j < len(topTerms); j++ {
			if topTerms[j].Count > topTerms[i].Count {
				topTerms[i], topTerms[j] = topTerms[j], topTerms[i]
			}
		}
	}

	latencies := make(map[LatencyBucket]int64)
	for k, v := range m.latencies {
		latencies[k] = v
	}

	var exactRepeatRate float64
	if m.totalQueries > 0 {
		exactRepeatRate = float64(m.exactRepeatCount) / float64(m.totalQueries)
	}

	return &Snapshot{
		OutcomeCounts:       outcomeCounts,
		TopTerms:            topTerms,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		FallbackCount:       m.fallbackCount,
		ErrorCount:          m.errorCount,
		Since:               m.startTime,
		ExactRepeatCount:    m.exactRepeatCount,
		ExactRepeatRate:     exactRepeatRate,
		UniqueQueryCount:    int64(m.recentQueries.Len()),
	}
}

// Flush persists in-memory metrics to the store.
// Safe to call even if no store is configured.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	snapshot := m.GetSnapshot()
	today := time.Now().Format("2006-01-02")

	if err := m.store.SaveOutcomeCounts(today, snapshot.OutcomeCounts); err != nil {
		return err
	}

	termCounts := make(map[string]int64)
	for _, tc := range snapshot.TopTerms {
		termCounts[tc.Term] = tc.Count
	}
	if err := m.store.UpsertTermCounts(termCounts); err != nil {
		return err
	}

	return m.store.SaveLatencyCounts(today, snapshot.LatencyDistribution)
}

// Close flushes and releases resources.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// Stop auto-flush
	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}

	// Final flush
	return m.Flush()
}
