package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmuni/cividex/internal/store"
)

// IssueType categorizes a divergence between the record store and the
// full-text index.
type IssueType int

const (
	// IssueOrphaned indicates an indexed document with no record behind it.
	IssueOrphaned IssueType = iota
	// IssueMissing indicates a record absent from the index.
	IssueMissing
)

// String returns a human-readable name for the issue type.
func (t IssueType) String() string {
	switch t {
	case IssueOrphaned:
		return "orphaned"
	case IssueMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Issue represents one detected divergence.
type Issue struct {
	Type     IssueType
	RecordID string
	Details  string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// StoreCount is the number of records in the store.
	StoreCount int
	// EngineCount is the number of documents in the index.
	EngineCount int
	// Issues contains all detected divergences.
	Issues []Issue
	// Duration is how long the check took.
	Duration time.Duration
}

// Consistent reports whether the check found no issues.
func (r *CheckResult) Consistent() bool {
	return len(r.Issues) == 0
}

// Counts returns the number of missing and orphaned issues.
func (r *CheckResult) Counts() (missing, orphaned int) {
	for _, issue := range r.Issues {
		switch issue.Type {
		case IssueMissing:
			missing++
		case IssueOrphaned:
			orphaned++
		}
	}
	return missing, orphaned
}

// Checker validates that the full-text index mirrors the record store.
// The store is the system of record: every record must be indexed, and
// every indexed document must have a record behind it. Divergence
// appears after a crash mid-ingest or a manually deleted index file.
type Checker struct {
	engine  Engine
	records store.RecordStore
}

// NewChecker creates a checker over the given engine and store.
func NewChecker(engine Engine, records store.RecordStore) *Checker {
	return &Checker{
		engine:  engine,
		records: records,
	}
}

// Check compares both sides ID by ID.
// This is O(n) where n is the total number of records.
func (c *Checker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	var issues []Issue

	// Record store is the source of truth.
	known, err := c.records.GetRecordsForReconciliation(ctx)
	if err != nil {
		return nil, err
	}

	storeIDs := make(map[string]bool, len(known))
	for _, rec := range known {
		storeIDs[rec.ID] = true
	}

	engineIDs, err := c.engine.AllIDs(ctx)
	if err != nil {
		return nil, err
	}

	// Indexed documents without a record.
	engineSet := make(map[string]bool, len(engineIDs))
	for _, id := range engineIDs {
		engineSet[id] = true
		if !storeIDs[id] {
			issues = append(issues, Issue{
				Type:     IssueOrphaned,
				RecordID: id,
				Details:  "indexed document without a stored record",
			})
		}
	}

	// Records never indexed.
	for id := range storeIDs {
		if !engineSet[id] {
			issues = append(issues, Issue{
				Type:     IssueMissing,
				RecordID: id,
				Details:  "stored record missing from the index",
			})
		}
	}

	return &CheckResult{
		StoreCount:  len(storeIDs),
		EngineCount: len(engineIDs),
		Issues:      issues,
		Duration:    time.Since(start),
	}, nil
}

// Repair fixes detected divergences.
// Orphans are deleted from the index; missing records are re-indexed
// from their stored bodies. Both are best-effort: a failure is logged
// and the remaining issues still get their turn.
func (c *Checker) Repair(ctx context.Context, issues []Issue) error {
	var orphaned, missing []string

	for _, issue := range issues {
		switch issue.Type {
		case IssueOrphaned:
			orphaned = append(orphaned, issue.RecordID)
		case IssueMissing:
			missing = append(missing, issue.RecordID)
		}
	}

	if len(orphaned) > 0 {
		if err := c.engine.Delete(ctx, orphaned); err != nil {
			slog.Warn("failed to delete orphaned index entries",
				slog.Int("count", len(orphaned)),
				slog.String("error", err.Error()))
		} else {
			slog.Info("deleted orphaned index entries", slog.Int("count", len(orphaned)))
		}
	}

	if len(missing) > 0 {
		if err := c.reindexMissing(ctx, missing); err != nil {
			slog.Warn("failed to re-index missing records",
				slog.Int("count", len(missing)),
				slog.String("error", err.Error()))
		} else {
			slog.Info("re-indexed missing records", slog.Int("count", len(missing)))
		}
	}

	return nil
}

func (c *Checker) reindexMissing(ctx context.Context, ids []string) error {
	records, err := c.records.GetRecords(ctx, ids)
	if err != nil {
		return err
	}

	docs := make([]*Document, 0, len(records))
	for _, rec := range records {
		docs = append(docs, &Document{
			ID:    rec.ID,
			Title: rec.Title,
			Body:  rec.Body,
		})
	}
	if len(docs) == 0 {
		return nil
	}
	return c.engine.Index(ctx, docs)
}

// QuickCheck performs a lightweight consistency check.
// It only verifies that counts match, not individual IDs.
// Returns true if counts are consistent.
func (c *Checker) QuickCheck(ctx context.Context) (bool, error) {
	storeCount, err := c.records.Count(ctx)
	if err != nil {
		return false, err
	}

	stats, err := c.engine.Stats(ctx)
	if err != nil {
		return false, err
	}

	consistent := storeCount == stats.DocumentCount
	if !consistent {
		slog.Debug("index count mismatch",
			slog.Int("store", storeCount),
			slog.Int("index", stats.DocumentCount))
	}

	return consistent, nil
}
