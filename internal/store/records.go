// Package store persists civic record metadata in SQLite.
// The full-text indexes carry only what ranking needs; this store is
// the system of record that search hits are enriched from.
package store

import (
	"context"
	"time"
)

// Kind classifies a civic record.
type Kind string

const (
	KindOrdinance Kind = "ordinance"
	KindMinutes   Kind = "minutes"
	KindBudget    Kind = "budget"
	KindNotice    Kind = "notice"
)

// Valid reports whether k names a known record kind.
func (k Kind) Valid() bool {
	switch k {
	case KindOrdinance, KindMinutes, KindBudget, KindNotice:
		return true
	}
	return false
}

// Kinds returns every record kind in display order.
func Kinds() []Kind {
	return []Kind{KindOrdinance, KindMinutes, KindBudget, KindNotice}
}

// State keys for runtime bookkeeping.
const (
	// StateKeyIndexBackend stores which engine backend built the index.
	StateKeyIndexBackend = "index_backend"

	// StateKeyCorpusRoot stores the corpus directory the index was
	// built from.
	StateKeyCorpusRoot = "corpus_root"

	// StateKeyLastIngest stores when the corpus was last ingested
	// (RFC 3339).
	StateKeyLastIngest = "last_ingest"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// Record represents one civic record in the corpus.
type Record struct {
	ID          string    `json:"id"`                    // SHA-256 of the corpus-relative path
	Kind        Kind      `json:"kind"`                  // ordinance, minutes, budget, notice
	Number      string    `json:"number,omitempty"`      // Official number, e.g. "2024-17"
	Title       string    `json:"title"`                 // Display title
	Body        string    `json:"body,omitempty"`        // Full record text
	Date        time.Time `json:"date,omitempty"`        // Adoption or meeting date
	FiscalYear  int       `json:"fiscal_year,omitempty"` // Budgets; zero elsewhere
	Path        string    `json:"path"`                  // Corpus-relative source path
	ContentHash string    `json:"-"`                     // SHA-256 of the source file content
	IndexedAt   time.Time `json:"indexed_at"`
}

// RecordStore persists record metadata in SQLite.
type RecordStore interface {
	// Record operations
	SaveRecords(ctx context.Context, records []*Record) error
	GetRecord(ctx context.Context, id string) (*Record, error)
	GetRecords(ctx context.Context, ids []string) ([]*Record, error) // Batch retrieval for hit enrichment
	GetRecordByPath(ctx context.Context, path string) (*Record, error)
	ListRecords(ctx context.Context, kind Kind, cursor string, limit int) ([]*Record, string, error)
	DeleteRecords(ctx context.Context, ids []string) error
	DeleteAll(ctx context.Context) error

	// Reconciliation support: a light path-keyed projection (id, path,
	// content hash only) for change detection and vanished-file cleanup.
	GetRecordsForReconciliation(ctx context.Context) (map[string]*Record, error)

	// Statistics
	Count(ctx context.Context) (int, error)
	CountByKind(ctx context.Context) (map[Kind]int, error)

	// State operations (key-value store for runtime state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}
