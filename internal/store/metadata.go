package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/openmuni/cividex/internal/telemetry"
)

// dateFormat is the storage format for record dates (date only, no
// time component).
const dateFormat = "2006-01-02"

// migrations maps schema versions to the statements that produce them.
// Each version is applied in a single transaction.
var migrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			number TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			date TEXT NOT NULL DEFAULT '',
			fiscal_year INTEGER NOT NULL DEFAULT 0,
			path TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			indexed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_records_path ON records(path)`,
		`CREATE INDEX IF NOT EXISTS idx_records_date ON records(date)`,
		`CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	},
}

// SQLiteStore implements RecordStore using SQLite.
// The same database also carries the telemetry tables, so one file
// holds all service metadata.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation
var _ RecordStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the record database at path.
// An empty path opens an in-memory store for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection prevents lock contention between writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	// Telemetry shares this database (single metadata file on disk)
	if err := telemetry.InitSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// DB exposes the underlying connection so the telemetry store can
// share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// migrate applies pending schema migrations in version order.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for v := current + 1; v <= CurrentSchemaVersion; v++ {
		stmts, ok := migrations[v]
		if !ok {
			return fmt.Errorf("no migration registered for version %d", v)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", v, err)
		}
		for i, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d step %d: %w", v, i, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", v, err)
		}
	}

	return nil
}

// SaveRecords upserts a batch of records in one transaction.
func (s *SQLiteStore) SaveRecords(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO records
			(id, kind, number, title, body, date, fiscal_year, path, content_hash, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var date string
		if !r.Date.IsZero() {
			date = r.Date.Format(dateFormat)
		}
		indexedAt := r.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, string(r.Kind), r.Number, r.Title, r.Body,
			date, r.FiscalYear, r.Path, r.ContentHash,
			indexedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("save record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

const recordColumns = `id, kind, number, title, body, date, fiscal_year, path, content_hash, indexed_at`

// scanRecord reads one row into a Record.
func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var r Record
	var kind, date, indexedAt string
	if err := scan(&r.ID, &kind, &r.Number, &r.Title, &r.Body,
		&date, &r.FiscalYear, &r.Path, &r.ContentHash, &indexedAt); err != nil {
		return nil, err
	}
	r.Kind = Kind(kind)
	if date != "" {
		d, err := time.Parse(dateFormat, date)
		if err != nil {
			return nil, fmt.Errorf("parse record date %q: %w", date, err)
		}
		r.Date = d
	}
	if indexedAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, indexedAt)
		if err != nil {
			return nil, fmt.Errorf("parse indexed_at %q: %w", indexedAt, err)
		}
		r.IndexedAt = ts
	}
	return &r, nil
}

// GetRecord retrieves one record by ID. Returns (nil, nil) when the
// record does not exist.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	r, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

// GetRecords retrieves a batch of records, returned in the order the
// IDs were given. Unknown IDs are skipped.
func (s *SQLiteStore) GetRecords(ctx context.Context, ids []string) ([]*Record, error) {
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("get records: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Record, len(ids))
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			records = append(records, r)
		}
	}
	return records, nil
}

// GetRecordByPath retrieves one record by corpus-relative path.
// Returns (nil, nil) when no record has that path.
func (s *SQLiteStore) GetRecordByPath(ctx context.Context, path string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE path = ?`, path)
	r, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record by path: %w", err)
	}
	return r, nil
}

// ListRecords pages through records in ID order. An empty kind lists
// all kinds. The cursor is the last ID of the previous page; the
// returned cursor is empty on the final page.
func (s *SQLiteStore) ListRecords(ctx context.Context, kind Kind, cursor string, limit int) ([]*Record, string, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	queryStr := `SELECT ` + recordColumns + ` FROM records WHERE id > ?`
	args := []any{cursor}
	if kind != "" {
		queryStr += ` AND kind = ?`
		args = append(args, string(kind))
	}
	// Fetch one extra row to learn whether another page exists
	queryStr += ` ORDER BY id LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, "", fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(records) > limit {
		records = records[:limit]
		next = records[limit-1].ID
	}
	return records, next, nil
}

// DeleteRecords removes records by ID. Unknown IDs are ignored.
func (s *SQLiteStore) DeleteRecords(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

// DeleteAll removes every record. State and telemetry are untouched.
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("delete all records: %w", err)
	}
	return nil
}

// GetRecordsForReconciliation returns a path-keyed projection with
// only id, path, and content hash populated. Used by ingest to detect
// changed and vanished files without loading record bodies.
func (s *SQLiteStore) GetRecordsForReconciliation(ctx context.Context) (map[string]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, path, content_hash FROM records`)
	if err != nil {
		return nil, fmt.Errorf("query records for reconciliation: %w", err)
	}
	defer rows.Close()

	byPath := make(map[string]*Record)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Path, &r.ContentHash); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		byPath[r.Path] = &r
	}
	return byPath, rows.Err()
}

// Count returns the total number of records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// CountByKind returns record counts grouped by kind.
func (s *SQLiteStore) CountByKind(ctx context.Context) (map[Kind]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM records GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[Kind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Kind(kind)] = count
	}
	return counts, rows.Err()
}

// GetState retrieves a state value. Returns "" when the key is unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores a state value.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Close checkpoints and closes the store. Close is idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
