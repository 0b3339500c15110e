package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/openmuni/cividex/internal/query"
)

// SQLiteEngine implements Engine using SQLite FTS5.
// One database holds both variants as separate virtual tables:
// fts_stemmed uses the porter tokenizer, fts_prefix uses plain unicode61
// with prefix indexes. WAL mode allows concurrent multi-process access.
type SQLiteEngine struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	config Config
	san    *query.Sanitizer
	closed bool
}

// Verify interface implementation at compile time
var _ Engine = (*SQLiteEngine)(nil)

// validateSQLiteIntegrity checks if a SQLite index is valid before opening.
// Returns nil if valid, error describing corruption if not.
func validateSQLiteIntegrity(path string) error {
	// Check if database file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	// Try to open read-only for validation
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	// Quick integrity check
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	// Both variant tables must exist
	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name IN ('fts_stemmed', 'fts_prefix')`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count < 2 {
		return fmt.Errorf("FTS5 variant tables missing")
	}

	return nil
}

// NewSQLiteEngine creates a SQLite FTS5 engine at path.
// If path is empty, creates an in-memory engine for testing.
// A corrupted database is cleared and recreated empty; the caller
// sees an empty index and reindexes.
func NewSQLiteEngine(path string, config Config) (*SQLiteEngine, error) {
	config.applyDefaults()

	var dsn string
	if path == "" {
		// In-memory engine for testing
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		// Validate integrity before opening
		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("sqlite_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			// Auto-clear corrupted index
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			// Also remove WAL and SHM files
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("sqlite_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection prevents lock contention between writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Pragmas must be set via statements, DSN params may be ignored
	// by modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536", // 64MB cache (negative = KB)
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	eng := &SQLiteEngine{
		db:     db,
		path:   path,
		config: config,
		san:    query.Default(),
	}

	if err := eng.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return eng, nil
}

// initSchema creates the FTS5 virtual tables and supporting tables.
func (s *SQLiteEngine) initSchema() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- Stemmed variant: porter stemming folds word forms together,
	-- so "zoning" matches a query for "zone".
	-- doc_id is UNINDEXED (stored but not searchable)
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_stemmed USING fts5(
		doc_id UNINDEXED,
		title,
		body,
		tokenize='porter unicode61'
	);

	-- Prefix variant: literal tokens with prefix indexes, so a query
	-- term matches any word it starts. No stemming.
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_prefix USING fts5(
		doc_id UNINDEXED,
		title,
		body,
		tokenize='unicode61',
		prefix='2 3 4'
	);

	-- Document ID tracking (AllIDs method); FTS5 rowids are not
	-- reliable for enumeration
	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Index adds documents to both variants.
// If a document ID already exists, it is updated (delete + insert,
// FTS5 virtual tables do not support REPLACE).
func (s *SQLiteEngine) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"fts_stemmed", "fts_prefix"} {
		deleteStmt, err := tx.PrepareContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE doc_id = ?`, table))
		if err != nil {
			return fmt.Errorf("failed to prepare delete statement: %w", err)
		}

		insertStmt, err := tx.PrepareContext(ctx,
			fmt.Sprintf(`INSERT INTO %s(doc_id, title, body) VALUES (?, ?, ?)`, table))
		if err != nil {
			_ = deleteStmt.Close()
			return fmt.Errorf("failed to prepare insert statement: %w", err)
		}

		for _, doc := range docs {
			if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
				_ = deleteStmt.Close()
				_ = insertStmt.Close()
				return fmt.Errorf("failed to delete existing document %s: %w", doc.ID, err)
			}
			if _, err := insertStmt.ExecContext(ctx, doc.ID, doc.Title, doc.Body); err != nil {
				_ = deleteStmt.Close()
				_ = insertStmt.Close()
				return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
			}
		}
		_ = deleteStmt.Close()
		_ = insertStmt.Close()
	}

	idStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ID statement: %w", err)
	}
	defer idStmt.Close()

	for _, doc := range docs {
		if _, err := idStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to track document ID %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Query runs sanitized terms against one variant, scored by BM25 with
// the title weighted above the body.
func (s *SQLiteEngine) Query(ctx context.Context, variant Variant, terms []string, limit int) ([]*Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if !variant.Valid() {
		return nil, fmt.Errorf("unknown index variant: %s", variant)
	}

	// No terms means no query; matches the orchestrator's contract
	if len(terms) == 0 {
		return []*Hit{}, nil
	}

	// Terms must already be sanitized. Re-checking here means a caller
	// that skipped the sanitizer still cannot reach FTS5 with syntax.
	if err := s.san.Check(terms); err != nil {
		return nil, err
	}

	table := "fts_stemmed"
	if variant == VariantPrefix {
		table = "fts_prefix"
	}

	// Each term is double-quoted so FTS5 reads it as a literal string.
	// Space separation gives implicit AND. The prefix variant appends
	// a star outside the quotes, the one place that operator belongs.
	matchExpr := buildMatchExpr(terms, variant == VariantPrefix)

	// bm25() returns negative values where lower = better match, so
	// ORDER BY score ascending puts best matches first. Column weights:
	// doc_id 0 (unindexed), title, body.
	queryStr := fmt.Sprintf(`
		SELECT doc_id,
		       bm25(%[1]s, 0.0, %[2]f, 1.0) AS score,
		       snippet(%[1]s, 2, '<mark>', '</mark>', '…', %[3]d)
		FROM %[1]s
		WHERE %[1]s MATCH ?
		ORDER BY score
		LIMIT ?
	`, table, s.config.TitleWeight, s.config.SnippetTokens)

	rows, err := s.db.QueryContext(ctx, queryStr, matchExpr, limit)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", variant, err)
	}
	defer rows.Close()

	var hits []*Hit
	for rows.Next() {
		var h Hit
		var score float64
		if err := rows.Scan(&h.DocID, &score, &h.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		// Negate so higher = better, consistent with the Bleve backend
		h.Score = -score
		hits = append(hits, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if hits == nil {
		hits = []*Hit{}
	}
	return hits, nil
}

// buildMatchExpr assembles an FTS5 MATCH expression from literal terms.
// Terms cannot contain double quotes, the sanitizer strips them.
func buildMatchExpr(terms []string, prefix bool) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		if prefix {
			parts[i] = `"` + t + `"*`
		} else {
			parts[i] = `"` + t + `"`
		}
	}
	return strings.Join(parts, " ")
}

// Delete removes documents from both variants.
func (s *SQLiteEngine) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	for _, table := range []string{"fts_stemmed", "fts_prefix", "doc_ids"} {
		stmt := fmt.Sprintf("DELETE FROM %s WHERE doc_id IN (%s)", table, inClause)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	return tx.Commit()
}

// AllIDs returns all document IDs in the engine.
func (s *SQLiteEngine) AllIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT doc_id FROM doc_ids ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ID: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Stats returns engine statistics.
func (s *SQLiteEngine) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_ids`).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	return &Stats{
		Backend:       string(BackendSQLite),
		DocumentCount: count,
	}, nil
}

// Clear removes all documents from both variants.
func (s *SQLiteEngine) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"fts_stemmed", "fts_prefix", "doc_ids"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	return tx.Commit()
}

// Checkpoint forces a WAL checkpoint so all changes reach the main
// database file.
func (s *SQLiteEngine) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close checkpoints and closes the engine. Close is idempotent.
func (s *SQLiteEngine) Close() error {
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
