package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/openmuni/cividex/internal/query"
)

const (
	// stemmedAnalyzerName lowercases and porter-stems tokens.
	stemmedAnalyzerName = "record_stemmed"

	// literalAnalyzerName lowercases tokens without stemming, for the
	// prefix variant.
	literalAnalyzerName = "record_literal"
)

// BleveEngine implements Engine using Bleve v2.
// The two variants live in sibling indexes under one directory:
// a stemmed index and a literal one queried with prefix matching.
// BoltDB holds an exclusive file lock, so unlike the SQLite backend
// only one process can have the engine open.
type BleveEngine struct {
	mu      sync.RWMutex
	stemmed bleve.Index
	prefix  bleve.Index
	path    string
	config  Config
	san     *query.Sanitizer
	closed  bool
}

// Verify interface implementation
var _ Engine = (*BleveEngine)(nil)

// bleveDocument is the document structure for Bleve indexing.
type bleveDocument struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// validateBleveIntegrity checks if a Bleve index directory is valid
// before opening. Returns nil if valid, error describing corruption if not.
func validateBleveIntegrity(path string) error {
	// Check if index directory exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Index doesn't exist, will be created
	}

	// index_meta.json must exist, be non-empty, and parse
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isBleveCorruption checks if an error indicates Bleve index corruption.
func isBleveCorruption(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveEngine creates a Bleve engine under basePath.
// If basePath is empty, creates in-memory indexes for testing.
// Corrupted variant indexes are cleared and recreated empty.
func NewBleveEngine(basePath string, config Config) (*BleveEngine, error) {
	config.applyDefaults()

	stemmedMapping, err := buildMapping(stemmedAnalyzerName, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create stemmed mapping: %w", err)
	}
	prefixMapping, err := buildMapping(literalAnalyzerName, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create prefix mapping: %w", err)
	}

	var stemmed, prefix bleve.Index
	if basePath == "" {
		// In-memory engine for testing
		stemmed, err = bleve.NewMemOnly(stemmedMapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create stemmed index: %w", err)
		}
		prefix, err = bleve.NewMemOnly(prefixMapping)
		if err != nil {
			_ = stemmed.Close()
			return nil, fmt.Errorf("failed to create prefix index: %w", err)
		}
	} else {
		if err := os.MkdirAll(basePath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", basePath, err)
		}

		stemmed, err = openBleveIndex(filepath.Join(basePath, "stemmed"), stemmedMapping)
		if err != nil {
			return nil, fmt.Errorf("failed to open stemmed index: %w", err)
		}
		prefix, err = openBleveIndex(filepath.Join(basePath, "prefix"), prefixMapping)
		if err != nil {
			_ = stemmed.Close()
			return nil, fmt.Errorf("failed to open prefix index: %w", err)
		}
	}

	return &BleveEngine{
		stemmed: stemmed,
		prefix:  prefix,
		path:    basePath,
		config:  config,
		san:     query.Default(),
	}, nil
}

// openBleveIndex opens or creates one variant index, clearing it first
// when corruption is detected.
func openBleveIndex(path string, m mapping.IndexMapping) (bleve.Index, error) {
	if validErr := validateBleveIntegrity(path); validErr != nil {
		slog.Warn("bleve_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))

		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
		}
		slog.Info("bleve_index_cleared",
			slog.String("path", path),
			slog.String("reason", "corruption detected, please reindex"))
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(path, m)
	}
	if err != nil && isBleveCorruption(err) {
		slog.Warn("bleve_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))

		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", removeErr, err)
		}
		return bleve.New(path, m)
	}
	return idx, err
}

// buildMapping creates the index mapping for one variant. Both map the
// title and body fields through the variant's analyzer; only the
// stemmed variant runs the porter filter.
func buildMapping(analyzerName string, stem bool) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	filters := []string{lowercase.Name}
	if stem {
		filters = append(filters, porter.Name)
	}

	err := indexMapping.AddCustomAnalyzer(analyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": filters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = analyzerName
	docMapping.AddFieldMappingsAt("title", titleField)

	bodyField := bleve.NewTextFieldMapping()
	bodyField.Analyzer = analyzerName
	docMapping.AddFieldMappingsAt("body", bodyField)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = analyzerName

	return indexMapping, nil
}

// Index adds documents to both variants.
func (b *BleveEngine) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	for _, idx := range []bleve.Index{b.stemmed, b.prefix} {
		batch := idx.NewBatch()
		for _, doc := range docs {
			if err := batch.Index(doc.ID, bleveDocument{Title: doc.Title, Body: doc.Body}); err != nil {
				return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
			}
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to execute batch: %w", err)
		}
	}

	return nil
}

// Query runs sanitized terms against one variant.
func (b *BleveEngine) Query(ctx context.Context, variant Variant, terms []string, limit int) ([]*Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	if !variant.Valid() {
		return nil, fmt.Errorf("unknown index variant: %s", variant)
	}

	// No terms means no query; matches the orchestrator's contract
	if len(terms) == 0 {
		return []*Hit{}, nil
	}

	// Same defense as the SQLite backend: operator syntax stops here
	if err := b.san.Check(terms); err != nil {
		return nil, err
	}

	idx := b.stemmed
	if variant == VariantPrefix {
		idx = b.prefix
	}

	// Implicit AND across terms; within a term the title match is
	// boosted over the body match.
	conj := bleve.NewConjunctionQuery()
	for _, term := range terms {
		if variant == VariantPrefix {
			// PrefixQuery bypasses the analyzer, lowercase manually to
			// line up with the indexed tokens
			titleQ := bleve.NewPrefixQuery(strings.ToLower(term))
			titleQ.SetField("title")
			titleQ.SetBoost(b.config.TitleWeight)
			bodyQ := bleve.NewPrefixQuery(strings.ToLower(term))
			bodyQ.SetField("body")
			conj.AddQuery(bleve.NewDisjunctionQuery(titleQ, bodyQ))
		} else {
			titleQ := bleve.NewMatchQuery(term)
			titleQ.SetField("title")
			titleQ.SetBoost(b.config.TitleWeight)
			bodyQ := bleve.NewMatchQuery(term)
			bodyQ.SetField("body")
			conj.AddQuery(bleve.NewDisjunctionQuery(titleQ, bodyQ))
		}
	}

	req := bleve.NewSearchRequest(conj)
	req.Size = limit
	req.Highlight = bleve.NewHighlight()

	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s query failed: %w", variant, err)
	}

	hits := make([]*Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, &Hit{
			DocID:   hit.ID,
			Score:   hit.Score,
			Snippet: firstFragment(hit.Fragments),
		})
	}

	return hits, nil
}

// firstFragment picks a highlight fragment, preferring the body.
func firstFragment(fragments map[string][]string) string {
	if frags, ok := fragments["body"]; ok && len(frags) > 0 {
		return frags[0]
	}
	if frags, ok := fragments["title"]; ok && len(frags) > 0 {
		return frags[0]
	}
	return ""
}

// Delete removes documents from both variants.
func (b *BleveEngine) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	for _, idx := range []bleve.Index{b.stemmed, b.prefix} {
		batch := idx.NewBatch()
		for _, id := range ids {
			batch.Delete(id)
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
	}

	return nil
}

// AllIDs returns all document IDs in the engine.
func (b *BleveEngine) AllIDs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	docCount, err := b.stemmed.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.SortBy([]string{"_id"})

	result, err := b.stemmed.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}

	var ids []string
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}

	return ids, nil
}

// Stats returns engine statistics.
func (b *BleveEngine) Stats(ctx context.Context) (*Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	docCount, err := b.stemmed.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	return &Stats{
		Backend:       string(BackendBleve),
		DocumentCount: int(docCount),
	}, nil
}

// Clear removes all documents from both variants.
func (b *BleveEngine) Clear(ctx context.Context) error {
	ids, err := b.AllIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return b.Delete(ctx, ids)
}

// Close closes both variant indexes. Close is idempotent.
func (b *BleveEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	var firstErr error
	for _, idx := range []bleve.Index{b.stemmed, b.prefix} {
		if idx == nil {
			continue
		}
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
