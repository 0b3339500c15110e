// Package index provides the full-text engines behind Cividex search.
//
// Every engine maintains two variants of the same corpus: a stemmed
// variant for recall on word forms (zoning matches zone) and a literal
// prefix variant for identifiers and partial words (ord-2024 matches
// ord-2024-017). The search orchestrator queries the stemmed variant
// first and falls back to the prefix variant only when nothing matched.
package index

import (
	"context"
	"fmt"
)

// Variant selects which of the two index variants a query runs against.
type Variant string

const (
	// VariantStemmed matches stemmed word forms. Primary for search.
	VariantStemmed Variant = "stemmed"

	// VariantPrefix matches literal prefixes. Fallback when the stemmed
	// variant returns nothing.
	VariantPrefix Variant = "prefix"
)

// Valid reports whether v names a known variant.
func (v Variant) Valid() bool {
	return v == VariantStemmed || v == VariantPrefix
}

// Document is the indexable projection of a record.
type Document struct {
	// ID is the record identifier, stored but never tokenized.
	ID string

	// Title is the record title, weighted above body in scoring.
	Title string

	// Body is the record text.
	Body string
}

// Hit is a single query match.
type Hit struct {
	// DocID identifies the matched record.
	DocID string `json:"doc_id"`

	// Score is the relevance score, higher is better.
	Score float64 `json:"score"`

	// Snippet is a short body excerpt with matches wrapped in
	// <mark> tags. May be empty when no excerpt is available.
	Snippet string `json:"snippet,omitempty"`
}

// Stats describes the state of an engine.
type Stats struct {
	// Backend is the engine implementation name (sqlite, bleve).
	Backend string `json:"backend"`

	// DocumentCount is the number of indexed records.
	DocumentCount int `json:"document_count"`
}

// Engine is the storage-agnostic interface both backends implement.
// Implementations are safe for concurrent use.
type Engine interface {
	// Index adds documents to both variants, replacing any existing
	// entries with the same IDs.
	Index(ctx context.Context, docs []*Document) error

	// Delete removes documents from both variants. Unknown IDs are
	// ignored.
	Delete(ctx context.Context, ids []string) error

	// Query runs sanitized terms against one variant. Terms are
	// combined with implicit AND and matched as literals, never as
	// query syntax. An empty term list returns no hits without
	// touching storage.
	Query(ctx context.Context, variant Variant, terms []string, limit int) ([]*Hit, error)

	// AllIDs returns every indexed document ID in lexical order.
	AllIDs(ctx context.Context) ([]string, error)

	// Stats returns engine statistics.
	Stats(ctx context.Context) (*Stats, error)

	// Clear removes all documents from both variants.
	Clear(ctx context.Context) error

	// Close releases the engine. Close is idempotent.
	Close() error
}

// Config tunes scoring and snippet generation.
type Config struct {
	// TitleWeight multiplies title matches relative to body matches.
	TitleWeight float64

	// SnippetTokens is the approximate snippet length in tokens.
	SnippetTokens int
}

// DefaultConfig returns the standard engine tuning.
func DefaultConfig() Config {
	return Config{
		TitleWeight:   2.0,
		SnippetTokens: 12,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.TitleWeight <= 0 {
		c.TitleWeight = def.TitleWeight
	}
	if c.SnippetTokens <= 0 || c.SnippetTokens > 64 {
		c.SnippetTokens = def.SnippetTokens
	}
}

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = fmt.Errorf("index engine is closed")
