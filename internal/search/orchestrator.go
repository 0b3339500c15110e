// Package search orchestrates hybrid retrieval over the two index
// variants. Every request runs the stemmed variant first; the prefix
// variant runs only when the stemmed query succeeded with zero hits.
// The two result sets are never merged: whichever variant terminates
// the request owns the result.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/query"
	"github.com/openmuni/cividex/internal/telemetry"
)

const (
	// DefaultLimit is used when a request asks for no particular limit.
	DefaultLimit = 10

	// MaxLimit caps the per-request result count.
	MaxLimit = 100
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// QueryFunc runs sanitized terms against one index variant.
// Implementations must treat terms as literals, combine them with
// implicit AND, and return an empty slice (not an error) when nothing
// matches.
type QueryFunc func(ctx context.Context, terms []string, limit int) ([]*index.Hit, error)

// QuerierFor binds one variant of an engine to a QueryFunc.
func QuerierFor(e index.Engine, v index.Variant) QueryFunc {
	return func(ctx context.Context, terms []string, limit int) ([]*index.Hit, error) {
		return e.Query(ctx, v, terms, limit)
	}
}

// Result is the terminal outcome of one search request.
type Result struct {
	// Hits are the matches from the variant that terminated the
	// request. Never nil.
	Hits []*index.Hit `json:"hits"`

	// Terms are the sanitized terms the engines actually received.
	Terms []string `json:"terms,omitempty"`

	// Variant names the variant that produced Hits. Empty when
	// sanitization left no terms and no query ran.
	Variant index.Variant `json:"variant,omitempty"`

	// Fallback reports whether the prefix variant ran.
	Fallback bool `json:"fallback"`

	// Duration is the total request time including the fallback.
	Duration time.Duration `json:"duration"`
}

// Orchestrator routes each request through the stemmed variant and,
// on a successful zero-result response, through the prefix variant.
// It holds no cross-request state and issues at most two engine calls
// per request, with no retries.
type Orchestrator struct {
	stemmed QueryFunc
	prefix  QueryFunc

	san          *query.Sanitizer
	metrics      *telemetry.QueryMetrics
	defaultLimit int
	maxLimit     int
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithMetrics sets an optional query metrics collector. When set,
// outcomes, latency, and zero-result queries are tracked per request.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithSanitizer overrides the default sanitizer, for engines with a
// different query syntax.
func WithSanitizer(s *query.Sanitizer) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.san = s
		}
	}
}

// WithLimits overrides the default and maximum result limits.
func WithLimits(def, max int) Option {
	return func(o *Orchestrator) {
		if def > 0 {
			o.defaultLimit = def
		}
		if max > 0 {
			o.maxLimit = max
		}
	}
}

// New creates an orchestrator over one querier per variant.
// Returns an error if either querier is nil.
func New(stemmed, prefix QueryFunc, opts ...Option) (*Orchestrator, error) {
	if stemmed == nil {
		return nil, fmt.Errorf("%w: stemmed querier is required", ErrNilDependency)
	}
	if prefix == nil {
		return nil, fmt.Errorf("%w: prefix querier is required", ErrNilDependency)
	}
	o := &Orchestrator{
		stemmed:      stemmed,
		prefix:       prefix,
		san:          query.Default(),
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// NewFromEngine creates an orchestrator over both variants of a
// single engine.
func NewFromEngine(e index.Engine, opts ...Option) (*Orchestrator, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: index engine is required", ErrNilDependency)
	}
	return New(
		QuerierFor(e, index.VariantStemmed),
		QuerierFor(e, index.VariantPrefix),
		opts...,
	)
}

// Search sanitizes raw user input and runs the request. Input that
// sanitizes to nothing short-circuits without touching the engines.
func (o *Orchestrator) Search(ctx context.Context, raw string, limit int) (*Result, error) {
	return o.run(ctx, raw, o.san.Sanitize(raw), limit)
}

// SearchTerms runs already-sanitized terms. Terms are re-validated
// before dispatch; unsafe terms are rejected without an engine call.
func (o *Orchestrator) SearchTerms(ctx context.Context, terms []string, limit int) (*Result, error) {
	return o.run(ctx, strings.Join(terms, " "), terms, limit)
}

// run is the per-request state machine. Exactly one variant's result
// is terminal: stemmed when it has hits or fails, prefix otherwise.
func (o *Orchestrator) run(ctx context.Context, raw string, terms []string, limit int) (*Result, error) {
	start := time.Now()
	limit = o.clampLimit(limit)

	if len(terms) == 0 {
		o.record(raw, nil, false, 0, false, time.Since(start))
		return &Result{Hits: []*index.Hit{}, Duration: time.Since(start)}, nil
	}

	if err := o.san.Check(terms); err != nil {
		o.record(raw, terms, false, 0, true, time.Since(start))
		return nil, err
	}

	hits, err := o.stemmed(ctx, terms, limit)
	if err != nil {
		o.record(raw, terms, false, 0, true, time.Since(start))
		return nil, fmt.Errorf("stemmed query: %w", err)
	}
	if len(hits) > 0 {
		res := &Result{
			Hits:     hits,
			Terms:    terms,
			Variant:  index.VariantStemmed,
			Duration: time.Since(start),
		}
		o.finish(raw, res)
		return res, nil
	}

	// The stemmed variant legitimately found nothing. Do not begin
	// the fallback on a context that is already done.
	if err := ctx.Err(); err != nil {
		o.record(raw, terms, false, 0, true, time.Since(start))
		return nil, err
	}

	slog.Debug("search_fallback",
		slog.String("query", raw),
		slog.Int("term_count", len(terms)))

	hits, err = o.prefix(ctx, terms, limit)
	if err != nil {
		o.record(raw, terms, true, 0, true, time.Since(start))
		return nil, fmt.Errorf("prefix query: %w", err)
	}

	res := &Result{
		Hits:     hits,
		Terms:    terms,
		Variant:  index.VariantPrefix,
		Fallback: true,
		Duration: time.Since(start),
	}
	o.finish(raw, res)
	return res, nil
}

func (o *Orchestrator) clampLimit(limit int) int {
	if limit <= 0 {
		return o.defaultLimit
	}
	if limit > o.maxLimit {
		return o.maxLimit
	}
	return limit
}

// finish logs and records telemetry for a successful terminal result.
func (o *Orchestrator) finish(raw string, res *Result) {
	if res.Hits == nil {
		res.Hits = []*index.Hit{}
	}
	slog.Debug("search_complete",
		slog.String("query", raw),
		slog.String("variant", string(res.Variant)),
		slog.Bool("fallback", res.Fallback),
		slog.Int("hits", len(res.Hits)),
		slog.Duration("duration", res.Duration))
	o.record(raw, res.Terms, res.Fallback, len(res.Hits), false, res.Duration)
}

// record forwards one query event to the metrics collector if one is
// configured.
func (o *Orchestrator) record(raw string, terms []string, fallback bool, hits int, failed bool, latency time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.Record(telemetry.QueryEvent{
		Query:       raw,
		Terms:       terms,
		Fallback:    fallback,
		ResultCount: hits,
		Failed:      failed,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}
