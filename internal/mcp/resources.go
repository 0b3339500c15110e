package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openmuni/cividex/internal/store"
	"github.com/openmuni/cividex/pkg/version"
)

// Resource URIs.
const (
	// StatsResourceURI names the corpus statistics resource.
	StatsResourceURI = "cividex://stats"

	// QueryMetricsResourceURI names the query telemetry resource.
	QueryMetricsResourceURI = "cividex://query_metrics"

	// recordURIPrefix prefixes per-record resource URIs.
	recordURIPrefix = "cividex://records/"
)

// maxRecordResources caps how many records are advertised as resources.
const maxRecordResources = 10000

// recordURI returns the resource URI for a record ID.
func recordURI(id string) string {
	return recordURIPrefix + id
}

// registerStatsResource registers the cividex://stats resource.
func (s *Server) registerStatsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "stats",
			URI:         StatsResourceURI,
			Description: "Corpus and index statistics: backend, record counts by kind, last ingest",
			MIMEType:    "application/json",
		},
		s.makeStatsHandler(),
	)
}

// makeStatsHandler creates a handler for the stats resource.
func (s *Server) makeStatsHandler() mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		content, err := s.statsJSON(ctx)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      StatsResourceURI,
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}

// statsJSON renders the current corpus statistics.
func (s *Server) statsJSON(ctx context.Context) ([]byte, error) {
	out, err := s.buildStats(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	content, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return content, nil
}

// buildStats assembles the stats payload from the engine and store.
func (s *Server) buildStats(ctx context.Context) (*StatsOutput, error) {
	engineStats, err := s.engine.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine stats: %w", err)
	}

	recordCount, err := s.records.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("record count: %w", err)
	}

	byKind, err := s.records.CountByKind(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	kinds := make(map[string]int, len(byKind))
	for k, n := range byKind {
		kinds[string(k)] = n
	}

	// State is informational; a missing key is not an error.
	corpusRoot, _ := s.records.GetState(ctx, store.StateKeyCorpusRoot)
	lastIngest, _ := s.records.GetState(ctx, store.StateKeyLastIngest)

	return &StatsOutput{
		Backend:       engineStats.Backend,
		DocumentCount: engineStats.DocumentCount,
		RecordCount:   recordCount,
		Kinds:         kinds,
		CorpusRoot:    corpusRoot,
		LastIngest:    lastIngest,
		Version:       version.Version,
	}, nil
}

// QueryMetricsOutput is the JSON structure of the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	OutcomeCounts       map[string]int64    `json:"outcome_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	Since         string  `json:"since"`
	FallbackPct   float64 `json:"fallback_pct"`
	ZeroResultPct float64 `json:"zero_result_pct"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsResourceURI,
			Description: "Query pattern telemetry for search tuning",
			MIMEType:    "application/json",
		},
		s.makeQueryMetricsHandler(),
	)
}

// makeQueryMetricsHandler creates a handler for the query_metrics resource.
func (s *Server) makeQueryMetricsHandler() mcp.ResourceHandler {
	return func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		content, err := s.queryMetricsJSON()
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      QueryMetricsResourceURI,
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}

// queryMetricsJSON renders the current telemetry snapshot.
func (s *Server) queryMetricsJSON() ([]byte, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	if metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}

	snapshot := metrics.GetSnapshot()

	output := QueryMetricsOutput{
		Summary: QueryMetricsSummary{
			TotalQueries:  snapshot.TotalQueries,
			Since:         snapshot.Since.Format(time.RFC3339),
			FallbackPct:   snapshot.FallbackPercentage(),
			ZeroResultPct: snapshot.ZeroResultPercentage(),
		},
		OutcomeCounts:       make(map[string]int64, len(snapshot.OutcomeCounts)),
		TopTerms:            make([]QueryTermCount, 0, len(snapshot.TopTerms)),
		ZeroResultQueries:   snapshot.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snapshot.LatencyDistribution)),
	}

	for outcome, count := range snapshot.OutcomeCounts {
		output.OutcomeCounts[string(outcome)] = count
	}
	for _, tc := range snapshot.TopTerms {
		output.TopTerms = append(output.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	for bucket, count := range snapshot.LatencyDistribution {
		output.LatencyDistribution[string(bucket)] = count
	}

	content, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return content, nil
}

// RegisterRecordResources advertises stored records as MCP resources,
// so assistants can read record bodies without searching first.
// Call after the store is populated and before serving.
func (s *Server) RegisterRecordResources(ctx context.Context) error {
	recs, _, err := s.records.ListRecords(ctx, "", "", maxRecordResources)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	s.mu.Lock()
	for _, rec := range recs {
		s.registerRecordResource(rec)
	}
	s.mu.Unlock()

	s.logger.Info("mcp_resources_registered", slog.Int("count", len(recs)))
	return nil
}

// registerRecordResource registers a single record as an MCP resource.
func (s *Server) registerRecordResource(rec *store.Record) {
	uri := recordURI(rec.ID)
	mimeType := MimeTypeForPath(rec.Path)

	s.mcp.AddResource(
		&mcp.Resource{
			Name:        rec.Title,
			URI:         uri,
			Description: fmt.Sprintf("%s (%s)", rec.Path, rec.Kind),
			MIMEType:    mimeType,
		},
		s.makeRecordHandler(rec.ID),
	)

	s.recordResources = append(s.recordResources, ResourceInfo{
		URI:      uri,
		Name:     rec.Title,
		MIMEType: mimeType,
	})
}

// makeRecordHandler creates a read handler for a specific record.
func (s *Server) makeRecordHandler(id string) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		rec, err := s.loadRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      recordURI(rec.ID),
					MIMEType: MimeTypeForPath(rec.Path),
					Text:     rec.Body,
				},
			},
		}, nil
	}
}

// loadRecord fetches one record for resource reads.
func (s *Server) loadRecord(ctx context.Context, id string) (*store.Record, error) {
	rec, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return nil, MapError(err)
	}
	if rec == nil {
		return nil, NewResourceNotFoundError(recordURI(id))
	}
	return rec, nil
}

// ListResources returns all advertised resources.
func (s *Server) ListResources() []ResourceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resources := []ResourceInfo{
		{URI: StatsResourceURI, Name: "stats", MIMEType: "application/json"},
	}
	if s.metrics != nil {
		resources = append(resources, ResourceInfo{
			URI:      QueryMetricsResourceURI,
			Name:     "query_metrics",
			MIMEType: "application/json",
		})
	}
	resources = append(resources, s.recordResources...)
	return resources
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	switch {
	case uri == StatsResourceURI:
		content, err := s.statsJSON(ctx)
		if err != nil {
			return nil, err
		}
		return &ResourceContent{URI: uri, Content: string(content), MIMEType: "application/json"}, nil

	case uri == QueryMetricsResourceURI:
		content, err := s.queryMetricsJSON()
		if err != nil {
			return nil, err
		}
		return &ResourceContent{URI: uri, Content: string(content), MIMEType: "application/json"}, nil

	case strings.HasPrefix(uri, recordURIPrefix):
		rec, err := s.loadRecord(ctx, strings.TrimPrefix(uri, recordURIPrefix))
		if err != nil {
			return nil, err
		}
		return &ResourceContent{URI: uri, Content: rec.Body, MIMEType: MimeTypeForPath(rec.Path)}, nil

	default:
		return nil, NewResourceNotFoundError(uri)
	}
}
