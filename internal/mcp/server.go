package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openmuni/cividex/internal/config"
	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/search"
	"github.com/openmuni/cividex/internal/store"
	"github.com/openmuni/cividex/internal/telemetry"
	"github.com/openmuni/cividex/pkg/version"
)

// serverName identifies this implementation to MCP clients.
const serverName = "cividex"

const (
	// defaultToolLimit is the search_records result count when the
	// client asks for none.
	defaultToolLimit = 10

	// maxToolLimit caps results per call. Tool output lands in an
	// assistant context window, so the cap sits below the API maximum.
	maxToolLimit = 50
)

// Tool descriptions, shared between registration and ListTools.
const (
	searchRecordsDescription = "Search the municipal records corpus: ordinances, meeting minutes, " +
		"budgets, and public notices. Matches stemmed word forms first (zoning finds zone) and " +
		"falls back to literal prefix matching for identifiers like ord-2024. Returns scored " +
		"results with highlighted snippets."

	getRecordDescription = "Fetch one record in full by its identifier, including the complete " +
		"body text. Use after search_records to read an entire ordinance, minutes entry, " +
		"budget, or notice."
)

// Server is the MCP server for Cividex.
// It bridges AI assistants with the records search stack over stdio.
type Server struct {
	mcp      *mcp.Server
	searcher *search.Orchestrator
	engine   index.Engine
	records  store.RecordStore
	config   *config.Config
	logger   *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.QueryMetrics

	// Records advertised as resources, for ListResources
	recordResources []ResourceInfo

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// ResourceInfo contains information about a resource.
type ResourceInfo struct {
	URI      string
	Name     string
	MIMEType string
}

// ResourceContent contains the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// NewServer creates a new MCP server over the search stack.
func NewServer(searcher *search.Orchestrator, engine index.Engine, records store.RecordStore, cfg *config.Config) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("search orchestrator is required")
	}
	if engine == nil {
		return nil, errors.New("index engine is required")
	}
	if records == nil {
		return nil, errors.New("record store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		searcher: searcher,
		engine:   engine,
		records:  records,
		config:   cfg,
		logger:   slog.Default(),
	}

	// Create MCP server with implementation info
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerStatsResource()

	return s, nil
}

// SetMetrics sets the query metrics collector for telemetry.
// When set, a query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// Capabilities returns whether tools and resources are enabled.
func (s *Server) Capabilities() (hasTools, hasResources bool) {
	return true, true
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "search_records", Description: searchRecordsDescription},
		{Name: "get_record", Description: getRecordDescription},
	}
}

// CallTool invokes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch name {
	case "search_records":
		return s.handleSearchRecordsTool(ctx, args)
	case "get_record":
		return s.handleGetRecordTool(ctx, args)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// handleSearchRecordsTool handles the search_records tool invocation.
// Returns markdown-formatted results.
func (s *Server) handleSearchRecordsTool(ctx context.Context, args map[string]any) (string, error) {
	start := time.Now()
	requestID := generateRequestID()

	rawQuery, ok := args["query"].(string)
	if !ok || rawQuery == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	if strings.TrimSpace(rawQuery) == "" {
		return "", NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	kind, err := parseKind(args["kind"])
	if err != nil {
		return "", err
	}

	limit := clampLimit(0, defaultToolLimit, 1, maxToolLimit)
	if l, ok := args["limit"].(float64); ok {
		limit = clampLimit(int(l), defaultToolLimit, 1, maxToolLimit)
	}

	s.logger.Info("mcp_search_started",
		slog.String("request_id", requestID),
		slog.String("query", rawQuery),
		slog.String("kind", string(kind)),
		slog.Int("limit", limit))

	out, err := s.search(ctx, rawQuery, kind, limit)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", MapError(err)
	}

	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", out.Count))

	return FormatSearchResults(out), nil
}

// handleGetRecordTool handles the get_record tool invocation.
// Returns the full record as markdown.
func (s *Server) handleGetRecordTool(ctx context.Context, args map[string]any) (string, error) {
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return "", NewInvalidParamsError("id parameter is required and must be a non-empty string")
	}

	rec, err := s.records.GetRecord(ctx, id)
	if err != nil {
		s.logger.Error("mcp_get_record_failed",
			slog.String("id", id),
			slog.String("error", err.Error()))
		return "", MapError(err)
	}
	if rec == nil {
		return "", &MCPError{
			Code:    ErrCodeRecordNotFound,
			Message: fmt.Sprintf("No record with id '%s'. Use search_records to find valid identifiers.", id),
		}
	}

	s.logger.Info("mcp_get_record",
		slog.String("id", id),
		slog.String("path", rec.Path))

	return FormatRecord(ToGetRecordOutput(rec)), nil
}

// search runs one query and joins hits with their stored records.
// Hits whose record is gone are dropped; with a kind filter, so are
// hits of other kinds.
func (s *Server) search(ctx context.Context, rawQuery string, kind store.Kind, limit int) (*SearchRecordsOutput, error) {
	res, err := s.searcher.Search(ctx, rawQuery, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.DocID
	}

	recs, err := s.records.GetRecords(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	byID := make(map[string]*store.Record, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}

	results := make([]RecordResult, 0, len(res.Hits))
	for _, h := range res.Hits {
		rec, ok := byID[h.DocID]
		if !ok {
			// Index and store can briefly disagree mid-ingest.
			continue
		}
		if kind != "" && rec.Kind != kind {
			continue
		}
		results = append(results, ToRecordResult(h, rec))
	}

	terms := res.Terms
	if terms == nil {
		terms = []string{}
	}
	return &SearchRecordsOutput{
		Query:    rawQuery,
		Terms:    terms,
		Variant:  string(res.Variant),
		Fallback: res.Fallback,
		Count:    len(results),
		Results:  results,
	}, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_records",
		Description: searchRecordsDescription,
	}, s.mcpSearchRecordsHandler)
	s.logger.Debug("mcp_tool_registered", slog.String("name", "search_records"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_record",
		Description: getRecordDescription,
	}, s.mcpGetRecordHandler)
	s.logger.Debug("mcp_tool_registered", slog.String("name", "get_record"))

	s.logger.Info("mcp_tools_registered", slog.Int("count", 2))
}

// mcpSearchRecordsHandler is the MCP SDK handler for the search_records tool.
func (s *Server) mcpSearchRecordsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchRecordsInput) (
	*mcp.CallToolResult,
	SearchRecordsOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchRecordsOutput{}, NewInvalidParamsError("query parameter is required")
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchRecordsOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	kind := store.Kind(strings.ToLower(input.Kind))
	if kind != "" && !kind.Valid() {
		return nil, SearchRecordsOutput{}, NewInvalidParamsError(
			fmt.Sprintf("unknown record kind '%s' (valid: ordinance, minutes, budget, notice)", input.Kind))
	}

	limit := clampLimit(input.Limit, defaultToolLimit, 1, maxToolLimit)

	out, err := s.search(ctx, input.Query, kind, limit)
	if err != nil {
		return nil, SearchRecordsOutput{}, MapError(err)
	}
	return nil, *out, nil
}

// mcpGetRecordHandler is the MCP SDK handler for the get_record tool.
func (s *Server) mcpGetRecordHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetRecordInput) (
	*mcp.CallToolResult,
	GetRecordOutput,
	error,
) {
	if input.ID == "" {
		return nil, GetRecordOutput{}, NewInvalidParamsError("id parameter is required")
	}

	rec, err := s.records.GetRecord(ctx, input.ID)
	if err != nil {
		return nil, GetRecordOutput{}, MapError(err)
	}
	if rec == nil {
		return nil, GetRecordOutput{}, &MCPError{
			Code:    ErrCodeRecordNotFound,
			Message: fmt.Sprintf("No record with id '%s'. Use search_records to find valid identifiers.", input.ID),
		}
	}
	return nil, ToGetRecordOutput(rec), nil
}

// parseKind validates an optional kind argument from the untyped
// CallTool path. Absent or empty means no filter.
func parseKind(arg any) (store.Kind, error) {
	raw, ok := arg.(string)
	if !ok || raw == "" {
		return "", nil
	}
	kind := store.Kind(strings.ToLower(raw))
	if !kind.Valid() {
		return "", NewInvalidParamsError(
			fmt.Sprintf("unknown record kind '%s' (valid: ordinance, minutes, budget, notice)", raw))
	}
	return kind, nil
}

// Serve runs the server over stdio until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_started",
		slog.String("transport", "stdio"),
		slog.String("version", version.Version))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

// Close releases server resources.
func (s *Server) Close() error {
	// The MCP server stops when its context is canceled; nothing to
	// release here.
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
