package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/cividex/internal/index"
)

// =============================================================================
// TS-01: search_records via CallTool
// =============================================================================

func TestSearchRecords_ReturnsMarkdown(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	result, err := env.srv.CallTool(context.Background(), "search_records",
		map[string]any{"query": "noise"})
	require.NoError(t, err)

	md, ok := result.(string)
	require.True(t, ok)
	assert.Contains(t, md, `## Records matching "noise"`)
	assert.Contains(t, md, "Noise Control Ordinance")
	assert.Contains(t, md, "score:")
	assert.Contains(t, md, "ordinance | 2024-17 | 2024-03-12 | ordinances/2024/ord-2024-17.md")
	assert.NotContains(t, md, "via prefix fallback")
}

func TestSearchRecords_KindFilter(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	// Both the ordinance and the minutes mention the council.
	result, err := env.srv.CallTool(context.Background(), "search_records",
		map[string]any{"query": "council", "kind": "minutes"})
	require.NoError(t, err)

	md := result.(string)
	assert.Contains(t, md, "Council Minutes March 2024")
	assert.NotContains(t, md, "Noise Control Ordinance")
}

func TestSearchRecords_KindFilterCaseInsensitive(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	result, err := env.srv.CallTool(context.Background(), "search_records",
		map[string]any{"query": "council", "kind": "ORDINANCE"})
	require.NoError(t, err)

	md := result.(string)
	assert.Contains(t, md, "Noise Control Ordinance")
	assert.NotContains(t, md, "Council Minutes March 2024")
}

func TestSearchRecords_LimitAppliedFromJSONNumber(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	// JSON numbers arrive as float64 through the untyped path.
	result, err := env.srv.CallTool(context.Background(), "search_records",
		map[string]any{"query": "council", "limit": float64(1)})
	require.NoError(t, err)
	assert.Contains(t, result.(string), "Found 1 record\n")
}

func TestSearchRecords_OversizedLimitAccepted(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	// Limits above the cap are clamped, not rejected.
	result, err := env.srv.CallTool(context.Background(), "search_records",
		map[string]any{"query": "council", "limit": float64(5000)})
	require.NoError(t, err)
	assert.Contains(t, result.(string), "## Records matching")
}

func TestSearchRecords_PrefixFallback(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	// A partial word misses the stemmed variant and lands on prefix.
	result, err := env.srv.CallTool(context.Background(), "search_records",
		map[string]any{"query": "sidewal"})
	require.NoError(t, err)

	md := result.(string)
	assert.Contains(t, md, "via prefix fallback")
	assert.Contains(t, md, "Council Minutes March 2024")
}

func TestSearchRecords_NoMatches(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	result, err := env.srv.CallTool(context.Background(), "search_records",
		map[string]any{"query": "wastewater"})
	require.NoError(t, err)
	assert.Equal(t, `No records matched "wastewater".`, result.(string))
}

func TestSearchRecords_OperatorOnlyQuery(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	result, err := env.srv.CallTool(context.Background(), "search_records",
		map[string]any{"query": "AND OR NOT"})
	require.NoError(t, err)
	assert.Contains(t, result.(string), "no searchable terms")
}

func TestSearchRecords_DropsHitsWithoutRecords(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	// An indexed document with no stored record is skipped, as happens
	// briefly mid-ingest.
	err := env.engine.Index(context.Background(), []*index.Document{
		{ID: "ghost", Title: "Phantom", Body: "spectral easement review"},
	})
	require.NoError(t, err)

	result, err := env.srv.CallTool(context.Background(), "search_records",
		map[string]any{"query": "spectral"})
	require.NoError(t, err)
	assert.Equal(t, `No records matched "spectral".`, result.(string))
}

// =============================================================================
// TS-02: get_record via CallTool
// =============================================================================

func TestGetRecord_ReturnsFullBody(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	result, err := env.srv.CallTool(context.Background(), "get_record",
		map[string]any{"id": "a1"})
	require.NoError(t, err)

	md := result.(string)
	assert.True(t, strings.HasPrefix(md, "# Noise Control Ordinance\n"))
	assert.Contains(t, md, "- **ID:** a1")
	assert.Contains(t, md, "- **Number:** 2024-17")
	assert.Contains(t, md, "- **Date:** 2024-03-12")
	assert.Contains(t, md, "regulating noise levels in residential districts")
}

func TestGetRecord_UnknownID(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	_, err := env.srv.CallTool(context.Background(), "get_record",
		map[string]any{"id": "zz"})
	mcpErr := requireMCPError(t, err, ErrCodeRecordNotFound)
	assert.Contains(t, mcpErr.Message, "zz")
	assert.Contains(t, mcpErr.Message, "search_records")
}

// =============================================================================
// TS-03: Typed SDK handlers
// =============================================================================

func TestSearchRecordsHandler_ReturnsStructuredOutput(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	_, out, err := env.srv.mcpSearchRecordsHandler(context.Background(), nil,
		SearchRecordsInput{Query: "noise"})
	require.NoError(t, err)

	assert.Equal(t, "noise", out.Query)
	assert.Equal(t, []string{"noise"}, out.Terms)
	assert.Equal(t, "stemmed", out.Variant)
	assert.False(t, out.Fallback)
	require.GreaterOrEqual(t, out.Count, 1)

	first := out.Results[0]
	assert.Equal(t, "a1", first.ID)
	assert.Equal(t, "ordinance", first.Kind)
	assert.Equal(t, "2024-03-12", first.Date)
	assert.Greater(t, first.Score, 0.0)
	assert.Contains(t, first.Snippet, "<mark>")
}

func TestSearchRecordsHandler_KindFilter(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	_, out, err := env.srv.mcpSearchRecordsHandler(context.Background(), nil,
		SearchRecordsInput{Query: "council", Kind: "minutes"})
	require.NoError(t, err)

	require.Equal(t, 1, out.Count)
	assert.Equal(t, "b2", out.Results[0].ID)
}

func TestSearchRecordsHandler_LimitClamped(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	_, out, err := env.srv.mcpSearchRecordsHandler(context.Background(), nil,
		SearchRecordsInput{Query: "council", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)

	// Negative limits fall back to the default instead of erroring.
	_, out, err = env.srv.mcpSearchRecordsHandler(context.Background(), nil,
		SearchRecordsInput{Query: "council", Limit: -5})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.Count, 2)
}

func TestSearchRecordsHandler_Validation(t *testing.T) {
	env := newTestServer(t)

	_, _, err := env.srv.mcpSearchRecordsHandler(context.Background(), nil,
		SearchRecordsInput{})
	requireMCPError(t, err, ErrCodeInvalidParams)

	_, _, err = env.srv.mcpSearchRecordsHandler(context.Background(), nil,
		SearchRecordsInput{Query: "  "})
	requireMCPError(t, err, ErrCodeInvalidParams)

	_, _, err = env.srv.mcpSearchRecordsHandler(context.Background(), nil,
		SearchRecordsInput{Query: "noise", Kind: "permit"})
	requireMCPError(t, err, ErrCodeInvalidParams)
}

func TestSearchRecordsHandler_EmptyTermsShape(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	// Operator-only queries produce an empty terms slice, never null.
	_, out, err := env.srv.mcpSearchRecordsHandler(context.Background(), nil,
		SearchRecordsInput{Query: "AND OR"})
	require.NoError(t, err)
	assert.NotNil(t, out.Terms)
	assert.Empty(t, out.Terms)
	assert.Equal(t, 0, out.Count)
}

func TestGetRecordHandler_ReturnsRecord(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	_, out, err := env.srv.mcpGetRecordHandler(context.Background(), nil,
		GetRecordInput{ID: "c3"})
	require.NoError(t, err)

	assert.Equal(t, "c3", out.ID)
	assert.Equal(t, "budget", out.Kind)
	assert.Equal(t, 2025, out.FiscalYear)
	assert.Empty(t, out.Date)
	assert.Contains(t, out.Body, "General fund appropriations")
}

func TestGetRecordHandler_Validation(t *testing.T) {
	env := newTestServer(t)
	env.seed(t)

	_, _, err := env.srv.mcpGetRecordHandler(context.Background(), nil, GetRecordInput{})
	requireMCPError(t, err, ErrCodeInvalidParams)

	_, _, err = env.srv.mcpGetRecordHandler(context.Background(), nil, GetRecordInput{ID: "zz"})
	requireMCPError(t, err, ErrCodeRecordNotFound)
}
