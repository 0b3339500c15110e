package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	civerrors "github.com/openmuni/cividex/internal/errors"
	"github.com/openmuni/cividex/internal/query"
)

// =============================================================================
// TS-01: Sentinel and context error mapping
// =============================================================================

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_Sentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "index not found",
			err:      ErrIndexNotFound,
			wantCode: ErrCodeIndexNotFound,
			wantMsg:  "Index not found. Run 'cividex index' first.",
		},
		{
			name:     "record not found",
			err:      ErrRecordNotFound,
			wantCode: ErrCodeRecordNotFound,
			wantMsg:  "Record not found.",
		},
		{
			name:     "deadline exceeded",
			err:      context.DeadlineExceeded,
			wantCode: ErrCodeTimeout,
			wantMsg:  "Request timed out.",
		},
		{
			name:     "canceled",
			err:      context.Canceled,
			wantCode: ErrCodeTimeout,
			wantMsg:  "Request was canceled.",
		},
		{
			name:     "tool not found",
			err:      ErrToolNotFound,
			wantCode: ErrCodeMethodNotFound,
			wantMsg:  "Tool not found.",
		},
		{
			name:     "resource not found",
			err:      ErrResourceNotFound,
			wantCode: ErrCodeMethodNotFound,
			wantMsg:  "Resource not found.",
		},
		{
			name:     "unknown error",
			err:      errors.New("disk on fire"),
			wantCode: ErrCodeInternalError,
			wantMsg:  "Internal server error.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mcpErr := MapError(tt.err)
			require.NotNil(t, mcpErr)
			assert.Equal(t, tt.wantCode, mcpErr.Code)
			assert.Equal(t, tt.wantMsg, mcpErr.Message)
		})
	}
}

func TestMapError_WrappedSentinel(t *testing.T) {
	err := fmt.Errorf("stemmed query: %w", context.Canceled)
	mcpErr := MapError(err)
	require.NotNil(t, mcpErr)
	assert.Equal(t, ErrCodeTimeout, mcpErr.Code)
}

func TestMapError_UnsafeTerm(t *testing.T) {
	err := fmt.Errorf("check: %w", query.ErrUnsafeTerm)
	mcpErr := MapError(err)
	require.NotNil(t, mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Equal(t, err.Error(), mcpErr.Message)
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	orig := NewInvalidParamsError("limit must be a number")

	assert.Same(t, orig, MapError(orig))

	wrapped := fmt.Errorf("tool call: %w", orig)
	assert.Same(t, orig, MapError(wrapped))
}

// =============================================================================
// TS-02: CivError category mapping
// =============================================================================

func TestMapError_CivErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		wantCode int
	}{
		{"record not found", civerrors.ErrCodeRecordNotFound, ErrCodeRecordNotFound},
		{"index corrupt", civerrors.ErrCodeIndexCorrupt, ErrCodeIndexNotFound},
		{"index schema", civerrors.ErrCodeIndexSchema, ErrCodeIndexNotFound},
		{"invalid input", civerrors.ErrCodeInvalidInput, ErrCodeInvalidParams},
		{"unsafe term", civerrors.ErrCodeUnsafeTerm, ErrCodeInvalidParams},
		{"query failed", civerrors.ErrCodeQueryFailed, ErrCodeInternalError},
		{"internal", civerrors.ErrCodeInternal, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			civErr := civerrors.New(tt.code, "something happened", nil)
			mcpErr := MapError(civErr)
			require.NotNil(t, mcpErr)
			assert.Equal(t, tt.wantCode, mcpErr.Code)
			assert.Equal(t, "something happened", mcpErr.Message)
		})
	}
}

func TestMapError_CivErrorSuggestionAppended(t *testing.T) {
	civErr := civerrors.New(civerrors.ErrCodeIndexCorrupt, "Index is corrupt.", nil).
		WithSuggestion("Run 'cividex index --force' to rebuild.")

	mcpErr := MapError(civErr)
	require.NotNil(t, mcpErr)
	assert.Equal(t, "Index is corrupt. Run 'cividex index --force' to rebuild.", mcpErr.Message)
}

func TestMapError_WrappedCivError(t *testing.T) {
	civErr := civerrors.New(civerrors.ErrCodeRecordNotFound, "no such record", nil)
	err := fmt.Errorf("load records: %w", civErr)

	mcpErr := MapError(err)
	require.NotNil(t, mcpErr)
	assert.Equal(t, ErrCodeRecordNotFound, mcpErr.Code)
}

// =============================================================================
// TS-03: Constructors and formatting
// =============================================================================

func TestErrorConstructors(t *testing.T) {
	invalid := NewInvalidParamsError("query is required")
	assert.Equal(t, ErrCodeInvalidParams, invalid.Code)
	assert.Equal(t, "query is required", invalid.Message)

	method := NewMethodNotFoundError("rezone_parcel")
	assert.Equal(t, ErrCodeMethodNotFound, method.Code)
	assert.Equal(t, "Tool 'rezone_parcel' not found.", method.Message)

	resource := NewResourceNotFoundError("cividex://records/zz")
	assert.Equal(t, ErrCodeMethodNotFound, resource.Code)
	assert.Equal(t, "Resource 'cividex://records/zz' not found.", resource.Message)
}

func TestMCPError_Error(t *testing.T) {
	err := &MCPError{Code: ErrCodeInvalidParams, Message: "bad kind"}
	assert.Equal(t, "MCP error -32602: bad kind", err.Error())
}
