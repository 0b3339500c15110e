package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesMetadataFromCode(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{"config", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{"corpus", ErrCodeRecordNotFound, CategoryCorpus, SeverityError, false},
		{"corpus locked", ErrCodeCorpusLocked, CategoryCorpus, SeverityWarning, true},
		{"index corrupt", ErrCodeIndexCorrupt, CategoryIndex, SeverityFatal, false},
		{"index busy", ErrCodeIndexBusy, CategoryIndex, SeverityWarning, true},
		{"query", ErrCodeQueryFailed, CategoryQuery, SeverityError, false},
		{"server", ErrCodeUnauthorized, CategoryServer, SeverityError, false},
		{"internal", ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.severity, e.Severity)
			assert.Equal(t, tt.retryable, e.Retryable)
		})
	}
}

func TestError_FormatsCodeAndMessage(t *testing.T) {
	e := New(ErrCodeIndexFailed, "cannot write segment", nil)
	assert.Equal(t, "[ERR_302_INDEX_FAILED] cannot write segment", e.Error())
}

func TestWrap_PreservesChain(t *testing.T) {
	// Given an underlying error
	cause := fmt.Errorf("open index.db: permission denied")

	// When wrapped into a CivError
	e := Wrap(ErrCodeCorpusPermission, cause)

	// Then the chain is preserved for errors.Is / errors.As
	require.NotNil(t, e)
	assert.Equal(t, cause.Error(), e.Message)
	assert.True(t, stderrors.Is(e, cause))

	var ce *CivError
	assert.True(t, stderrors.As(fmt.Errorf("outer: %w", e), &ce))
	assert.Equal(t, ErrCodeCorpusPermission, ce.Code)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeIndexCorrupt, "segment checksum mismatch", nil)
	b := New(ErrCodeIndexCorrupt, "different message", nil)
	c := New(ErrCodeIndexFailed, "segment checksum mismatch", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestWithDetail_Chains(t *testing.T) {
	e := New(ErrCodeFrontMatterInvalid, "missing kind field", nil).
		WithDetail("path", "ordinances/2024-017.md").
		WithDetail("line", "3").
		WithSuggestion("add a 'kind:' field to the front matter")

	assert.Equal(t, "ordinances/2024-017.md", e.Details["path"])
	assert.Equal(t, "3", e.Details["line"])
	assert.NotEmpty(t, e.Suggestion)
}

func TestHelpers_ClassifyErrors(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeIndexCorrupt, "x", nil)))
	assert.False(t, IsFatal(New(ErrCodeQueryFailed, "x", nil)))
	assert.False(t, IsFatal(nil))

	assert.True(t, IsRetryable(New(ErrCodeIndexBusy, "x", nil)))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))

	assert.Equal(t, ErrCodeQueryFailed, GetCode(New(ErrCodeQueryFailed, "x", nil)))
	assert.Equal(t, "", GetCode(fmt.Errorf("plain")))
	assert.Equal(t, CategoryQuery, GetCategory(New(ErrCodeQueryFailed, "x", nil)))
}
