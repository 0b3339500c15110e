package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/cividex/internal/store"
)

// =============================================================================
// TS-01: Front matter parsing
// =============================================================================

func TestParseRecord_FullFrontMatter(t *testing.T) {
	content := []byte(`---
kind: ordinance
title: Noise Control Ordinance
number: "2024-17"
date: 2024-03-12
---

An ordinance regulating noise levels in residential districts.
`)

	// When: parsing a fully annotated file
	rec, err := ParseRecord("ordinances/2024/ord-2024-17.md", content)
	require.NoError(t, err)

	// Then: every field comes from the front matter
	assert.Equal(t, store.KindOrdinance, rec.Kind)
	assert.Equal(t, "Noise Control Ordinance", rec.Title)
	assert.Equal(t, "2024-17", rec.Number)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), rec.Date)
	assert.Equal(t, "ordinances/2024/ord-2024-17.md", rec.Path)

	// And: the front matter is stripped from the body
	assert.Equal(t, "An ordinance regulating noise levels in residential districts.", rec.Body)
	assert.NotContains(t, rec.Body, "kind:")
}

func TestParseRecord_FiscalYear(t *testing.T) {
	content := []byte(`---
kind: budget
title: FY2025 Adopted Budget
fiscal_year: 2025
---
General fund appropriations.
`)

	rec, err := ParseRecord("budgets/fy2025.md", content)
	require.NoError(t, err)

	assert.Equal(t, store.KindBudget, rec.Kind)
	assert.Equal(t, 2025, rec.FiscalYear)
	assert.True(t, rec.Date.IsZero())
}

func TestParseRecord_KindIsCaseInsensitive(t *testing.T) {
	content := []byte("---\nkind: Ordinance\n---\nBody.\n")

	rec, err := ParseRecord("ordinances/x.md", content)
	require.NoError(t, err)
	assert.Equal(t, store.KindOrdinance, rec.Kind)
}

func TestParseRecord_RFC3339Date(t *testing.T) {
	content := []byte("---\ndate: \"2024-03-12T19:00:00Z\"\n---\nBody.\n")

	rec, err := ParseRecord("minutes/session.md", content)
	require.NoError(t, err)
	assert.Equal(t, 2024, rec.Date.Year())
	assert.Equal(t, time.March, rec.Date.Month())
	assert.Equal(t, 12, rec.Date.Day())
}

func TestParseRecord_BadFrontMatter(t *testing.T) {
	content := []byte("---\nkind: [unclosed\n---\nBody.\n")

	_, err := ParseRecord("notices/bad.md", content)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "front matter")
}

func TestParseRecord_UnknownKind(t *testing.T) {
	content := []byte("---\nkind: resolution\n---\nBody.\n")

	_, err := ParseRecord("notices/res.md", content)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown record kind")
}

func TestParseRecord_BadDate(t *testing.T) {
	content := []byte("---\ndate: next tuesday\n---\nBody.\n")

	_, err := ParseRecord("notices/soon.md", content)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a date")
}

// =============================================================================
// TS-02: Fallbacks for unannotated files
// =============================================================================

func TestParseRecord_TitleFromHeading(t *testing.T) {
	content := []byte("# Public Hearing on Water Rates\n\nThe council will hear comment.\n")

	rec, err := ParseRecord("notices/hearing.md", content)
	require.NoError(t, err)
	assert.Equal(t, "Public Hearing on Water Rates", rec.Title)
}

func TestParseRecord_TitleFromFilename(t *testing.T) {
	content := []byte("Plain text with no heading.\n")

	rec, err := ParseRecord("notices/water-rate_change.txt", content)
	require.NoError(t, err)
	assert.Equal(t, "water rate change", rec.Title)
}

func TestParseRecord_KindFromDirectory(t *testing.T) {
	cases := []struct {
		path string
		want store.Kind
	}{
		{"ordinances/2024/ord-1.md", store.KindOrdinance},
		{"minutes/2024-03-19.md", store.KindMinutes},
		{"budgets/fy2025.md", store.KindBudget},
		{"notices/hearing.md", store.KindNotice},
		{"misc/something.md", store.KindNotice},
		{"toplevel.md", store.KindNotice},
	}

	for _, tc := range cases {
		rec, err := ParseRecord(tc.path, []byte("Body.\n"))
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.want, rec.Kind, tc.path)
	}
}

func TestParseRecord_DateFromFilename(t *testing.T) {
	content := []byte("# Regular Session\n\nMinutes text.\n")

	rec, err := ParseRecord("minutes/2024/2024-03-19-regular-session.md", content)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 19, 0, 0, 0, 0, time.UTC), rec.Date)
}

func TestParseRecord_FrontMatterDateWins(t *testing.T) {
	content := []byte("---\ndate: 2024-04-02\n---\nApproved as amended.\n")

	rec, err := ParseRecord("minutes/2024-03-19.md", content)
	require.NoError(t, err)
	assert.Equal(t, time.April, rec.Date.Month())
}

// =============================================================================
// TS-03: Identity and hashing
// =============================================================================

func TestRecordID_Deterministic(t *testing.T) {
	a := RecordID("ordinances/2024/ord-2024-17.md")
	b := RecordID("ordinances/2024/ord-2024-17.md")
	c := RecordID("ordinances/2024/ord-2024-18.md")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestParseRecord_ContentHashTracksContent(t *testing.T) {
	first, err := ParseRecord("notices/n.md", []byte("Version one.\n"))
	require.NoError(t, err)
	second, err := ParseRecord("notices/n.md", []byte("Version two.\n"))
	require.NoError(t, err)
	same, err := ParseRecord("notices/n.md", []byte("Version one.\n"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "identity follows the path")
	assert.NotEqual(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, first.ContentHash, same.ContentHash)
}
