package mcp

import (
	"fmt"
	"strings"

	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/store"
)

// dateLayout is the record date format used in tool output.
const dateLayout = "2006-01-02"

// FormatSearchResults formats search results as markdown.
func FormatSearchResults(out *SearchRecordsOutput) string {
	if out == nil {
		return "No records matched."
	}
	if len(out.Terms) == 0 {
		return fmt.Sprintf("Query %q has no searchable terms.", out.Query)
	}
	if len(out.Results) == 0 {
		return fmt.Sprintf("No records matched %q.", out.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Records matching %q\n\n", out.Query)
	fmt.Fprintf(&sb, "Found %d record", len(out.Results))
	if len(out.Results) != 1 {
		sb.WriteString("s")
	}
	if out.Fallback {
		sb.WriteString(" via prefix fallback")
	}
	sb.WriteString("\n\n")

	for i, r := range out.Results {
		formatRecordResult(&sb, i+1, r)
	}

	return sb.String()
}

// formatRecordResult formats a single search result.
func formatRecordResult(sb *strings.Builder, num int, r RecordResult) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, r.Title, r.Score)

	meta := []string{r.Kind}
	if r.Number != "" {
		meta = append(meta, r.Number)
	}
	if r.Date != "" {
		meta = append(meta, r.Date)
	}
	if r.FiscalYear != 0 {
		meta = append(meta, fmt.Sprintf("FY%d", r.FiscalYear))
	}
	meta = append(meta, r.Path)
	fmt.Fprintf(sb, "%s\n", strings.Join(meta, " | "))

	if r.Snippet != "" {
		fmt.Fprintf(sb, "\n> %s\n", markdownSnippet(r.Snippet))
	}
	sb.WriteString("\n")
}

// FormatRecord formats a full record as markdown.
func FormatRecord(out GetRecordOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", out.Title)
	fmt.Fprintf(&sb, "- **ID:** %s\n", out.ID)
	fmt.Fprintf(&sb, "- **Kind:** %s\n", out.Kind)
	if out.Number != "" {
		fmt.Fprintf(&sb, "- **Number:** %s\n", out.Number)
	}
	if out.Date != "" {
		fmt.Fprintf(&sb, "- **Date:** %s\n", out.Date)
	}
	if out.FiscalYear != 0 {
		fmt.Fprintf(&sb, "- **Fiscal year:** %d\n", out.FiscalYear)
	}
	fmt.Fprintf(&sb, "- **Path:** %s\n\n", out.Path)

	sb.WriteString(out.Body)
	if !strings.HasSuffix(out.Body, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}

// markdownSnippet collapses a snippet onto one line and converts its
// <mark> highlight tags to bold.
func markdownSnippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "<mark>", "**")
	s = strings.ReplaceAll(s, "</mark>", "**")
	return s
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToRecordResult joins one hit with its stored record.
func ToRecordResult(h *index.Hit, rec *store.Record) RecordResult {
	r := RecordResult{
		ID:         rec.ID,
		Kind:       string(rec.Kind),
		Number:     rec.Number,
		Title:      rec.Title,
		FiscalYear: rec.FiscalYear,
		Path:       rec.Path,
		Score:      h.Score,
		Snippet:    h.Snippet,
	}
	if !rec.Date.IsZero() {
		r.Date = rec.Date.Format(dateLayout)
	}
	return r
}

// ToGetRecordOutput converts a stored record to the tool output format.
func ToGetRecordOutput(rec *store.Record) GetRecordOutput {
	out := GetRecordOutput{
		ID:         rec.ID,
		Kind:       string(rec.Kind),
		Number:     rec.Number,
		Title:      rec.Title,
		FiscalYear: rec.FiscalYear,
		Path:       rec.Path,
		Body:       rec.Body,
	}
	if !rec.Date.IsZero() {
		out.Date = rec.Date.Format(dateLayout)
	}
	return out
}
