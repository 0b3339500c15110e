package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// StatusInfo contains index health information for the status command.
type StatusInfo struct {
	CorpusRoot   string         `json:"corpus_root"`
	Backend      string         `json:"backend"`
	TotalRecords int            `json:"total_records"`
	ByKind       map[string]int `json:"by_kind"`
	LastIngest   time.Time      `json:"last_ingest"`

	// Storage sizes (in bytes)
	IndexSize int64 `json:"index_size"`
	StoreSize int64 `json:"store_size"`
	TotalSize int64 `json:"total_size"`

	// IngestStatus is "idle", "running", or "never" when no ingest has
	// completed yet.
	IngestStatus string `json:"ingest_status"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+info.CorpusRoot))

	_, _ = fmt.Fprintf(r.out, "  Records:     %d\n", info.TotalRecords)
	_, _ = fmt.Fprintf(r.out, "  Backend:     %s\n", info.Backend)
	if !info.LastIngest.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last ingest: %s\n", formatTime(info.LastIngest))
	}
	_, _ = fmt.Fprintf(r.out, "  Ingest:      %s\n", r.renderStatus(info.IngestStatus))
	_, _ = fmt.Fprintln(r.out)

	if len(info.ByKind) > 0 {
		_, _ = fmt.Fprintln(r.out, "  Records by kind:")
		kinds := make([]string, 0, len(info.ByKind))
		for kind := range info.ByKind {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			_, _ = fmt.Fprintf(r.out, "    %-10s %d\n", kind+":", info.ByKind[kind])
		}
		_, _ = fmt.Fprintln(r.out)
	}

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Index:   %s\n", FormatBytes(info.IndexSize))
	_, _ = fmt.Fprintf(r.out, "    Records: %s\n", FormatBytes(info.StoreSize))
	_, _ = fmt.Fprintf(r.out, "    Total:   %s\n", FormatBytes(info.TotalSize))

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderStatus formats a status string with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "idle":
		return r.styles.Success.Render(status)
	case "running":
		return r.styles.Warning.Render(status)
	case "never":
		return r.styles.Dim.Render(status)
	default:
		return status
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable form.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
