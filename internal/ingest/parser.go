package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openmuni/cividex/internal/store"
)

var (
	// Matches YAML front matter: ---\n...\n---
	frontMatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)

	// Matches markdown headings: # Title, ## Title, etc.
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

	// Matches a leading date in a filename: 2024-03-19-council.md
	filenameDatePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)
)

// frontMatter is the YAML header of a corpus file. All fields are
// optional; missing ones are filled from the file path and body.
type frontMatter struct {
	Kind       string `yaml:"kind"`
	Title      string `yaml:"title"`
	Number     string `yaml:"number"`
	Date       string `yaml:"date"`
	FiscalYear int    `yaml:"fiscal_year"`
}

// ParseRecord builds a store.Record from a corpus file.
//
// Metadata comes from YAML front matter when present. Fallbacks: title
// from the first heading, then the filename; kind from the top-level
// directory (unknown directories become notices); date from a leading
// YYYY-MM-DD in the filename. An explicit but invalid kind or an
// unparseable date is an error, absence is not.
func ParseRecord(relPath string, content []byte) (*store.Record, error) {
	rec := &store.Record{
		ID:          RecordID(relPath),
		Path:        filepath.ToSlash(relPath),
		ContentHash: hashString(string(content)),
	}

	body := string(content)
	if m := frontMatterPattern.FindStringSubmatch(body); m != nil {
		var fm frontMatter
		if err := yaml.Unmarshal([]byte(m[1]), &fm); err != nil {
			return nil, fmt.Errorf("front matter in %s: %w", relPath, err)
		}
		body = body[len(m[0]):]

		rec.Kind = store.Kind(strings.ToLower(strings.TrimSpace(fm.Kind)))
		rec.Title = strings.TrimSpace(fm.Title)
		rec.Number = strings.TrimSpace(fm.Number)
		rec.FiscalYear = fm.FiscalYear

		if fm.Date != "" {
			date, err := parseDate(fm.Date)
			if err != nil {
				return nil, fmt.Errorf("date in %s: %w", relPath, err)
			}
			rec.Date = date
		}
	}
	rec.Body = strings.TrimSpace(body)

	if rec.Kind != "" && !rec.Kind.Valid() {
		return nil, fmt.Errorf("unknown record kind %q in %s", rec.Kind, relPath)
	}
	if rec.Kind == "" {
		rec.Kind = kindFromPath(relPath)
	}

	if rec.Title == "" {
		rec.Title = titleFromBody(rec.Body)
	}
	if rec.Title == "" {
		rec.Title = titleFromFilename(relPath)
	}

	if rec.Date.IsZero() {
		rec.Date = dateFromFilename(relPath)
	}

	return rec, nil
}

// RecordID returns the deterministic identifier for a corpus path.
// The same relative path always yields the same ID, so re-ingesting a
// file replaces its index entries instead of duplicating them.
func RecordID(relPath string) string {
	return hashString(filepath.ToSlash(relPath))
}

// parseDate accepts a bare date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d, nil
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return d, nil
	}
	return time.Time{}, fmt.Errorf("not a date (want YYYY-MM-DD): %q", s)
}

// kindFromPath derives the record kind from the top-level directory.
// Anything unrecognized files as a notice, the catch-all kind.
func kindFromPath(relPath string) store.Kind {
	top := filepath.ToSlash(relPath)
	if i := strings.IndexByte(top, '/'); i >= 0 {
		top = top[:i]
	} else {
		top = ""
	}

	switch strings.ToLower(top) {
	case "ordinances", "ordinance":
		return store.KindOrdinance
	case "minutes":
		return store.KindMinutes
	case "budgets", "budget":
		return store.KindBudget
	default:
		return store.KindNotice
	}
}

// titleFromBody returns the first markdown heading, if any.
func titleFromBody(body string) string {
	if m := headingPattern.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// titleFromFilename turns the file stem into a readable title.
func titleFromFilename(relPath string) string {
	stem := filepath.Base(relPath)
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	stem = strings.ReplaceAll(stem, "-", " ")
	stem = strings.ReplaceAll(stem, "_", " ")
	return strings.TrimSpace(stem)
}

// dateFromFilename parses a leading YYYY-MM-DD from the file name.
// Meeting minutes are conventionally named this way.
func dateFromFilename(relPath string) time.Time {
	base := filepath.Base(relPath)
	m := filenameDatePattern.FindStringSubmatch(base)
	if m == nil {
		return time.Time{}
	}
	d, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return time.Time{}
	}
	return d
}

// hashString returns the SHA256 hash of a string (first 16 chars).
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:16]
}
