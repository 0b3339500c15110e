package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/openmuni/cividex/internal/search"
	"github.com/openmuni/cividex/internal/store"
)

// searchDebounce is how long typing must pause before a query is
// dispatched.
const searchDebounce = 150 * time.Millisecond

// Searcher runs one query against the index.
type Searcher interface {
	Search(ctx context.Context, raw string, limit int) (*search.Result, error)
}

// RecordLoader resolves hit IDs to stored records.
type RecordLoader interface {
	GetRecords(ctx context.Context, ids []string) ([]*store.Record, error)
}

// SearchOptions configures the interactive search view.
type SearchOptions struct {
	Searcher Searcher
	Records  RecordLoader
	Limit    int
	NoColor  bool
	Output   io.Writer
}

// RunSearch starts the interactive search view and blocks until the
// user quits. It returns the path of the record selected with enter,
// or "" when the view was dismissed without a selection.
func RunSearch(ctx context.Context, opts SearchOptions) (string, error) {
	if opts.Searcher == nil {
		return "", fmt.Errorf("searcher is required")
	}
	if opts.Records == nil {
		return "", fmt.Errorf("record store is required")
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if !IsTTY(out) {
		return "", fmt.Errorf("interactive search requires a terminal")
	}

	model := newSearchModel(ctx, opts)

	popts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if f, ok := out.(*os.File); ok {
		popts = append(popts, tea.WithOutput(f))
	}

	final, err := tea.NewProgram(model, popts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			return "", nil
		}
		return "", err
	}

	if m, ok := final.(*searchModel); ok {
		return m.chosen, nil
	}
	return "", nil
}

// Message types for the search view
type debounceMsg struct {
	gen int
}

type resultsMsg struct {
	gen  int
	res  *search.Result
	rows []resultRow
	err  error
}

// resultRow is one enriched hit ready for display.
type resultRow struct {
	id      string
	title   string
	kind    string
	number  string
	date    time.Time
	path    string
	snippet string
}

// searchModel is the bubbletea model for interactive search.
type searchModel struct {
	ctx      context.Context
	searcher Searcher
	records  RecordLoader
	limit    int

	input    textinput.Model
	styles   Styles
	width    int
	height   int

	// gen increments on every keystroke; results from older
	// generations are dropped
	gen       int
	searching bool
	res       *search.Result
	rows      []resultRow
	selected  int
	err       error

	chosen   string
	quitting bool
}

// newSearchModel creates the search model.
func newSearchModel(ctx context.Context, opts SearchOptions) *searchModel {
	styles := GetStyles(opts.NoColor || DetectNoColor())

	ti := textinput.New()
	ti.Placeholder = "noise ordinance"
	ti.Prompt = "> "
	ti.PromptStyle = styles.Prompt
	ti.CharLimit = 128
	ti.Focus()

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	return &searchModel{
		ctx:      ctx,
		searcher: opts.Searcher,
		records:  opts.Records,
		limit:    limit,
		input:    ti,
		styles:   styles,
		width:    80,
		height:   24,
	}
}

// Init implements tea.Model.
func (m *searchModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *searchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			if m.selected < len(m.rows) {
				m.chosen = m.rows[m.selected].path
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil

		case "up", "ctrl+p":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil

		case "down", "ctrl+n":
			if m.selected < len(m.rows)-1 {
				m.selected++
			}
			return m, nil
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() != before {
			m.gen++
			m.searching = true
			return m, tea.Batch(cmd, debounceCmd(m.gen))
		}
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 6
		return m, nil

	case debounceMsg:
		// Only the latest generation queries; earlier keystrokes were
		// superseded
		if msg.gen != m.gen {
			return m, nil
		}
		raw := m.input.Value()
		if strings.TrimSpace(raw) == "" {
			m.searching = false
			m.res = nil
			m.rows = nil
			m.err = nil
			m.selected = 0
			return m, nil
		}
		return m, m.searchCmd(msg.gen, raw)

	case resultsMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.searching = false
		m.err = msg.err
		if msg.err != nil {
			m.res = nil
			m.rows = nil
			m.selected = 0
			return m, nil
		}
		m.res = msg.res
		m.rows = msg.rows
		if m.selected >= len(m.rows) {
			m.selected = 0
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// debounceCmd schedules a query for the given generation.
func debounceCmd(gen int) tea.Cmd {
	return tea.Tick(searchDebounce, func(time.Time) tea.Msg {
		return debounceMsg{gen: gen}
	})
}

// searchCmd runs the query and loads matching records off the UI loop.
func (m *searchModel) searchCmd(gen int, raw string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.searcher.Search(m.ctx, raw, m.limit)
		if err != nil {
			return resultsMsg{gen: gen, err: err}
		}

		rows, err := m.loadRows(res)
		if err != nil {
			return resultsMsg{gen: gen, err: err}
		}

		return resultsMsg{gen: gen, res: res, rows: rows}
	}
}

// loadRows enriches hits with stored record metadata. Hits without a
// stored record are dropped; index and store can briefly disagree
// mid-ingest.
func (m *searchModel) loadRows(res *search.Result) ([]resultRow, error) {
	if len(res.Hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.DocID)
	}

	records, err := m.records.GetRecords(m.ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*store.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	rows := make([]resultRow, 0, len(res.Hits))
	for _, hit := range res.Hits {
		rec, ok := byID[hit.DocID]
		if !ok {
			continue
		}
		rows = append(rows, resultRow{
			id:      rec.ID,
			title:   rec.Title,
			kind:    string(rec.Kind),
			number:  rec.Number,
			date:    rec.Date,
			path:    rec.Path,
			snippet: hit.Snippet,
		})
	}

	return rows, nil
}

// View implements tea.Model.
func (m *searchModel) View() string {
	if m.quitting {
		return ""
	}

	var sections []string

	sections = append(sections, m.styles.Header.Render("Cividex Search"))
	sections = append(sections, m.input.View())
	sections = append(sections, m.renderStatusLine())
	sections = append(sections, "")
	sections = append(sections, m.renderRows())
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

// renderStatusLine summarizes the current query state with the search
// variant badge.
func (m *searchModel) renderStatusLine() string {
	switch {
	case m.searching:
		return m.styles.Dim.Render("searching...")

	case m.err != nil:
		return m.styles.Error.Render("error: " + m.err.Error())

	case m.res == nil:
		return m.styles.Dim.Render("Type to search ordinances, minutes, budgets, and notices.")

	case len(m.res.Terms) == 0:
		return m.styles.Dim.Render("Query has no searchable terms.")
	}

	parts := []string{
		fmt.Sprintf("%d results", len(m.rows)),
		m.styles.Badge.Render(string(m.res.Variant)),
		fmt.Sprintf("%dms", m.res.Duration.Milliseconds()),
	}
	line := strings.Join(parts, m.styles.Dim.Render(" · "))

	if m.res.Fallback {
		line += "  " + m.styles.Fallback.Render("prefix fallback")
	}

	return line
}

// renderRows renders the visible window of results.
func (m *searchModel) renderRows() string {
	if m.res == nil || len(m.rows) == 0 {
		return ""
	}

	// Each row takes three lines; keep the selection visible
	maxVisible := (m.height - 9) / 3
	if maxVisible < 1 {
		maxVisible = 1
	}
	offset := 0
	if m.selected >= maxVisible {
		offset = m.selected - maxVisible + 1
	}

	var sb strings.Builder
	for i := offset; i < len(m.rows) && i < offset+maxVisible; i++ {
		row := m.rows[i]

		marker := "  "
		titleStyle := m.styles.Title
		if i == m.selected {
			marker = m.styles.Selected.Render("▸ ")
			titleStyle = m.styles.Selected
		}

		sb.WriteString(fmt.Sprintf("%s%s  %s\n", marker,
			titleStyle.Render(row.title),
			m.styles.Meta.Render(m.rowMeta(row))))

		snippet := truncateMarked(collapseSpace(row.snippet), m.width-6)
		sb.WriteString("    " + renderMarks(snippet, m.styles.Mark) + "\n")
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// rowMeta formats the kind, number, and date of a result.
func (m *searchModel) rowMeta(row resultRow) string {
	parts := []string{row.kind}
	if row.number != "" {
		parts = append(parts, row.number)
	}
	if !row.date.IsZero() {
		parts = append(parts, row.date.Format("2006-01-02"))
	}
	return strings.Join(parts, " · ")
}

// renderFooter shows the selected path and key hints.
func (m *searchModel) renderFooter() string {
	var lines []string

	if m.selected < len(m.rows) {
		lines = append(lines, m.styles.Meta.Render(truncateFilePath(m.rows[m.selected].path, m.width-2)))
	}
	lines = append(lines, m.styles.Dim.Render("↑/↓ select · enter prints path · esc quits"))

	return strings.Join(lines, "\n")
}

// markOpen and markClose are the highlight tags both index backends
// wrap matched terms in.
const (
	markOpen  = "<mark>"
	markClose = "</mark>"
)

// StripMarks removes snippet highlight tags for plain text output.
func StripMarks(s string) string {
	s = strings.ReplaceAll(s, markOpen, "")
	return strings.ReplaceAll(s, markClose, "")
}

// renderMarks replaces highlight tags with styled text.
func renderMarks(s string, mark lipgloss.Style) string {
	var sb strings.Builder
	for {
		open := strings.Index(s, markOpen)
		if open < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		rest := s[open+len(markOpen):]
		closeIdx := strings.Index(rest, markClose)
		if closeIdx < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		sb.WriteString(s[:open])
		sb.WriteString(mark.Render(rest[:closeIdx]))
		s = rest[closeIdx+len(markClose):]
	}
}

// collapseSpace flattens snippet whitespace to single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateMarked shortens a snippet to max visible runes, not counting
// highlight tags, and closes an open tag if the cut lands inside one.
func truncateMarked(s string, max int) string {
	if max <= 0 {
		return ""
	}

	var sb strings.Builder
	visible := 0
	inMark := false

	for len(s) > 0 {
		if strings.HasPrefix(s, markOpen) {
			sb.WriteString(markOpen)
			s = s[len(markOpen):]
			inMark = true
			continue
		}
		if strings.HasPrefix(s, markClose) {
			sb.WriteString(markClose)
			s = s[len(markClose):]
			inMark = false
			continue
		}
		if visible == max {
			if inMark {
				sb.WriteString(markClose)
			}
			sb.WriteString("…")
			return sb.String()
		}
		_, size := utf8.DecodeRuneInString(s)
		sb.WriteString(s[:size])
		s = s[size:]
		visible++
	}

	return sb.String()
}
