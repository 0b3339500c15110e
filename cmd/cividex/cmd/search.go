package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/logging"
	"github.com/openmuni/cividex/internal/output"
	"github.com/openmuni/cividex/internal/search"
	"github.com/openmuni/cividex/internal/store"
	"github.com/openmuni/cividex/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit       int
	kind        string
	format      string // "text", "json"
	interactive bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the indexed records",
		Long: `Search the indexed municipal records.

Queries run against the stemmed full-text index first; when a query
matches nothing, its terms are retried as prefixes so partial words
still find records.

Examples:
  cividex search "noise ordinance"
  cividex search "sidewalk repair" --kind minutes --limit 5
  cividex search "water utility fund" --format json
  cividex search --interactive`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if !opts.interactive && strings.TrimSpace(query) == "" {
				return fmt.Errorf("query is required (or use --interactive)")
			}
			return runSearchCmd(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "Filter by record kind: ordinance, minutes, budget, notice")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Open the live search view")

	return cmd
}

func runSearchCmd(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}

	kind := store.Kind(strings.ToLower(opts.kind))
	if kind != "" && !kind.Valid() {
		return fmt.Errorf("unknown record kind %q (valid: ordinance, minutes, budget, notice)", opts.kind)
	}

	_, cfg, err := loadCorpusConfig(".")
	if err != nil {
		return err
	}

	engine, records, err := openExistingIndex(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()
	defer func() { _ = records.Close() }()

	searcher, err := newSearcher(engine, cfg, nil)
	if err != nil {
		return err
	}

	if opts.interactive {
		selected, err := ui.RunSearch(ctx, ui.SearchOptions{
			Searcher: searcher,
			Records:  records,
			Limit:    opts.limit,
			NoColor:  ui.DetectNoColor(),
			Output:   cmd.OutOrStdout(),
		})
		if err != nil {
			return err
		}
		// Print the chosen record path so the result can be piped.
		if selected != "" {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), selected)
		}
		return nil
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	res, err := searcher.Search(ctx, query, opts.limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	rows, err := joinHits(ctx, records, res.Hits, kind)
	if err != nil {
		return err
	}
	slog.Info("search_complete",
		slog.String("variant", string(res.Variant)),
		slog.Bool("fallback", res.Fallback),
		slog.Int("results", len(rows)))

	out := output.New(cmd.OutOrStdout())
	switch opts.format {
	case "json":
		return formatSearchJSON(cmd, query, res, rows)
	default:
		return formatSearchText(out, query, res, rows)
	}
}

// searchRow is one hit joined with its stored record.
type searchRow struct {
	Record  *store.Record
	Score   float64
	Snippet string
}

// joinHits resolves hits to stored records, dropping hits whose record
// is gone and, when a kind filter is set, hits of other kinds.
func joinHits(ctx context.Context, records store.RecordStore, hits []*index.Hit, kind store.Kind) ([]searchRow, error) {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}

	recs, err := records.GetRecords(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	byID := make(map[string]*store.Record, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}

	rows := make([]searchRow, 0, len(hits))
	for _, h := range hits {
		rec, ok := byID[h.DocID]
		if !ok {
			// Index and store can briefly disagree mid-ingest.
			continue
		}
		if kind != "" && rec.Kind != kind {
			continue
		}
		rows = append(rows, searchRow{Record: rec, Score: h.Score, Snippet: h.Snippet})
	}
	return rows, nil
}

// formatSearchText outputs results in human-readable form.
func formatSearchText(out *output.Writer, query string, res *search.Result, rows []searchRow) error {
	if len(rows) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	out.Statusf("🔍", "Found %d results for %q:", len(rows), query)
	if res.Fallback && res.Variant == index.VariantPrefix {
		out.Status("", "(matched by word prefix, no exact stemmed matches)")
	}
	out.Newline()

	for i, row := range rows {
		rec := row.Record

		label := string(rec.Kind)
		if rec.Number != "" {
			label += " " + rec.Number
		}
		out.Statusf("", "%d. [%s] %s (score: %.2f)", i+1, label, rec.Title, row.Score)
		out.Status("", "   "+rec.Path)

		if snippet := strings.TrimSpace(ui.StripMarks(row.Snippet)); snippet != "" {
			out.Status("", "   "+snippet)
		}
		out.Newline()
	}

	return nil
}

// formatSearchJSON outputs results in JSON form.
func formatSearchJSON(cmd *cobra.Command, query string, res *search.Result, rows []searchRow) error {
	type jsonResult struct {
		ID      string  `json:"id"`
		Kind    string  `json:"kind"`
		Number  string  `json:"number,omitempty"`
		Title   string  `json:"title"`
		Path    string  `json:"path"`
		Date    string  `json:"date,omitempty"`
		Score   float64 `json:"score"`
		Snippet string  `json:"snippet,omitempty"`
	}

	type jsonOutput struct {
		Query    string       `json:"query"`
		Terms    []string     `json:"terms"`
		Variant  string       `json:"variant"`
		Fallback bool         `json:"fallback"`
		Count    int          `json:"count"`
		Results  []jsonResult `json:"results"`
	}

	results := make([]jsonResult, 0, len(rows))
	for _, row := range rows {
		rec := row.Record
		jr := jsonResult{
			ID:      rec.ID,
			Kind:    string(rec.Kind),
			Number:  rec.Number,
			Title:   rec.Title,
			Path:    rec.Path,
			Score:   row.Score,
			Snippet: row.Snippet,
		}
		if !rec.Date.IsZero() {
			jr.Date = rec.Date.Format("2006-01-02")
		}
		results = append(results, jr)
	}

	terms := res.Terms
	if terms == nil {
		terms = []string{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(jsonOutput{
		Query:    query,
		Terms:    terms,
		Variant:  string(res.Variant),
		Fallback: res.Fallback,
		Count:    len(results),
		Results:  results,
	})
}
