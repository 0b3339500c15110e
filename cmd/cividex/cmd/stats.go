package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmuni/cividex/internal/store"
	"github.com/openmuni/cividex/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics and telemetry",
		Long:  `Display statistics about query patterns, outcomes, and latency.`,
	}

	cmd.AddCommand(newStatsQueriesCmd())
	return cmd
}

func newStatsQueriesCmd() *cobra.Command {
	var jsonOutput bool
	var days int

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show query pattern statistics",
		Long: `Display query telemetry including:
  - Outcome distribution (stemmed, prefix fallback, zero-result)
  - Top query terms
  - Recent zero-result queries
  - Latency distribution`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatsQueries(cmd, jsonOutput, days)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")

	return cmd
}

// StatsQueriesOutput is the JSON output format for query stats.
type StatsQueriesOutput struct {
	Summary             StatsQueriesSummary `json:"summary"`
	OutcomeCounts       map[string]int64    `json:"outcome_counts"`
	TopTerms            []StatsTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// StatsQueriesSummary provides overview statistics.
type StatsQueriesSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	ZeroResultPct float64 `json:"zero_result_pct"`
	FallbackPct   float64 `json:"fallback_pct"`
}

// StatsTermCount represents a term and its frequency.
type StatsTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func runStatsQueries(cmd *cobra.Command, jsonOutput bool, days int) error {
	_, cfg, err := loadCorpusConfig(".")
	if err != nil {
		return err
	}

	if !fileExists(recordsPath(cfg.Index.DataDir)) {
		return fmt.Errorf("no index found in %s\nRun 'cividex index' to create one", cfg.Corpus.Dir)
	}

	records, err := store.NewSQLiteStore(recordsPath(cfg.Index.DataDir))
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer func() { _ = records.Close() }()

	// Telemetry tables live in the record store database.
	metricsStore, err := telemetry.NewSQLiteMetricsStore(records.DB())
	if err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}

	output, err := getQueryStats(metricsStore, days)
	if err != nil {
		return fmt.Errorf("failed to get query stats: %w", err)
	}

	if jsonOutput {
		return printStatsJSON(cmd, output)
	}

	return printStatsFormatted(cmd, output)
}

func getQueryStats(metricsStore *telemetry.SQLiteMetricsStore, days int) (*StatsQueriesOutput, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -days)
	fromDate := from.Format("2006-01-02")
	toDate := to.Format("2006-01-02")

	outcomes, err := metricsStore.GetOutcomeCounts(fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("get outcome counts: %w", err)
	}

	latencies, err := metricsStore.GetLatencyCounts(fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("get latency counts: %w", err)
	}

	topTerms, err := metricsStore.GetTopTerms(10)
	if err != nil {
		return nil, fmt.Errorf("get top terms: %w", err)
	}

	zeroResults, err := metricsStore.GetZeroResultQueries(10)
	if err != nil {
		return nil, fmt.Errorf("get zero-result queries: %w", err)
	}

	var total int64
	for _, count := range outcomes {
		total += count
	}

	output := &StatsQueriesOutput{
		Summary: StatsQueriesSummary{
			TotalQueries: total,
		},
		OutcomeCounts:       make(map[string]int64, len(outcomes)),
		TopTerms:            make([]StatsTermCount, 0, len(topTerms)),
		ZeroResultQueries:   zeroResults,
		LatencyDistribution: make(map[string]int64, len(latencies)),
	}

	if total > 0 {
		output.Summary.ZeroResultPct = float64(outcomes[telemetry.OutcomeZero]) / float64(total) * 100
		output.Summary.FallbackPct = float64(outcomes[telemetry.OutcomeFallback]) / float64(total) * 100
	}

	for outcome, count := range outcomes {
		output.OutcomeCounts[string(outcome)] = count
	}
	for bucket, count := range latencies {
		output.LatencyDistribution[string(bucket)] = count
	}
	for _, tc := range topTerms {
		output.TopTerms = append(output.TopTerms, StatsTermCount{
			Term:  tc.Term,
			Count: tc.Count,
		})
	}

	return output, nil
}

func printStatsJSON(cmd *cobra.Command, output *StatsQueriesOutput) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func printStatsFormatted(cmd *cobra.Command, output *StatsQueriesOutput) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Query Statistics")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total Queries:   %d\n", output.Summary.TotalQueries)
	fmt.Fprintf(w, "Zero Results:    %.1f%%\n", output.Summary.ZeroResultPct)
	fmt.Fprintf(w, "Prefix Fallback: %.1f%%\n", output.Summary.FallbackPct)
	fmt.Fprintln(w)

	// Outcome Distribution
	if len(output.OutcomeCounts) > 0 {
		fmt.Fprintln(w, "Outcome Distribution:")
		outcomes := []string{"stemmed", "fallback", "zero", "empty", "error"}
		for _, outcome := range outcomes {
			if count, ok := output.OutcomeCounts[outcome]; ok {
				fmt.Fprintf(w, "  %s: %d\n", outcome, count)
			}
		}
		fmt.Fprintln(w)
	}

	// Top Query Terms
	if len(output.TopTerms) > 0 {
		fmt.Fprintln(w, "Top Query Terms:")
		for i, tc := range output.TopTerms {
			fmt.Fprintf(w, "  %d. %s (%d)\n", i+1, tc.Term, tc.Count)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Top Query Terms: (none recorded yet)")
		fmt.Fprintln(w)
	}

	// Zero-Result Queries
	if len(output.ZeroResultQueries) > 0 {
		fmt.Fprintln(w, "Recent Zero-Result Queries:")
		for _, q := range output.ZeroResultQueries {
			fmt.Fprintf(w, "  - %q\n", q)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Recent Zero-Result Queries: (none)")
		fmt.Fprintln(w)
	}

	// Latency Distribution
	if len(output.LatencyDistribution) > 0 {
		fmt.Fprintln(w, "Latency Distribution:")
		buckets := []string{"p10", "p50", "p100", "p500", "p1000"}
		labels := map[string]string{
			"p10":   "<10ms",
			"p50":   "10-50ms",
			"p100":  "50-100ms",
			"p500":  "100-500ms",
			"p1000": ">500ms",
		}
		for _, b := range buckets {
			if count, ok := output.LatencyDistribution[b]; ok {
				fmt.Fprintf(w, "  %s: %d\n", labels[b], count)
			}
		}
	}

	return nil
}
