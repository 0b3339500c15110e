package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmuni/cividex/internal/config"
	"github.com/openmuni/cividex/internal/index"
	"github.com/openmuni/cividex/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
		repair     bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run system diagnostics to ensure cividex can operate correctly.

Checks:
  - Corpus directory (record files present)
  - Write permissions on the data directory
  - Disk space (100MB minimum)
  - Memory availability (1GB minimum)
  - File descriptor limits (1024 minimum)
  - Index consistency (once an index exists)

Use --repair to reconcile the index with the record store when the
consistency check finds divergence.
Use --verbose for detailed diagnostic information.
Use --json for machine-readable output.`,
		Example: `  # Run diagnostics
  cividex doctor

  # Verbose output with details
  cividex doctor --verbose

  # Repair index divergence
  cividex doctor --repair

  # JSON output for scripting
  cividex doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput, repair)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&repair, "repair", false, "Repair index divergence found by the consistency check")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput, repair bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, cfg, err := loadCorpusConfig(".")
	if err != nil {
		return err
	}
	dataDir := cfg.Index.DataDir

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)

	results := checker.RunAll(ctx, root, dataDir)

	// Index consistency is only checkable once an index exists.
	if index.DetectBackend(dataDir) != "" {
		results = append(results, checkIndexConsistency(ctx, cfg, repair))
	} else if repair {
		return errNoIndex
	}

	if jsonOutput {
		return outputDoctorJSON(cmd, checker, results)
	}

	checker.PrintResults(results)

	if !preflight.NeedsCheck(dataDir) {
		age := preflight.MarkerAge(dataDir)
		if age > 0 {
			cmd.Printf("\nLast successful check: %s ago\n", formatCheckAge(age))
		}
	}

	if checker.HasCriticalFailures(results) {
		return errors.New("system check failed")
	}

	return nil
}

// checkIndexConsistency compares the record store against the index and
// reports the outcome in the same shape as the preflight checks. With
// repair set, divergence is fixed in place.
func checkIndexConsistency(ctx context.Context, cfg *config.Config, repair bool) preflight.CheckResult {
	result := preflight.CheckResult{Name: "index_consistency"}

	engine, records, err := openExistingIndex(cfg)
	if err != nil {
		result.Status = preflight.StatusWarn
		result.Message = fmt.Sprintf("could not open index: %v", err)
		return result
	}
	defer func() { _ = records.Close() }()
	defer func() { _ = engine.Close() }()

	checker := index.NewChecker(engine, records)
	report, err := checker.Check(ctx)
	if err != nil {
		result.Status = preflight.StatusWarn
		result.Message = fmt.Sprintf("check failed: %v", err)
		return result
	}

	if report.Consistent() {
		result.Status = preflight.StatusPass
		result.Message = fmt.Sprintf("%d records, index matches store", report.StoreCount)
		return result
	}

	missing, orphaned := report.Counts()
	result.Details = describeIssues(report.Issues)

	if repair {
		if err := checker.Repair(ctx, report.Issues); err != nil {
			result.Status = preflight.StatusFail
			result.Message = fmt.Sprintf("repair failed: %v", err)
			return result
		}
		result.Status = preflight.StatusPass
		result.Message = fmt.Sprintf("repaired %d missing, %d orphaned", missing, orphaned)
		return result
	}

	result.Status = preflight.StatusWarn
	result.Message = fmt.Sprintf("%d missing, %d orphaned (run 'cividex doctor --repair')", missing, orphaned)
	return result
}

// describeIssues summarizes the first few divergences for verbose output.
func describeIssues(issues []index.Issue) string {
	const maxShown = 5

	var lines []string
	for i, issue := range issues {
		if i == maxShown {
			lines = append(lines, fmt.Sprintf("... and %d more", len(issues)-maxShown))
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %s", issue.Type, issue.RecordID))
	}
	return strings.Join(lines, "; ")
}

// DoctorReport is the structure for JSON output.
type DoctorReport struct {
	Status   string        `json:"status"`
	Checks   []DoctorCheck `json:"checks"`
	Warnings []string      `json:"warnings,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
}

// DoctorCheck is a single check result for JSON output.
type DoctorCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func outputDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	report := DoctorReport{
		Status: checker.SummaryStatus(results),
		Checks: make([]DoctorCheck, len(results)),
	}

	for i, r := range results {
		report.Checks[i] = DoctorCheck{
			Name:     r.Name,
			Status:   strings.ToLower(r.Status.String()),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}

		if r.IsCritical() {
			report.Errors = append(report.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			report.Warnings = append(report.Warnings, r.Name+": "+r.Message)
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func formatCheckAge(d time.Duration) string {
	hours := int(d.Hours())
	if hours < 1 {
		return "less than 1 hour"
	}
	if hours < 24 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := hours / 24
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
