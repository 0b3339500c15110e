//go:build ignore

// Package main compares Go benchmark output against a saved baseline.
// Usage: go run scripts/bench-compare.go <current.txt> <baseline.txt>
//
// Every metric the benchmark reports is compared: a regression of more
// than 20% in ns/op, B/op, or allocs/op fails the run.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

const (
	// RegressionThreshold is the maximum allowed degradation per metric.
	RegressionThreshold = 0.20

	// ImprovementThreshold marks deltas worth calling out.
	ImprovementThreshold = 0.10
)

var (
	outputJSON    = flag.Bool("json", false, "Output results as JSON")
	threshold     = flag.Float64("threshold", RegressionThreshold, "Regression threshold (0.0-1.0)")
	verbose       = flag.Bool("verbose", false, "Show unchanged benchmarks too")
	failOnRegress = flag.Bool("fail", true, "Exit with code 1 on regression")
)

// benchmark holds the standard metrics from one output line. Metrics
// the run did not report stay at zero and are skipped in comparison.
type benchmark struct {
	Name        string
	NsPerOp     float64
	BytesPerOp  float64
	AllocsPerOp float64
}

// metrics returns the reported metrics by name, in display order.
func (b *benchmark) metrics() []metric {
	out := []metric{{"ns/op", b.NsPerOp}}
	if b.BytesPerOp > 0 {
		out = append(out, metric{"B/op", b.BytesPerOp})
	}
	if b.AllocsPerOp > 0 {
		out = append(out, metric{"allocs/op", b.AllocsPerOp})
	}
	return out
}

type metric struct {
	Name  string
	Value float64
}

// delta is one metric of one benchmark compared against baseline.
type delta struct {
	Benchmark string  `json:"benchmark"`
	Metric    string  `json:"metric"`
	Current   float64 `json:"current"`
	Baseline  float64 `json:"baseline"`
	Percent   float64 `json:"delta_percent"`
	Status    string  `json:"status"`
}

// report aggregates the whole comparison.
type report struct {
	TotalBenchmarks int      `json:"total_benchmarks"`
	Regressions     int      `json:"regressions"`
	Improvements    int      `json:"improvements"`
	NewBenchmarks   int      `json:"new_benchmarks"`
	Missing         int      `json:"missing"`
	Deltas          []*delta `json:"deltas"`
	Failed          bool     `json:"failed"`
}

// Format: BenchmarkName-N  iterations  ns/op  [B/op]  [allocs/op]
var benchmarkLine = regexp.MustCompile(
	`^(Benchmark\S+)\s+\d+\s+([\d.]+)\s+ns/op(?:\s+([\d.]+)\s+B/op)?(?:\s+([\d.]+)\s+allocs/op)?`)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <current.txt> <baseline.txt>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Compares benchmark results and detects regressions.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(1)
	}

	current, err := parseFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
	baseline, err := parseFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", flag.Arg(1), err)
		os.Exit(1)
	}

	rep := compare(current, baseline, *threshold)

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
			os.Exit(1)
		}
	} else {
		printReport(rep)
	}

	if *failOnRegress && rep.Failed {
		os.Exit(1)
	}
}

// parseFile reads benchmark output into a name-keyed map. Repeated
// runs of the same benchmark keep the last measurement.
func parseFile(path string) (map[string]*benchmark, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	results := make(map[string]*benchmark)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		m := benchmarkLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		b := &benchmark{Name: m[1]}
		b.NsPerOp, _ = strconv.ParseFloat(m[2], 64)
		if m[3] != "" {
			b.BytesPerOp, _ = strconv.ParseFloat(m[3], 64)
		}
		if m[4] != "" {
			b.AllocsPerOp, _ = strconv.ParseFloat(m[4], 64)
		}
		results[b.Name] = b
	}
	return results, scanner.Err()
}

func compare(current, baseline map[string]*benchmark, threshold float64) *report {
	rep := &report{Deltas: make([]*delta, 0)}

	for name, curr := range current {
		rep.TotalBenchmarks++

		base, exists := baseline[name]
		if !exists {
			rep.NewBenchmarks++
			if *verbose {
				rep.Deltas = append(rep.Deltas, &delta{
					Benchmark: name, Metric: "ns/op",
					Current: curr.NsPerOp, Status: "NEW",
				})
			}
			continue
		}

		baseMetrics := map[string]float64{}
		for _, m := range base.metrics() {
			baseMetrics[m.Name] = m.Value
		}

		for _, m := range curr.metrics() {
			bv, ok := baseMetrics[m.Name]
			if !ok || bv <= 0 {
				continue
			}
			pct := (m.Value - bv) / bv

			d := &delta{
				Benchmark: name,
				Metric:    m.Name,
				Current:   m.Value,
				Baseline:  bv,
				Percent:   pct * 100,
			}
			switch {
			case pct > threshold:
				d.Status = "REGRESSION"
				rep.Regressions++
				rep.Failed = true
			case pct < -ImprovementThreshold:
				d.Status = "IMPROVED"
				rep.Improvements++
			default:
				d.Status = "OK"
			}
			if d.Status != "OK" || *verbose {
				rep.Deltas = append(rep.Deltas, d)
			}
		}
	}

	for name := range baseline {
		if _, exists := current[name]; !exists {
			rep.Missing++
			if *verbose {
				rep.Deltas = append(rep.Deltas, &delta{
					Benchmark: name, Metric: "ns/op",
					Baseline: baseline[name].NsPerOp, Status: "MISSING",
				})
			}
		}
	}

	return rep
}

func printReport(rep *report) {
	rule := strings.Repeat("=", 80)
	fmt.Println(rule)
	fmt.Println("BENCHMARK COMPARISON REPORT")
	fmt.Println(rule)
	fmt.Println()

	fmt.Printf("Total Benchmarks: %d\n", rep.TotalBenchmarks)
	fmt.Printf("Regressions:      %d (> %.0f%% worse)\n", rep.Regressions, *threshold*100)
	fmt.Printf("Improvements:     %d (> %.0f%% better)\n", rep.Improvements, ImprovementThreshold*100)
	fmt.Printf("New Benchmarks:   %d\n", rep.NewBenchmarks)
	fmt.Printf("Missing:          %d\n", rep.Missing)
	fmt.Println()

	if len(rep.Deltas) > 0 {
		thin := strings.Repeat("-", 80)
		fmt.Println(thin)
		fmt.Printf("%-44s %-10s %11s %11s %8s\n", "BENCHMARK", "METRIC", "CURRENT", "BASELINE", "DELTA")
		fmt.Println(thin)
		for _, d := range rep.Deltas {
			switch d.Status {
			case "NEW", "MISSING":
				fmt.Printf("%-44s %-10s %11s %11s %8s  %s\n",
					truncate(d.Benchmark, 44), d.Metric, "-", "-", "-", d.Status)
			default:
				fmt.Printf("%-44s %-10s %11.1f %11.1f %+7.1f%%  %s\n",
					truncate(d.Benchmark, 44), d.Metric, d.Current, d.Baseline, d.Percent, d.Status)
			}
		}
		fmt.Println(thin)
	}

	fmt.Println()
	if rep.Failed {
		fmt.Printf("FAILED: %d metric(s) regressed by more than %.0f%%\n", rep.Regressions, *threshold*100)
	} else {
		fmt.Println("PASSED: no significant regressions detected")
	}
	fmt.Println()
}

func truncate(name string, max int) string {
	if len(name) <= max {
		return name
	}
	return name[:max-3] + "..."
}
