//go:build ignore

// Package main compares two evaluation runs and flags metric
// regressions, for gating config changes in CI.
// Usage: go run scripts/compare-runs.go <current-results-dir> <baseline-results-dir>
//
// Quality metrics regress when they drop more than the threshold below
// the baseline; total latency regresses when its mean grows more than
// the latency threshold above the baseline.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// QualityThreshold is the maximum allowed absolute drop in
	// precision, recall, or F1.
	QualityThreshold = 0.05

	// LatencyThreshold is the maximum allowed relative growth of the
	// total-stage mean latency (20%).
	LatencyThreshold = 0.20
)

// runMetrics is the slice of metrics.json this tool reads.
type runMetrics struct {
	RunID     string `json:"run_id"`
	Timestamp string `json:"timestamp"`
	Aggregate struct {
		NQueries  int     `json:"n_queries"`
		NLabeled  int     `json:"n_labeled"`
		Precision float64 `json:"precision"`
		Recall    float64 `json:"recall"`
		F1        float64 `json:"f1"`
		FPRate    float64 `json:"fp_rate"`
		LatencyMS map[string]struct {
			Mean   float64 `json:"mean"`
			Median float64 `json:"median"`
		} `json:"latency_ms"`
	} `json:"aggregate"`
}

// MetricDelta is the comparison of one metric between runs.
type MetricDelta struct {
	Name        string  `json:"name"`
	Current     float64 `json:"current"`
	Baseline    float64 `json:"baseline"`
	Delta       float64 `json:"delta"`
	IsRegressed bool    `json:"is_regressed"`
	IsImproved  bool    `json:"is_improved"`
	Status      string  `json:"status"`
}

// Report contains all metric comparisons.
type Report struct {
	CurrentRunID     string         `json:"current_run_id"`
	BaselineRunID    string         `json:"baseline_run_id"`
	Regressions      int            `json:"regressions"`
	Improvements     int            `json:"improvements"`
	Results          []*MetricDelta `json:"results"`
	RegressionFailed bool           `json:"regression_failed"`
}

var (
	outputJSON    = flag.Bool("json", false, "Output results as JSON")
	threshold     = flag.Float64("threshold", QualityThreshold, "Allowed absolute drop in quality metrics (0.0-1.0)")
	latThreshold  = flag.Float64("latency-threshold", LatencyThreshold, "Allowed relative latency growth (0.0-1.0)")
	failOnRegress = flag.Bool("fail", true, "Exit with code 1 on regression")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <current-results-dir> <baseline-results-dir>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Compares two evaluation runs and detects metric regressions.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(1)
	}

	current, err := loadMetrics(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading current run %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
	baseline, err := loadMetrics(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading baseline run %s: %v\n", flag.Arg(1), err)
		os.Exit(1)
	}

	report := compare(current, baseline, *threshold, *latThreshold)

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		printReport(report)
	}

	if *failOnRegress && report.RegressionFailed {
		os.Exit(1)
	}
}

// loadMetrics reads metrics.json from a results directory, or from the
// path directly when it names a file.
func loadMetrics(path string) (*runMetrics, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		path = filepath.Join(path, "metrics.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m runMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return &m, nil
}

func compare(current, baseline *runMetrics, threshold, latThreshold float64) *Report {
	report := &Report{
		CurrentRunID:  current.RunID,
		BaselineRunID: baseline.RunID,
	}

	// Higher-is-better quality metrics: regress on absolute drop.
	quality := []struct {
		name     string
		cur, bas float64
	}{
		{"precision", current.Aggregate.Precision, baseline.Aggregate.Precision},
		{"recall", current.Aggregate.Recall, baseline.Aggregate.Recall},
		{"f1", current.Aggregate.F1, baseline.Aggregate.F1},
	}
	for _, q := range quality {
		d := &MetricDelta{Name: q.name, Current: q.cur, Baseline: q.bas, Delta: q.cur - q.bas}
		switch {
		case d.Delta < -threshold:
			d.IsRegressed = true
			d.Status = "REGRESSED"
		case d.Delta > threshold:
			d.IsImproved = true
			d.Status = "improved"
		default:
			d.Status = "ok"
		}
		report.Results = append(report.Results, d)
	}

	// Lower-is-better: false positive rate, same absolute threshold.
	fp := &MetricDelta{
		Name:     "fp_rate",
		Current:  current.Aggregate.FPRate,
		Baseline: baseline.Aggregate.FPRate,
		Delta:    current.Aggregate.FPRate - baseline.Aggregate.FPRate,
	}
	switch {
	case fp.Delta > threshold:
		fp.IsRegressed = true
		fp.Status = "REGRESSED"
	case fp.Delta < -threshold:
		fp.IsImproved = true
		fp.Status = "improved"
	default:
		fp.Status = "ok"
	}
	report.Results = append(report.Results, fp)

	// Total latency: regress on relative growth of the mean.
	curLat := current.Aggregate.LatencyMS["total"].Mean
	basLat := baseline.Aggregate.LatencyMS["total"].Mean
	lat := &MetricDelta{Name: "total_latency_mean_ms", Current: curLat, Baseline: basLat, Delta: curLat - basLat}
	switch {
	case basLat > 0 && curLat > basLat*(1+latThreshold):
		lat.IsRegressed = true
		lat.Status = "REGRESSED"
	case basLat > 0 && curLat < basLat*(1-latThreshold):
		lat.IsImproved = true
		lat.Status = "improved"
	default:
		lat.Status = "ok"
	}
	report.Results = append(report.Results, lat)

	for _, d := range report.Results {
		if d.IsRegressed {
			report.Regressions++
		}
		if d.IsImproved {
			report.Improvements++
		}
	}
	report.RegressionFailed = report.Regressions > 0
	return report
}

func printReport(report *Report) {
	fmt.Printf("Comparing run %s against baseline %s\n\n", report.CurrentRunID, report.BaselineRunID)
	fmt.Printf("%-24s %10s %10s %10s  %s\n", "METRIC", "CURRENT", "BASELINE", "DELTA", "STATUS")
	for _, d := range report.Results {
		fmt.Printf("%-24s %10.3f %10.3f %+10.3f  %s\n", d.Name, d.Current, d.Baseline, d.Delta, d.Status)
	}
	fmt.Printf("\n%d regression(s), %d improvement(s)\n", report.Regressions, report.Improvements)
	if report.RegressionFailed {
		fmt.Println("FAILED: metric regression detected")
	}
}
