package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/KaramelBytes/tripstat-cli/internal/diag"
	"github.com/KaramelBytes/tripstat-cli/internal/hypothesis"
	"github.com/KaramelBytes/tripstat-cli/internal/pipeline"
	"github.com/KaramelBytes/tripstat-cli/internal/route"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

// Options controls report contents.
type Options struct {
	// TopRoutes lists that many routes by trip count; 0 means 10.
	TopRoutes int
	// MaxDiagnostics caps the individual diagnostics printed; 0 means 20.
	MaxDiagnostics int
}

// DefaultOptions returns reasonable defaults for a run report.
func DefaultOptions() Options {
	return Options{TopRoutes: 10, MaxDiagnostics: 20}
}

// Report is a markdown-friendly summary of one pipeline run.
type Report struct {
	Name     string
	RunID    string
	Segments int
	Trips    int
	Routes   int
	Filtered int

	Cols        []ColumnSummary
	TopRoutes   []route.Record
	Tests       []pipeline.ComparisonResult
	Diagnostics []string
	DiagSummary string
	Warnings    []string
}

// ColumnSummary captures statistics of one numeric trip column over the filtered table.
type ColumnSummary struct {
	Name    string
	Count   int
	Missing int
	Min     float64
	Max     float64
	Mean    float64
	Std     float64
	Median  float64
	MAD     float64
	// Set when the outlier filter standardized this column.
	FilterMean float64
	FilterStd  float64
	Filtered   bool
}

// Build assembles a report from a run and its comparisons.
func Build(name string, res *pipeline.Result, tests []pipeline.ComparisonResult, opt Options) *Report {
	if opt.TopRoutes <= 0 {
		opt.TopRoutes = 10
	}
	if opt.MaxDiagnostics <= 0 {
		opt.MaxDiagnostics = 20
	}
	rep := &Report{
		Name:        name,
		RunID:       res.RunID,
		Segments:    res.Segments,
		Trips:       len(res.Trips),
		Routes:      len(res.Routes),
		Filtered:    len(res.Filtered),
		Tests:       tests,
		DiagSummary: res.Diagnostics.Summary(),
	}

	filterStats := map[string][2]float64{}
	if res.Outlier != nil {
		for _, s := range res.Outlier.Stats {
			filterStats[s.Column] = [2]float64{s.Mean, s.Std}
		}
	}
	for _, col := range trip.NumericColumns {
		xs, _ := trip.Column(res.Filtered, col)
		c := summarize(col, xs)
		if fs, ok := filterStats[col]; ok {
			c.Filtered, c.FilterMean, c.FilterStd = true, fs[0], fs[1]
		}
		rep.Cols = append(rep.Cols, c)
	}

	routes := append([]route.Record(nil), res.Routes...)
	sort.SliceStable(routes, func(i, j int) bool { return routes[i].TripCount > routes[j].TripCount })
	if len(routes) > opt.TopRoutes {
		routes = routes[:opt.TopRoutes]
	}
	rep.TopRoutes = routes

	for i, d := range res.Diagnostics {
		if i >= opt.MaxDiagnostics {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d more diagnostics not shown", len(res.Diagnostics)-i))
			break
		}
		rep.Diagnostics = append(rep.Diagnostics, d.Error())
	}
	if n := res.Diagnostics.Count(diag.KindIncompleteJoin); n > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d trips or routes dropped by incomplete joins", n))
	}
	if res.Outlier != nil && res.Outlier.Removed+res.Outlier.RemovedNaN > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("outlier filter removed %d trips (%d with missing values)",
			res.Outlier.Removed+res.Outlier.RemovedNaN, res.Outlier.RemovedNaN))
	}
	return rep
}

// summarize uses Welford's update for mean and variance, then montanaflynn for
// the robust statistics.
func summarize(name string, xs []float64) ColumnSummary {
	c := ColumnSummary{Name: name, Min: math.Inf(1), Max: math.Inf(-1)}
	var (
		mean, m2 float64
		vals     []float64
	)
	for _, x := range xs {
		if math.IsNaN(x) {
			c.Missing++
			continue
		}
		c.Count++
		if x < c.Min {
			c.Min = x
		}
		if x > c.Max {
			c.Max = x
		}
		delta := x - mean
		mean += delta / float64(c.Count)
		m2 += delta * (x - mean)
		vals = append(vals, x)
	}
	if c.Count == 0 {
		c.Min, c.Max = 0, 0
		return c
	}
	c.Mean = mean
	if c.Count > 1 {
		c.Std = math.Sqrt(m2 / float64(c.Count-1))
	}
	c.Median, _ = stats.Median(vals)
	c.MAD, _ = stats.MedianAbsoluteDeviationPopulation(vals)
	return c
}

// Markdown renders a compact report suitable for standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[PIPELINE SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("Input: %s\n", r.Name))
	}
	if r.RunID != "" {
		b.WriteString(fmt.Sprintf("Run: %s\n", r.RunID))
	}
	b.WriteString(fmt.Sprintf("Segments: %d\n", r.Segments))
	b.WriteString(fmt.Sprintf("Trips: %d (after outlier filter %d)\n", r.Trips, r.Filtered))
	b.WriteString(fmt.Sprintf("Routes: %d\n\n", r.Routes))

	b.WriteString("[TRIP METRICS]\n")
	for _, c := range r.Cols {
		b.WriteString(fmt.Sprintf("- %s: n %d", c.Name, c.Count))
		if c.Missing > 0 {
			b.WriteString(fmt.Sprintf(", missing %d", c.Missing))
		}
		b.WriteString(fmt.Sprintf(", min %.4g, max %.4g, mean %.4g, std %.4g, median %.4g, mad %.4g",
			c.Min, c.Max, c.Mean, c.Std, c.Median, c.MAD))
		if c.Filtered {
			b.WriteString(fmt.Sprintf("; filter z from mean %.4g, std %.4g", c.FilterMean, c.FilterStd))
		}
		b.WriteString("\n")
	}

	if len(r.TopRoutes) > 0 {
		b.WriteString("\n[TOP ROUTES]\n")
		b.WriteString("| route_schedule_id | route | trips | avg_actual_distance |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, rt := range r.TopRoutes {
			b.WriteString(fmt.Sprintf("| %s | %s | %d | %.4g |\n",
				safeVal(rt.RouteScheduleID), safeVal(safeName(rt.SourceToDestination)), rt.TripCount, rt.AvgActualDistance))
		}
	}

	if len(r.Tests) > 0 {
		b.WriteString("\n[HYPOTHESIS TESTS]\n")
		for _, t := range r.Tests {
			b.WriteString(fmt.Sprintf("- %s\n", t.Comparison))
			if t.Err != "" {
				b.WriteString(fmt.Sprintf("  • error: %s\n", t.Err))
			}
			if t.TTest != nil {
				b.WriteString(fmt.Sprintf("  • t-test: t=%.4f df=%.1f p=%.4g → %s\n",
					t.TTest.Statistic, t.TTest.DF, t.TTest.PValue, t.TTest.Decision))
			}
			if t.KS != nil {
				b.WriteString(fmt.Sprintf("  • ks-test: D=%.4f p=%.4g → %s\n", t.KS.Statistic, t.KS.PValue, t.KS.Decision))
			}
			if len(t.Rounds) > 0 {
				rejects := 0
				for _, rr := range t.Rounds {
					if rr.Decision == hypothesis.Reject {
						rejects++
					}
				}
				b.WriteString(fmt.Sprintf("  • sampled rounds: %d of %d reject\n", rejects, len(t.Rounds)))
			}
		}
	}

	b.WriteString("\n[DIAGNOSTICS]\n")
	b.WriteString(r.DiagSummary)
	b.WriteString("\n")
	for _, d := range r.Diagnostics {
		b.WriteString("- ")
		b.WriteString(safeVal(d))
		b.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
