// Package outlier removes trips whose numeric columns lie far from the column mean.
package outlier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/tripstat-cli/internal/diag"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

// DefaultThreshold is the |z| cut-off used when none is given.
const DefaultThreshold = 3.0

// ColumnStat is the population mean and standard deviation the filter used for a column.
type ColumnStat struct {
	Column string
	Mean   float64
	Std    float64
}

// Result is the filtered trip table. Trips keep their input order and all of their columns.
type Result struct {
	Trips []trip.Record
	// Columns actually used for filtering, after degenerate ones were excluded.
	Columns []string
	Stats   []ColumnStat
	// RemovedNaN counts rows dropped for a NaN in a requested column.
	RemovedNaN int
	// Removed counts rows dropped for |z| >= threshold.
	Removed     int
	Diagnostics diag.Diagnostics
}

// Filter keeps a trip only if |z| < threshold for every column in columns.
// z uses the mean and population standard deviation of the rows left after
// NaN removal, computed once. A constant column is excluded and reported as a
// DegenerateColumnError. A threshold <= 0 falls back to DefaultThreshold.
func Filter(trips []trip.Record, columns []string, threshold float64) (*Result, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	cols := dedupe(columns)
	for _, c := range cols {
		if !trip.IsNumericColumn(c) {
			return nil, fmt.Errorf("outlier filter: unknown numeric column %q", c)
		}
	}

	res := &Result{}
	complete := make([]trip.Record, 0, len(trips))
	for _, tr := range trips {
		if hasNaN(&tr, cols) {
			res.RemovedNaN++
			continue
		}
		complete = append(complete, tr)
	}

	type bound struct {
		col       string
		mean, std float64
	}
	var bounds []bound
	for _, c := range cols {
		xs, _ := trip.Column(complete, c)
		if len(xs) == 0 {
			break
		}
		mean, std := stat.PopMeanStdDev(xs, nil)
		if std == 0 || math.IsNaN(std) {
			res.Diagnostics.Add(&diag.DegenerateColumnError{Column: c, Value: mean})
			continue
		}
		bounds = append(bounds, bound{c, mean, std})
		res.Columns = append(res.Columns, c)
		res.Stats = append(res.Stats, ColumnStat{Column: c, Mean: mean, Std: std})
	}

	res.Trips = make([]trip.Record, 0, len(complete))
	for _, tr := range complete {
		keep := true
		for _, b := range bounds {
			v, _ := tr.Value(b.col)
			if math.Abs(stat.StdScore(v, b.mean, b.std)) >= threshold {
				keep = false
				break
			}
		}
		if !keep {
			res.Removed++
			continue
		}
		res.Trips = append(res.Trips, tr)
	}
	return res, nil
}

func hasNaN(tr *trip.Record, cols []string) bool {
	for _, c := range cols {
		if v, _ := tr.Value(c); math.IsNaN(v) {
			return true
		}
	}
	return false
}

func dedupe(cols []string) []string {
	seen := make(map[string]bool, len(cols))
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
