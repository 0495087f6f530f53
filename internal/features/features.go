// Package features turns a trip table into a numeric design matrix: one-hot
// categorical columns plus standardized or min-max scaled numeric columns.
// It consumes the pipeline output and is never called by the pipeline itself.
package features

import (
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

// ColLocationCategory is the synthetic categorical column produced by LocationCategories.
const ColLocationCategory = "location_category"

// Scaler selects the numeric column transform.
type Scaler string

const (
	Standard Scaler = "standard"
	MinMax   Scaler = "minmax"
	NoScale  Scaler = "none"
)

// ParseScaler accepts "standard", "minmax" and "none"; "" means standard.
func ParseScaler(s string) (Scaler, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "std", "zscore":
		return Standard, nil
	case "minmax", "min-max":
		return MinMax, nil
	case "none":
		return NoScale, nil
	}
	return "", fmt.Errorf("unknown scaler %q (want standard, minmax or none)", s)
}

// LocationCategory buckets the number of trips on a source/destination pair.
// Busier pairs get lower category numbers.
func LocationCategory(trips int) string {
	switch {
	case trips <= 50:
		return "Category 7"
	case trips <= 100:
		return "Category 6"
	case trips <= 200:
		return "Category 5"
	case trips <= 300:
		return "Category 4"
	case trips <= 400:
		return "Category 3"
	case trips <= 500:
		return "Category 2"
	}
	return "Category 1"
}

// LocationPair is the "<source city-states> <destination city-states>" key of a trip.
func LocationPair(t *trip.Record) string {
	return strings.Join(t.SourceCityStates, " ") + " " + strings.Join(t.DestinationCityStates, " ")
}

// LocationCategories returns, for each trip, the category of its location pair
// by the number of distinct trips sharing that pair.
func LocationCategories(trips []trip.Record) []string {
	counts := map[string]map[string]struct{}{}
	pairs := make([]string, len(trips))
	for i := range trips {
		p := LocationPair(&trips[i])
		pairs[i] = p
		if counts[p] == nil {
			counts[p] = map[string]struct{}{}
		}
		counts[p][trips[i].TripID] = struct{}{}
	}
	out := make([]string, len(trips))
	for i, p := range pairs {
		out[i] = LocationCategory(len(counts[p]))
	}
	return out
}

// OneHot encodes values into one indicator column per distinct value, sorted.
// Column names are prefix + "_" + value.
func OneHot(prefix string, values []string) ([]string, [][]float64) {
	set := map[string]int{}
	for _, v := range values {
		set[v] = 0
	}
	cats := make([]string, 0, len(set))
	for v := range set {
		cats = append(cats, v)
	}
	sort.Strings(cats)
	cols := make([]string, len(cats))
	for i, c := range cats {
		set[c] = i
		cols[i] = prefix + "_" + c
	}
	rows := make([][]float64, len(values))
	for i, v := range values {
		rows[i] = make([]float64, len(cats))
		rows[i][set[v]] = 1
	}
	return cols, rows
}

// StandardScale returns (x - mean) / population std. A constant column maps to zeros.
func StandardScale(xs []float64) ([]float64, error) {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out, nil
	}
	data := stats.Float64Data(xs)
	mean, err := data.Mean()
	if err != nil {
		return nil, err
	}
	std, err := data.StandardDeviationPopulation()
	if err != nil {
		return nil, err
	}
	if std == 0 {
		std = 1
	}
	for i, x := range xs {
		out[i] = (x - mean) / std
	}
	return out, nil
}

// MinMaxScale maps xs onto [0, 1]. A constant column maps to zeros.
func MinMaxScale(xs []float64) ([]float64, error) {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out, nil
	}
	data := stats.Float64Data(xs)
	lo, err := data.Min()
	if err != nil {
		return nil, err
	}
	hi, err := data.Max()
	if err != nil {
		return nil, err
	}
	span := hi - lo
	for i, x := range xs {
		if span != 0 {
			out[i] = (x - lo) / span
		}
	}
	return out, nil
}
