// Package hypothesis implements two-sample location and distribution tests.
// Every function is pure: results depend only on the arguments.
package hypothesis

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultAlpha is the significance level used when none is given.
const DefaultAlpha = 0.05

var (
	// ErrInsufficientData is returned when a sample has fewer than two usable values.
	ErrInsufficientData = errors.New("hypothesis: each sample needs at least two non-NaN values")
	// ErrZeroVariance is returned when the t statistic has a zero standard error.
	ErrZeroVariance = errors.New("hypothesis: both samples have zero variance")
)

// Alternative selects the alternative hypothesis relative to mean(a) - mean(b).
type Alternative string

const (
	TwoSided Alternative = "two-sided"
	Less     Alternative = "less"
	Greater  Alternative = "greater"
)

// ParseAlternative accepts "two-sided", "less" and "greater"; "" means two-sided.
func ParseAlternative(s string) (Alternative, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "two-sided", "two_sided", "twosided":
		return TwoSided, nil
	case "less":
		return Less, nil
	case "greater":
		return Greater, nil
	}
	return "", fmt.Errorf("hypothesis: unknown alternative %q (want two-sided, less or greater)", s)
}

// TestKind names the statistic that produced a Result.
type TestKind string

const (
	TTest  TestKind = "t-test"
	KSTest TestKind = "ks-test"
)

// Decision is the outcome at the configured alpha.
type Decision string

const (
	Reject       Decision = "Reject"
	FailToReject Decision = "FailToReject"
)

func decide(p, alpha float64) Decision {
	if p < alpha {
		return Reject
	}
	return FailToReject
}

// Result is an immutable test outcome.
type Result struct {
	Kind        TestKind    `json:"kind"`
	Statistic   float64     `json:"statistic"`
	PValue      float64     `json:"p_value"`
	DF          float64     `json:"df,omitempty"` // t-test only
	Alternative Alternative `json:"alternative"`
	Alpha       float64     `json:"alpha"`
	Decision    Decision    `json:"decision"`
	NA          int         `json:"n_a"`
	NB          int         `json:"n_b"`
	// NaN values removed from each sample before testing.
	ExcludedA int `json:"excluded_a"`
	ExcludedB int `json:"excluded_b"`
}

// Options configures Compare.
type Options struct {
	Alternative Alternative
	Alpha       float64
	// EqualVariance uses the pooled-variance Student test instead of Welch's.
	EqualVariance bool
}

// DefaultOptions is a two-sided Welch test at alpha 0.05.
func DefaultOptions() Options {
	return Options{Alternative: TwoSided, Alpha: DefaultAlpha}
}

func (o Options) withDefaults() Options {
	if o.Alternative == "" {
		o.Alternative = TwoSided
	}
	if o.Alpha <= 0 || o.Alpha >= 1 {
		o.Alpha = DefaultAlpha
	}
	return o
}

// dropNaN returns a copy of xs without NaN values and the number removed.
func dropNaN(xs []float64) ([]float64, int) {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out, len(xs) - len(out)
}
