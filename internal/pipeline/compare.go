package pipeline

import (
	"fmt"

	"github.com/KaramelBytes/tripstat-cli/internal/hypothesis"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

// Comparison pairs two numeric trip columns under an alternative hypothesis
// about mean(A) - mean(B).
type Comparison struct {
	A           string                 `mapstructure:"a" yaml:"a" json:"a"`
	B           string                 `mapstructure:"b" yaml:"b" json:"b"`
	Alternative hypothesis.Alternative `mapstructure:"alternative" yaml:"alternative" json:"alternative"`
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s vs %s (%s)", c.A, c.B, c.Alternative)
}

// DefaultComparisons is the standard set of measured-versus-estimated checks.
func DefaultComparisons() []Comparison {
	return []Comparison{
		{trip.ColTimeTakenOD, trip.ColStartScanToEndScan, hypothesis.TwoSided},
		{trip.ColActualTime, trip.ColStartScanToEndScan, hypothesis.Less},
		{trip.ColActualTime, trip.ColTimeTakenOD, hypothesis.TwoSided},
		{trip.ColActualTime, trip.ColOSRMTime, hypothesis.Greater},
		{trip.ColActualTime, trip.ColSegmentActualTime, hypothesis.TwoSided},
		{trip.ColOSRMTime, trip.ColSegmentOSRMTime, hypothesis.Less},
		{trip.ColOSRMDistance, trip.ColSegmentOSRMDistance, hypothesis.Less},
		{trip.ColOSRMDistance, trip.ColActualDistance, hypothesis.Greater},
	}
}

// CompareOptions controls how each comparison is run.
type CompareOptions struct {
	// Test supplies alpha and the equal-variance choice; its Alternative is
	// overridden per comparison.
	Test hypothesis.Options
	// SampleSize > 0 draws that many values per side instead of using the full column.
	SampleSize int
	// Rounds of seeded subsampling for the t-test. Ignored without SampleSize.
	Rounds int
	Seed   uint64
}

// ComparisonResult holds both tests for one comparison. A test that could not
// be computed (for example zero variance) leaves its result nil and sets Err.
type ComparisonResult struct {
	Comparison Comparison
	TTest      *hypothesis.Result
	KS         *hypothesis.Result
	// Rounds are the repeated subsampled t-tests, when requested.
	Rounds []*hypothesis.Result
	Err    string
}

// Compare runs a t-test and a KS test for every comparison over trips.
// Only unknown column names are returned as errors.
func Compare(trips []trip.Record, comps []Comparison, opt CompareOptions) ([]ComparisonResult, error) {
	out := make([]ComparisonResult, 0, len(comps))
	for i, c := range comps {
		a, ok := trip.Column(trips, c.A)
		if !ok {
			return nil, fmt.Errorf("compare: unknown column %q", c.A)
		}
		b, ok := trip.Column(trips, c.B)
		if !ok {
			return nil, fmt.Errorf("compare: unknown column %q", c.B)
		}
		topt := opt.Test
		topt.Alternative = c.Alternative
		r := ComparisonResult{Comparison: c}

		var err error
		seed := opt.Seed + uint64(i)
		sa, sb := a, b
		if opt.SampleSize > 0 {
			rng := hypothesis.NewRand(seed)
			sa = hypothesis.Sample(a, opt.SampleSize, rng)
			sb = hypothesis.Sample(b, opt.SampleSize, rng)
		}
		if r.TTest, err = hypothesis.Compare(sa, sb, topt); err != nil {
			r.Err = err.Error()
		}
		if r.KS, err = hypothesis.CompareDistributions(sa, sb, topt.Alpha); err != nil && r.Err == "" {
			r.Err = err.Error()
		}
		if opt.SampleSize > 0 && opt.Rounds > 1 && r.Err == "" {
			ttest := func(x, y []float64) (*hypothesis.Result, error) { return hypothesis.Compare(x, y, topt) }
			if r.Rounds, err = hypothesis.Repeat(a, b, opt.SampleSize, opt.Rounds, seed, ttest); err != nil {
				r.Err = err.Error()
			}
		}
		out = append(out, r)
	}
	return out, nil
}
