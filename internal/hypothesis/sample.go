package hypothesis

import (
	"fmt"
	"math/rand/v2"
)

// TestFunc is a two-sample test, such as a closure over Compare or CompareDistributions.
type TestFunc func(a, b []float64) (*Result, error)

// NewRand returns a generator whose stream is fully determined by seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Sample draws n values from xs without replacement using rng. When n <= 0 or
// n >= len(xs) it returns a copy of xs. xs is not modified.
func Sample(xs []float64, n int, rng *rand.Rand) []float64 {
	cp := append([]float64(nil), xs...)
	if n <= 0 || n >= len(cp) {
		return cp
	}
	// partial Fisher-Yates: the first n slots end up a uniform sample
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(cp)-i)
		cp[i], cp[j] = cp[j], cp[i]
	}
	return cp[:n]
}

// Repeat runs test on rounds independent subsamples of size n drawn from a and b.
// The same seed always yields the same subsamples and results.
func Repeat(a, b []float64, n, rounds int, seed uint64, test TestFunc) ([]*Result, error) {
	if rounds <= 0 {
		rounds = 1
	}
	rng := NewRand(seed)
	out := make([]*Result, 0, rounds)
	for r := 0; r < rounds; r++ {
		sa := Sample(a, n, rng)
		sb := Sample(b, n, rng)
		res, err := test(sa, sb)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", r+1, err)
		}
		out = append(out, res)
	}
	return out, nil
}
