package hypothesis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// exactLimit bounds m*n for the exact KS p-value; larger samples use the
// asymptotic Kolmogorov distribution.
const exactLimit = 10000

// CompareDistributions runs the two-sided two-sample Kolmogorov-Smirnov test.
// An alpha outside (0, 1) falls back to DefaultAlpha.
func CompareDistributions(a, b []float64, alpha float64) (*Result, error) {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}
	xa, exA := dropNaN(a)
	xb, exB := dropNaN(b)
	if len(xa) == 0 || len(xb) == 0 {
		return nil, ErrInsufficientData
	}
	sort.Float64s(xa)
	sort.Float64s(xb)

	d := stat.KolmogorovSmirnov(xa, nil, xb, nil)
	m, n := len(xa), len(xb)
	var p float64
	if m*n <= exactLimit {
		p = 1 - smirnovCDF(d, m, n)
	} else {
		en := math.Sqrt(float64(m) * float64(n) / float64(m+n))
		p = kolmogorovSurvival((en + 0.12 + 0.11/en) * d)
	}
	p = math.Max(0, math.Min(1, p))

	return &Result{
		Kind:        KSTest,
		Statistic:   d,
		PValue:      p,
		Alternative: TwoSided,
		Alpha:       alpha,
		Decision:    decide(p, alpha),
		NA:          m,
		NB:          n,
		ExcludedA:   exA,
		ExcludedB:   exB,
	}, nil
}

// smirnovCDF returns P(D < d) for samples of size m and n under the null by
// counting lattice paths that stay strictly inside the band |i/m - j/n| < d.
func smirnovCDF(d float64, m, n int) float64 {
	if m > n {
		m, n = n, m
	}
	md, nd := float64(m), float64(n)
	q := (0.5 + math.Floor(d*md*nd-1e-7)) / (md * nd)
	u := make([]float64, n+1)
	for j := 0; j <= n; j++ {
		if float64(j)/nd <= q {
			u[j] = 1
		}
	}
	for i := 1; i <= m; i++ {
		w := float64(i) / float64(i+n)
		if float64(i)/md > q {
			u[0] = 0
		} else {
			u[0] = w * u[0]
		}
		for j := 1; j <= n; j++ {
			if math.Abs(float64(i)/md-float64(j)/nd) > q {
				u[j] = 0
			} else {
				u[j] = w*u[j] + u[j-1]
			}
		}
	}
	return u[n]
}

// kolmogorovSurvival is Q_KS(lambda) = 2 * sum_{j>=1} (-1)^(j-1) exp(-2 j^2 lambda^2).
func kolmogorovSurvival(lambda float64) float64 {
	const eps1, eps2 = 0.001, 1e-8
	if lambda <= 0 {
		return 1
	}
	a2 := -2 * lambda * lambda
	fac, sum, prev := 2.0, 0.0, 0.0
	for j := 1; j <= 100; j++ {
		term := fac * math.Exp(a2*float64(j*j))
		sum += term
		if math.Abs(term) <= eps1*prev || math.Abs(term) <= eps2*sum {
			return sum
		}
		fac = -fac
		prev = math.Abs(term)
	}
	// series failed to converge, which happens only as lambda approaches 0
	return 1
}
