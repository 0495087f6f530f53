package hypothesis

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Compare runs an unpaired two-sample t-test of mean(a) against mean(b).
// Samples may differ in size. Welch's unequal-variance form is used unless
// opt.EqualVariance is set.
func Compare(a, b []float64, opt Options) (*Result, error) {
	opt = opt.withDefaults()
	xa, exA := dropNaN(a)
	xb, exB := dropNaN(b)
	if len(xa) < 2 || len(xb) < 2 {
		return nil, ErrInsufficientData
	}

	na, nb := float64(len(xa)), float64(len(xb))
	ma, va := stat.MeanVariance(xa, nil)
	mb, vb := stat.MeanVariance(xb, nil)

	var se, df float64
	if opt.EqualVariance {
		df = na + nb - 2
		pooled := ((na-1)*va + (nb-1)*vb) / df
		se = math.Sqrt(pooled * (1/na + 1/nb))
	} else {
		qa, qb := va/na, vb/nb
		se = math.Sqrt(qa + qb)
		df = (qa + qb) * (qa + qb) / (qa*qa/(na-1) + qb*qb/(nb-1))
	}
	if se == 0 {
		return nil, ErrZeroVariance
	}

	t := (ma - mb) / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	var p float64
	switch opt.Alternative {
	case Less:
		p = dist.CDF(t)
	case Greater:
		p = dist.Survival(t)
	default:
		p = math.Min(1, 2*dist.Survival(math.Abs(t)))
	}

	return &Result{
		Kind:        TTest,
		Statistic:   t,
		PValue:      p,
		DF:          df,
		Alternative: opt.Alternative,
		Alpha:       opt.Alpha,
		Decision:    decide(p, opt.Alpha),
		NA:          len(xa),
		NB:          len(xb),
		ExcludedA:   exA,
		ExcludedB:   exB,
	}, nil
}
