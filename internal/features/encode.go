package features

import (
	"fmt"

	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

// EncodeOptions selects the columns of the design matrix.
type EncodeOptions struct {
	// Categorical columns to one-hot, e.g. route_type or location_category.
	Categorical []string
	// Numeric trip columns to scale.
	Numeric []string
	Scaler  Scaler
}

// DefaultEncodeOptions one-hot encodes route type and location category and
// standardizes every numeric column.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		Categorical: []string{trip.ColRouteType, ColLocationCategory},
		Numeric:     append([]string(nil), trip.NumericColumns...),
		Scaler:      Standard,
	}
}

// Matrix is a dense row-per-trip table. Numeric columns come first, then the
// indicator columns in the order their categorical sources were requested.
type Matrix struct {
	Columns []string
	TripIDs []string
	Rows    [][]float64
}

// Encode builds the design matrix for trips. Unknown column names are an error.
func Encode(trips []trip.Record, opt EncodeOptions) (*Matrix, error) {
	if opt.Scaler == "" {
		opt.Scaler = Standard
	}
	m := &Matrix{TripIDs: make([]string, len(trips)), Rows: make([][]float64, len(trips))}
	for i := range trips {
		m.TripIDs[i] = trips[i].TripID
	}

	for _, col := range opt.Numeric {
		xs, ok := trip.Column(trips, col)
		if !ok {
			return nil, fmt.Errorf("encode: unknown numeric column %q", col)
		}
		scaled, err := scale(xs, opt.Scaler)
		if err != nil {
			return nil, fmt.Errorf("encode: scale %s: %w", col, err)
		}
		m.Columns = append(m.Columns, col)
		for i, v := range scaled {
			m.Rows[i] = append(m.Rows[i], v)
		}
	}

	var locCats []string
	for _, col := range opt.Categorical {
		values := make([]string, len(trips))
		if col == ColLocationCategory {
			if locCats == nil {
				locCats = LocationCategories(trips)
			}
			copy(values, locCats)
		} else {
			if _, ok := (&trip.Record{}).Label(col); !ok {
				return nil, fmt.Errorf("encode: unknown categorical column %q", col)
			}
			for i := range trips {
				values[i], _ = trips[i].Label(col)
			}
		}
		cols, rows := OneHot(col, values)
		m.Columns = append(m.Columns, cols...)
		for i := range rows {
			m.Rows[i] = append(m.Rows[i], rows[i]...)
		}
	}
	return m, nil
}

func scale(xs []float64, s Scaler) ([]float64, error) {
	switch s {
	case Standard:
		return StandardScale(xs)
	case MinMax:
		return MinMaxScale(xs)
	case NoScale:
		return append([]float64(nil), xs...), nil
	}
	return nil, fmt.Errorf("unknown scaler %q", s)
}
