// Package pipeline composes the stages: derive, aggregate trips, aggregate
// routes, filter outliers. Each stage reads the previous stage's output and
// returns a new table; nothing is mutated in place.
package pipeline

import (
	"errors"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/KaramelBytes/tripstat-cli/internal/diag"
	"github.com/KaramelBytes/tripstat-cli/internal/normalize"
	"github.com/KaramelBytes/tripstat-cli/internal/outlier"
	"github.com/KaramelBytes/tripstat-cli/internal/parser"
	"github.com/KaramelBytes/tripstat-cli/internal/route"
	"github.com/KaramelBytes/tripstat-cli/internal/segment"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

// Config carries everything the stages need. All tables are injectable.
type Config struct {
	Names   *normalize.Normalizer
	Pincode segment.PincodeExtractor
	Trip    trip.Options

	// OutlierColumns empty skips the filter; Filtered then equals Trips.
	OutlierColumns   []string
	OutlierThreshold float64

	Logger log.Interface
}

// DefaultConfig uses the built-in alias tables and filters on every numeric column.
func DefaultConfig() Config {
	return Config{
		Names:            normalize.Default(),
		Pincode:          segment.DefaultPincode(),
		Trip:             trip.DefaultOptions(),
		OutlierColumns:   append([]string(nil), trip.NumericColumns...),
		OutlierThreshold: outlier.DefaultThreshold,
	}
}

// Result is the output of one run. Diagnostics never include a SchemaError:
// that aborts the run instead.
type Result struct {
	RunID     string
	StartedAt time.Time

	Segments int
	Derived  []segment.Derived
	Trips    []trip.Record
	Routes   []route.Record
	Filtered []trip.Record
	Outlier  *outlier.Result

	Diagnostics diag.Diagnostics
}

// Validate checks the fields every record must carry before aggregation.
func Validate(records []segment.Record) error {
	for i := range records {
		r := &records[i]
		switch {
		case r.TripID == "":
			return &diag.SchemaError{Row: i + 1, Field: parser.FieldTripID, Err: errEmpty}
		case r.RouteScheduleID == "":
			return &diag.SchemaError{Row: i + 1, Field: parser.FieldRouteScheduleID, Err: errEmpty}
		}
	}
	return nil
}

var errEmpty = errors.New("required value is empty")

// RunTable decodes an in-memory table and runs the pipeline on it. Header
// problems surface as a *diag.SchemaError before any stage runs.
func RunTable(header []string, rows [][]string, opt parser.Options, cfg Config) (*Result, error) {
	records, err := parser.DecodeTable(header, rows, opt)
	if err != nil {
		return nil, err
	}
	return Run(records, cfg)
}

// Run executes every stage on records.
func Run(records []segment.Record, cfg Config) (*Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Log
	}
	if err := Validate(records); err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now().UTC(), Segments: len(records)}
	ctx := logger.WithField("run", res.RunID)

	res.Derived = segment.Deriver{Names: cfg.Names, Pincode: cfg.Pincode}.DeriveAll(records)
	ctx.WithField("segments", len(res.Derived)).Info("segments derived")

	topt := cfg.Trip
	topt.Logger = ctx
	trips, err := trip.Aggregate(res.Derived, topt)
	if err != nil {
		return nil, err
	}
	res.Trips = trips.Trips
	res.Diagnostics.Merge(trips.Diagnostics)
	ctx.WithFields(log.Fields{"trips": len(res.Trips), "diagnostics": len(trips.Diagnostics)}).Info("trips aggregated")

	routes, err := route.Aggregate(res.Trips, res.Derived, route.Options{Logger: ctx})
	if err != nil {
		return nil, err
	}
	res.Routes = routes.Routes
	res.Diagnostics.Merge(routes.Diagnostics)
	ctx.WithFields(log.Fields{"routes": len(res.Routes), "diagnostics": len(routes.Diagnostics)}).Info("routes aggregated")

	res.Filtered = res.Trips
	if len(cfg.OutlierColumns) > 0 {
		out, err := outlier.Filter(res.Trips, cfg.OutlierColumns, cfg.OutlierThreshold)
		if err != nil {
			return nil, err
		}
		res.Outlier = out
		res.Filtered = out.Trips
		res.Diagnostics.Merge(out.Diagnostics)
		ctx.WithFields(log.Fields{
			"kept":        len(out.Trips),
			"removed":     out.Removed,
			"removed_nan": out.RemovedNaN,
		}).Info("outliers filtered")
	}

	if len(res.Diagnostics) > 0 {
		ctx.WithField("summary", res.Diagnostics.Summary()).Warn("data quality diagnostics")
	}
	return res, nil
}
