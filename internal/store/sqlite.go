// Package store persists pipeline runs to a SQLite database.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/apex/log"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/tripstat-cli/internal/diag"
	"github.com/KaramelBytes/tripstat-cli/internal/export"
	"github.com/KaramelBytes/tripstat-cli/internal/hypothesis"
	"github.com/KaramelBytes/tripstat-cli/internal/pipeline"
	"github.com/KaramelBytes/tripstat-cli/internal/segment"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a single SQLite connection.
type Store struct {
	conn   *sql.DB
	logger log.Interface
}

// RunInfo is one row of the runs table.
type RunInfo struct {
	ID        string
	StartedAt time.Time
	Input     string
	Segments  int
	Trips     int
	Routes    int
	Filtered  int
}

// Open opens (or creates) the database at path with WAL and foreign keys enabled
// and ensures the schema exists.
func Open(ctx context.Context, path string, logger log.Interface) (*Store, error) {
	if logger == nil {
		logger = log.Log
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer at a time
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	logger.WithField("path", path).Debug("sqlite store open")
	return &Store{conn: conn, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// SaveRun writes a run with its trips, routes, test results and diagnostics in
// one transaction. Trips removed by the outlier filter are stored with outlier = 1.
func (s *Store) SaveRun(ctx context.Context, input string, res *pipeline.Result, tests []pipeline.ComparisonResult) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, input, segments, trips, routes, filtered) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.StartedAt.UTC().Format(time.RFC3339Nano), input,
		res.Segments, len(res.Trips), len(res.Routes), len(res.Filtered),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	kept := make(map[string]bool, len(res.Filtered))
	for i := range res.Filtered {
		kept[res.Filtered[i].TripID] = true
	}
	tripStmt, err := tx.PrepareContext(ctx, `INSERT INTO trips (
		run_id, trip_id, route_schedule_id, route_type, trip_creation_time,
		actual_time, osrm_time, actual_distance, osrm_distance,
		segment_actual_time, segment_osrm_time, segment_osrm_distance,
		time_taken_od, start_scan_to_end_scan,
		source_cities, destination_cities, source_states, destination_states,
		source_city_states, destination_city_states, outlier
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trips: %w", err)
	}
	defer tripStmt.Close()
	for i := range res.Trips {
		t := &res.Trips[i]
		created := ""
		if !t.TripCreationTime.IsZero() {
			created = t.TripCreationTime.UTC().Format(time.RFC3339Nano)
		}
		outlier := 0
		if !kept[t.TripID] {
			outlier = 1
		}
		if _, err := tripStmt.ExecContext(ctx,
			res.RunID, t.TripID, t.RouteScheduleID, string(t.RouteType), created,
			nullFloat(t.ActualTime), nullFloat(t.OSRMTime), nullFloat(t.ActualDistance), nullFloat(t.OSRMDistance),
			nullFloat(t.SegmentActualTime), nullFloat(t.SegmentOSRMTime), nullFloat(t.SegmentOSRMDistance),
			nullFloat(t.TimeTakenOD), nullFloat(t.StartScanToEndScan),
			join(t.SourceCities), join(t.DestinationCities), join(t.SourceStates), join(t.DestinationStates),
			join(t.SourceCityStates), join(t.DestinationCityStates), outlier,
		); err != nil {
			return fmt.Errorf("insert trip %s: %w", t.TripID, err)
		}
	}

	for i := range res.Routes {
		r := &res.Routes[i]
		if _, err := tx.ExecContext(ctx, `INSERT INTO routes (
			run_id, route_schedule_id, route_types, source_cities, destination_cities,
			num_source_cities, num_destination_cities, num_source_states, num_destination_states,
			trip_count, avg_actual_distance, label
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, r.RouteScheduleID, join(r.RouteTypes), join(r.SourceCities), join(r.DestinationCities),
			r.NumSourceCities, r.NumDestinationCities, r.NumSourceStates, r.NumDestinationStates,
			r.TripCount, nullFloat(r.AvgActualDistance), r.SourceToDestination,
		); err != nil {
			return fmt.Errorf("insert route %s: %w", r.RouteScheduleID, err)
		}
	}

	for _, c := range tests {
		for _, hr := range []*hypothesis.Result{c.TTest, c.KS} {
			if hr == nil {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO tests (
				run_id, column_a, column_b, kind, alternative, statistic, p_value, alpha, decision, n_a, n_b
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				res.RunID, c.Comparison.A, c.Comparison.B, string(hr.Kind), string(hr.Alternative),
				nullFloat(hr.Statistic), nullFloat(hr.PValue), hr.Alpha, string(hr.Decision), hr.NA, hr.NB,
			); err != nil {
				return fmt.Errorf("insert test %s: %w", c.Comparison, err)
			}
		}
	}

	for _, d := range res.Diagnostics {
		kind := string(diag.KindOf(d))
		if kind == "" {
			kind = "other"
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO diagnostics (run_id, kind, message) VALUES (?, ?, ?)`,
			res.RunID, kind, d.Error()); err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.WithFields(log.Fields{"run": res.RunID, "trips": len(res.Trips), "routes": len(res.Routes)}).Info("run saved")
	return nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, started_at, input, segments, trips, routes, filtered FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []RunInfo
	for rows.Next() {
		var (
			ri      RunInfo
			started string
		)
		if err := rows.Scan(&ri.ID, &started, &ri.Input, &ri.Segments, &ri.Trips, &ri.Routes, &ri.Filtered); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if ri.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", ri.ID, err)
		}
		out = append(out, ri)
	}
	return out, rows.Err()
}

// LoadTrips reads the trips of a run sorted by trip_id. Outliers are included
// only when withOutliers is set.
func (s *Store) LoadTrips(ctx context.Context, runID string, withOutliers bool) ([]trip.Record, error) {
	q := `SELECT trip_id, route_schedule_id, route_type, trip_creation_time,
		actual_time, osrm_time, actual_distance, osrm_distance,
		segment_actual_time, segment_osrm_time, segment_osrm_distance,
		time_taken_od, start_scan_to_end_scan,
		source_cities, destination_cities, source_states, destination_states,
		source_city_states, destination_city_states
		FROM trips WHERE run_id = ?`
	if !withOutliers {
		q += ` AND outlier = 0`
	}
	q += ` ORDER BY trip_id`
	rows, err := s.conn.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var out []trip.Record
	for rows.Next() {
		var (
			t                        trip.Record
			routeType, created       string
			nums                     [9]sql.NullFloat64
			sc, dc, ss, ds, scs, dcs string
		)
		if err := rows.Scan(&t.TripID, &t.RouteScheduleID, &routeType, &created,
			&nums[0], &nums[1], &nums[2], &nums[3], &nums[4], &nums[5], &nums[6], &nums[7], &nums[8],
			&sc, &dc, &ss, &ds, &scs, &dcs,
		); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		t.RouteType = segment.RouteType(routeType)
		if created != "" {
			if t.TripCreationTime, err = time.Parse(time.RFC3339Nano, created); err != nil {
				return nil, fmt.Errorf("trip %s creation time: %w", t.TripID, err)
			}
		}
		for i, col := range trip.NumericColumns {
			v := math.NaN()
			if nums[i].Valid {
				v = nums[i].Float64
			}
			t.SetValue(col, v)
		}
		t.SourceCities, t.DestinationCities = split(sc), split(dc)
		t.SourceStates, t.DestinationStates = split(ss), split(ds)
		t.SourceCityStates, t.DestinationCityStates = split(scs), split(dcs)
		out = append(out, t)
	}
	return out, rows.Err()
}

// nullFloat maps NaN to NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func join(vals []string) string { return strings.Join(vals, export.SetSeparator) }

func split(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, export.SetSeparator)
}
