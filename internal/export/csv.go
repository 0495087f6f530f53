// Package export writes and reads the trip, route and feature tables as CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/tripstat-cli/internal/features"
	"github.com/KaramelBytes/tripstat-cli/internal/route"
	"github.com/KaramelBytes/tripstat-cli/internal/segment"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
	"github.com/KaramelBytes/tripstat-cli/internal/utils"
)

// SetSeparator joins the members of set-valued cells.
const SetSeparator = ";"

// TripHeader is the column order of an exported trip table.
func TripHeader() []string {
	h := []string{trip.ColTripID, trip.ColRouteScheduleID, trip.ColRouteType, "trip_creation_time"}
	h = append(h, trip.NumericColumns...)
	return append(h,
		trip.ColSourceCities, trip.ColDestinationCities,
		trip.ColSourceStates, trip.ColDestinationStates,
		trip.ColSourceCityStates, trip.ColDestinationCityStates,
	)
}

// RouteHeader is the column order of an exported route table.
var RouteHeader = []string{
	"route_schedule_id", "route_types",
	"source_cities", "destination_cities", "source_states", "destination_states",
	"source_city_states", "destination_city_states",
	"num_source_cities", "num_destination_cities", "num_source_states", "num_destination_states",
	"trip_count", "avg_actual_distance", "route", "source_to_destination",
}

// WriteTrips writes trips with a header row.
func WriteTrips(w io.Writer, trips []trip.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TripHeader()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range trips {
		t := &trips[i]
		row := []string{t.TripID, t.RouteScheduleID, string(t.RouteType), formatTime(t.TripCreationTime)}
		for _, col := range trip.NumericColumns {
			v, _ := t.Value(col)
			row = append(row, formatFloat(v))
		}
		row = append(row,
			joinSet(t.SourceCities), joinSet(t.DestinationCities),
			joinSet(t.SourceStates), joinSet(t.DestinationStates),
			joinSet(t.SourceCityStates), joinSet(t.DestinationCityStates),
		)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write trip %s: %w", t.TripID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRoutes writes routes with a header row.
func WriteRoutes(w io.Writer, routes []route.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RouteHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range routes {
		r := &routes[i]
		row := []string{
			r.RouteScheduleID, joinSet(r.RouteTypes),
			joinSet(r.SourceCities), joinSet(r.DestinationCities),
			joinSet(r.SourceStates), joinSet(r.DestinationStates),
			joinSet(r.SourceCityStates), joinSet(r.DestinationCityStates),
			strconv.Itoa(r.NumSourceCities), strconv.Itoa(r.NumDestinationCities),
			strconv.Itoa(r.NumSourceStates), strconv.Itoa(r.NumDestinationStates),
			strconv.Itoa(r.TripCount), formatFloat(r.AvgActualDistance),
			r.Route, r.SourceToDestination,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write route %s: %w", r.RouteScheduleID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMatrix writes a design matrix; the first column is trip_id.
func WriteMatrix(w io.Writer, m *features.Matrix) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{trip.ColTripID}, m.Columns...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, vals := range m.Rows {
		row := make([]string, 0, len(vals)+1)
		row = append(row, m.TripIDs[i])
		for _, v := range vals {
			row = append(row, formatFloat(v))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTrips reads a table written by WriteTrips. Columns are matched by name,
// so extra columns are ignored; a missing trip_id column is an error.
func ReadTrips(r io.Reader) ([]trip.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := idx[trip.ColTripID]; !ok {
		return nil, fmt.Errorf("trip table: missing %s column", trip.ColTripID)
	}
	cell := func(rec []string, name string) string {
		if i, ok := idx[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var out []trip.Record
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}
		t := trip.Record{
			TripID:                cell(rec, trip.ColTripID),
			RouteScheduleID:       cell(rec, trip.ColRouteScheduleID),
			RouteType:             segment.RouteType(cell(rec, trip.ColRouteType)),
			SourceCities:          splitSet(cell(rec, trip.ColSourceCities)),
			DestinationCities:     splitSet(cell(rec, trip.ColDestinationCities)),
			SourceStates:          splitSet(cell(rec, trip.ColSourceStates)),
			DestinationStates:     splitSet(cell(rec, trip.ColDestinationStates)),
			SourceCityStates:      splitSet(cell(rec, trip.ColSourceCityStates)),
			DestinationCityStates: splitSet(cell(rec, trip.ColDestinationCityStates)),
		}
		if v := cell(rec, "trip_creation_time"); v != "" {
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("row %d trip_creation_time: %w", row, err)
			}
			t.TripCreationTime = ts
		}
		for _, col := range trip.NumericColumns {
			v := cell(rec, col)
			x := math.NaN()
			if v != "" {
				if x, err = strconv.ParseFloat(v, 64); err != nil {
					return nil, fmt.Errorf("row %d %s: %w", row, col, err)
				}
			}
			t.SetValue(col, x)
		}
		out = append(out, t)
	}
	return out, nil
}

// ReadTripsFile opens path and reads it with ReadTrips.
func ReadTripsFile(path string) ([]trip.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trip table: %w", err)
	}
	defer f.Close()
	return ReadTrips(f)
}

// SaveTrips writes trips to path atomically.
func SaveTrips(path string, trips []trip.Record) error {
	return save(path, func(w io.Writer) error { return WriteTrips(w, trips) })
}

// SaveRoutes writes routes to path atomically.
func SaveRoutes(path string, routes []route.Record) error {
	return save(path, func(w io.Writer) error { return WriteRoutes(w, routes) })
}

// SaveMatrix writes m to path atomically.
func SaveMatrix(path string, m *features.Matrix) error {
	return save(path, func(w io.Writer) error { return WriteMatrix(w, m) })
}

func save(path string, write func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	if err := utils.SafeWriteFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func joinSet(vals []string) string { return strings.Join(vals, SetSeparator) }

func splitSet(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, SetSeparator)
}
