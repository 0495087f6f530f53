package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/tripstat-cli/internal/diag"
	"github.com/KaramelBytes/tripstat-cli/internal/normalize"
	"github.com/KaramelBytes/tripstat-cli/internal/segment"
)

// Canonical segment field names.
const (
	FieldTripID              = "trip_id"
	FieldRouteScheduleID     = "route_schedule_id"
	FieldRouteType           = "route_type"
	FieldSourceCode          = "source_code"
	FieldSourceLabel         = "source_label"
	FieldDestinationCode     = "destination_code"
	FieldDestinationLabel    = "destination_label"
	FieldTripCreationTime    = "trip_creation_time"
	FieldSegmentStartTime    = "segment_start_time"
	FieldSegmentEndTime      = "segment_end_time"
	FieldIsCutoff            = "is_cutoff"
	FieldStartScanToEndScan  = "cumulative_start_scan_to_end_scan"
	FieldActualTime          = "cumulative_actual_time"
	FieldOSRMTime            = "cumulative_osrm_time"
	FieldActualDistance      = "cumulative_actual_distance"
	FieldOSRMDistance        = "cumulative_osrm_distance"
	FieldSegmentActualTime   = "segment_actual_time"
	FieldSegmentOSRMTime     = "segment_osrm_time"
	FieldSegmentOSRMDistance = "segment_osrm_distance"
)

// RequiredFields must all be present in the header.
var RequiredFields = []string{
	FieldTripID, FieldRouteScheduleID, FieldRouteType,
	FieldSourceLabel, FieldDestinationLabel,
	FieldTripCreationTime, FieldSegmentStartTime, FieldSegmentEndTime,
	FieldStartScanToEndScan, FieldActualTime, FieldOSRMTime, FieldActualDistance, FieldOSRMDistance,
	FieldSegmentActualTime, FieldSegmentOSRMTime, FieldSegmentOSRMDistance,
}

// OptionalFields are read when present.
var OptionalFields = []string{FieldSourceCode, FieldDestinationCode, FieldIsCutoff}

// DefaultHeaderAliases maps the raw logistics export column names to canonical ones.
func DefaultHeaderAliases() []normalize.Alias {
	return []normalize.Alias{
		{From: "trip_uuid", To: FieldTripID},
		{From: "route_schedule_uuid", To: FieldRouteScheduleID},
		{From: "source_center", To: FieldSourceCode},
		{From: "source_name", To: FieldSourceLabel},
		{From: "destination_center", To: FieldDestinationCode},
		{From: "destination_name", To: FieldDestinationLabel},
		{From: "od_start_time", To: FieldSegmentStartTime},
		{From: "od_end_time", To: FieldSegmentEndTime},
		{From: "start_scan_to_end_scan", To: FieldStartScanToEndScan},
		{From: "actual_time", To: FieldActualTime},
		{From: "osrm_time", To: FieldOSRMTime},
		{From: "actual_distance_to_destination", To: FieldActualDistance},
		{From: "osrm_distance", To: FieldOSRMDistance},
	}
}

// Options controls how a segment table is read.
type Options struct {
	// Delimiter for CSV. If 0, picks by file extension (tab for .tsv, comma otherwise).
	Delimiter rune
	// HeaderAliases rename header columns before matching canonical names.
	HeaderAliases []normalize.Alias
	// MaxRows limits rows read; 0 means unlimited.
	MaxRows int
	// Sheet and SheetIndex (1-based) select the worksheet of an .xlsx input.
	Sheet      string
	SheetIndex int
}

// DefaultOptions returns options that accept both canonical and raw export headers.
func DefaultOptions() Options {
	return Options{HeaderAliases: DefaultHeaderAliases()}
}

// ReadSegmentsFile opens a CSV/TSV or XLSX file and reads segment records from it.
func ReadSegmentsFile(path string, opt Options) ([]segment.Record, error) {
	if IsXLSX(path) {
		return ReadSegmentsXLSX(path, opt)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	if opt.Delimiter == 0 {
		opt.Delimiter = sniffDelimiter(path)
	}
	return ReadSegments(f, opt)
}

// ReadSegments reads a delimited segment table. A missing required column or a
// cell of the wrong type yields a *diag.SchemaError and no records.
func ReadSegments(r io.Reader, opt Options) ([]segment.Record, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &diag.SchemaError{Missing: RequiredFields}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	dec, err := newDecoder(header, opt.HeaderAliases)
	if err != nil {
		return nil, err
	}

	var out []segment.Record
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}
		if opt.MaxRows > 0 && len(out) >= opt.MaxRows {
			break
		}
		s, err := dec.decode(row, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// DecodeTable converts an in-memory table into records with the same checks as ReadSegments.
func DecodeTable(header []string, rows [][]string, opt Options) ([]segment.Record, error) {
	dec, err := newDecoder(header, opt.HeaderAliases)
	if err != nil {
		return nil, err
	}
	out := make([]segment.Record, 0, len(rows))
	for i, rec := range rows {
		s, err := dec.decode(i+1, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ValidateHeader reports the required canonical fields absent from header.
func ValidateHeader(header []string, aliases []normalize.Alias) error {
	_, err := newDecoder(header, aliases)
	return err
}

type decoder struct {
	idx map[string]int
}

func newDecoder(header []string, aliases []normalize.Alias) (*decoder, error) {
	rename := make(map[string]string, len(aliases))
	for _, a := range aliases {
		rename[strings.ToLower(a.From)] = a.To
	}
	d := &decoder{idx: make(map[string]int, len(header))}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if to, ok := rename[name]; ok {
			name = to
		}
		// first occurrence wins, so a canonical column is not shadowed by an alias
		if _, dup := d.idx[name]; !dup {
			d.idx[name] = i
		}
	}
	var missing []string
	for _, f := range RequiredFields {
		if _, ok := d.idx[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &diag.SchemaError{Missing: missing}
	}
	return d, nil
}

func (d *decoder) cell(rec []string, field string) string {
	i, ok := d.idx[field]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (d *decoder) decode(row int, rec []string) (segment.Record, error) {
	var (
		s        segment.Record
		firstErr error
	)
	fail := func(field, value string, err error) {
		if firstErr == nil {
			firstErr = &diag.SchemaError{Row: row, Field: field, Value: value, Err: err}
		}
	}
	str := func(field string) string { return d.cell(rec, field) }
	num := func(field string) float64 {
		v := d.cell(rec, field)
		x, err := parseNumber(v)
		if err != nil {
			fail(field, v, err)
		}
		return x
	}
	ts := func(field string) time.Time {
		v := d.cell(rec, field)
		t, err := parseTime(v)
		if err != nil {
			fail(field, v, err)
		}
		return t
	}

	s.TripID = str(FieldTripID)
	if s.TripID == "" {
		fail(FieldTripID, "", errors.New("required value is empty"))
	}
	s.RouteScheduleID = str(FieldRouteScheduleID)
	if s.RouteScheduleID == "" {
		fail(FieldRouteScheduleID, "", errors.New("required value is empty"))
	}
	if v := str(FieldRouteType); v != "" {
		rt, err := segment.ParseRouteType(v)
		if err != nil {
			fail(FieldRouteType, v, err)
		}
		s.RouteType = rt
	}
	s.SourceCode = str(FieldSourceCode)
	s.SourceLabel = str(FieldSourceLabel)
	s.DestinationCode = str(FieldDestinationCode)
	s.DestinationLabel = str(FieldDestinationLabel)

	s.TripCreationTime = ts(FieldTripCreationTime)
	s.SegmentStartTime = ts(FieldSegmentStartTime)
	s.SegmentEndTime = ts(FieldSegmentEndTime)
	if v := str(FieldIsCutoff); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail(FieldIsCutoff, v, err)
		}
		s.IsCutoff = b
	}

	s.StartScanToEndScan = num(FieldStartScanToEndScan)
	s.ActualTime = num(FieldActualTime)
	s.OSRMTime = num(FieldOSRMTime)
	s.ActualDistance = num(FieldActualDistance)
	s.OSRMDistance = num(FieldOSRMDistance)
	s.SegmentActualTime = num(FieldSegmentActualTime)
	s.SegmentOSRMTime = num(FieldSegmentOSRMTime)
	s.SegmentOSRMDistance = num(FieldSegmentOSRMDistance)

	return s, firstErr
}

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}

// parseNumber maps an empty cell to NaN.
func parseNumber(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "", "nan", "null", "na":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// parseTime maps an empty cell to the zero time. Fractional seconds are accepted
// by every layout with a seconds field, and a bare number is read as a
// spreadsheet serial date.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	if days, err := strconv.ParseFloat(s, 64); err == nil && days > 0 {
		ms := math.Round(days * 24 * 60 * 60 * 1000)
		return excelEpoch.Add(time.Duration(ms) * time.Millisecond), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp")
}
