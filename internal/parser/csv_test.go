package parser_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/KaramelBytes/tripstat-cli/internal/diag"
	"github.com/KaramelBytes/tripstat-cli/internal/parser"
	"github.com/KaramelBytes/tripstat-cli/internal/segment"
)

// rawHeader mirrors the column layout of the logistics export.
const rawHeader = "data,trip_creation_time,route_schedule_uuid,route_type,trip_uuid,source_center,source_name,destination_center,destination_name,od_start_time,od_end_time,start_scan_to_end_scan,is_cutoff,cutoff_factor,cutoff_timestamp,actual_distance_to_destination,actual_time,osrm_time,osrm_distance,factor,segment_actual_time,segment_osrm_time,segment_osrm_distance,segment_factor"

const rawRow = "training,2018-09-20 02:35:36.476840,thanos::sroute:eb7bfc78,Carting,trip-153741093647649320,IND388121AAA,Anand_VUNagar_DC (Gujarat),IND388620AAB,Khambhat_MotvdDPP_D (Gujarat),2018-09-20 03:21:32.418600,2018-09-20 04:47:45.236797,86.0,True,9,2018-09-20 04:27:55,10.43,14.0,11.0,11.9653,1.27,14.0,11.0,11.9653,1.27"

func TestReadSegments_RawExportHeader(t *testing.T) {
	recs, err := parser.ReadSegments(strings.NewReader(rawHeader+"\n"+rawRow+"\n"), parser.DefaultOptions())
	if err != nil {
		t.Fatalf("ReadSegments: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.TripID != "trip-153741093647649320" || r.RouteScheduleID != "thanos::sroute:eb7bfc78" {
		t.Fatalf("ids = %q %q", r.TripID, r.RouteScheduleID)
	}
	if r.RouteType != segment.Carting {
		t.Fatalf("route type = %q", r.RouteType)
	}
	if r.SourceCode != "IND388121AAA" || r.DestinationLabel != "Khambhat_MotvdDPP_D (Gujarat)" {
		t.Fatalf("locations = %q %q", r.SourceCode, r.DestinationLabel)
	}
	if !r.IsCutoff {
		t.Fatal("is_cutoff not parsed")
	}
	if r.StartScanToEndScan != 86 || r.ActualTime != 14 || r.ActualDistance != 10.43 || r.SegmentOSRMDistance != 11.9653 {
		t.Fatalf("numbers = %+v", r)
	}
	if r.SegmentStartTime.Minute() != 21 || r.SegmentEndTime.Hour() != 4 {
		t.Fatalf("times = %v %v", r.SegmentStartTime, r.SegmentEndTime)
	}
	if r.TripCreationTime.Nanosecond() == 0 {
		t.Fatal("fractional seconds dropped")
	}
}

func TestReadSegments_MissingTripIDIsSchemaError(t *testing.T) {
	header := strings.Replace(rawHeader, "trip_uuid", "trip_ref", 1)
	_, err := parser.ReadSegments(strings.NewReader(header+"\n"+rawRow+"\n"), parser.DefaultOptions())
	var se *diag.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SchemaError", err)
	}
	if diff := cmp.Diff([]string{parser.FieldTripID}, se.Missing); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSegments_WrongTypeIsSchemaError(t *testing.T) {
	row := strings.Replace(rawRow, ",14.0,11.0,11.9653,1.27,14.0", ",fourteen,11.0,11.9653,1.27,14.0", 1)
	_, err := parser.ReadSegments(strings.NewReader(rawHeader+"\n"+row+"\n"), parser.DefaultOptions())
	var se *diag.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SchemaError", err)
	}
	if se.Row != 1 || se.Field != parser.FieldActualTime || se.Value != "fourteen" {
		t.Fatalf("schema error = %+v", se)
	}
}

func TestReadSegments_EmptyNumericIsNaN(t *testing.T) {
	row := strings.Replace(rawRow, ",10.43,", ",,", 1)
	recs, err := parser.ReadSegments(strings.NewReader(rawHeader+"\n"+row+"\n"), parser.DefaultOptions())
	if err != nil {
		t.Fatalf("ReadSegments: %v", err)
	}
	if !math.IsNaN(recs[0].ActualDistance) {
		t.Fatalf("actual distance = %v, want NaN", recs[0].ActualDistance)
	}
}

func TestDecodeTable_CanonicalHeader(t *testing.T) {
	header := append([]string{}, parser.RequiredFields...)
	row := []string{
		"T1", "R1", "FTL", "Pune_Hub (Maharashtra)", "Mumbai_Hub (Maharashtra)",
		"2018-09-20 02:35:36", "2018-09-20 03:00:00", "2018-09-20 05:00:00",
		"120", "130", "90", "150.5", "140", "130", "90", "140",
	}
	recs, err := parser.DecodeTable(header, [][]string{row}, parser.Options{})
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if recs[0].RouteType != segment.FullTruckLoad || recs[0].OSRMDistance != 140 {
		t.Fatalf("record = %+v", recs[0])
	}
	if recs[0].SourceCode != "" {
		t.Fatalf("optional source code = %q, want empty", recs[0].SourceCode)
	}
}

func TestValidateHeader_ReportsAllMissing(t *testing.T) {
	err := parser.ValidateHeader([]string{"trip_id", "route_type"}, nil)
	var se *diag.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v", err)
	}
	if len(se.Missing) != len(parser.RequiredFields)-2 {
		t.Fatalf("missing = %v", se.Missing)
	}
}

func TestReadSegmentsFile_TSV(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "segments.tsv")
	content := strings.ReplaceAll(rawHeader, ",", "\t") + "\n" + strings.ReplaceAll(rawRow, ",", "\t") + "\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	recs, err := parser.ReadSegmentsFile(p, parser.DefaultOptions())
	if err != nil {
		t.Fatalf("ReadSegmentsFile: %v", err)
	}
	if len(recs) != 1 || recs[0].TripID != "trip-153741093647649320" {
		t.Fatalf("records = %+v", recs)
	}
}
