package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/tripstat-cli/internal/diag"
	"github.com/KaramelBytes/tripstat-cli/internal/hypothesis"
	"github.com/KaramelBytes/tripstat-cli/internal/parser"
	"github.com/KaramelBytes/tripstat-cli/internal/segment"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Logger = &log.Logger{Handler: discard.Default, Level: log.DebugLevel}
	return cfg
}

// record builds a raw segment in minutes: cp is the cumulative scan time.
func record(tripID, routeID string, cp, actual float64) segment.Record {
	start := time.Date(2018, 9, 20, 3, 0, 0, 0, time.UTC)
	return segment.Record{
		TripID:              tripID,
		RouteScheduleID:     routeID,
		RouteType:           segment.Carting,
		SourceCode:          "IND388121AAA",
		SourceLabel:         "Anand_VUNagar_DC (Gujarat)",
		DestinationCode:     "IND388620AAB",
		DestinationLabel:    "Khambhat_MotvdDPP_D (Gujarat)",
		TripCreationTime:    start,
		SegmentStartTime:    start,
		SegmentEndTime:      start.Add(2 * time.Hour),
		StartScanToEndScan:  cp,
		ActualTime:          actual,
		OSRMTime:            actual / 2,
		ActualDistance:      10,
		OSRMDistance:        12,
		SegmentActualTime:   30,
		SegmentOSRMTime:     15,
		SegmentOSRMDistance: 6,
	}
}

func TestRun_EndToEnd(t *testing.T) {
	records := []segment.Record{
		record("T1", "R1", 60, 60),
		record("T1", "R1", 120, 120),
		record("T2", "R1", 60, 90),
		record("T3", "R2", 60, 60),
	}
	res, err := Run(records, testConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.Segments)
	require.Len(t, res.Trips, 3)

	t1 := res.Trips[0]
	assert.Equal(t, "T1", t1.TripID)
	// two checkpoints (1h, 2h) of cumulative actual time 1h and 2h
	assert.InDelta(t, 3.0, t1.ActualTime, 1e-12)
	assert.InDelta(t, 1.0, t1.SegmentActualTime, 1e-12)
	assert.InDelta(t, 3.0, t1.StartScanToEndScan, 1e-12)
	assert.InDelta(t, 2.0, t1.TimeTakenOD, 1e-12)
	assert.Equal(t, []string{"Anand"}, t1.SourceCities)
	assert.Equal(t, []string{"Khambhat Gujarat"}, t1.DestinationCityStates)

	require.Len(t, res.Routes, 2)
	assert.Equal(t, "R1", res.Routes[0].RouteScheduleID)
	assert.Equal(t, 2, res.Routes[0].TripCount)
	assert.Equal(t, "Anand TO Khambhat", res.Routes[0].SourceToDestination)

	// constant columns are excluded from the filter and reported
	require.NotNil(t, res.Outlier)
	assert.Positive(t, res.Diagnostics.Count(diag.KindDegenerateColumn))
	assert.Len(t, res.Filtered, 3)
}

func TestRun_NoOutlierColumns(t *testing.T) {
	cfg := testConfig()
	cfg.OutlierColumns = nil
	res, err := Run([]segment.Record{record("T1", "R1", 60, 60)}, cfg)
	require.NoError(t, err)
	assert.Nil(t, res.Outlier)
	assert.Equal(t, res.Trips, res.Filtered)
	assert.Empty(t, res.Diagnostics)
}

func TestRun_ConsistencyDiagnostics(t *testing.T) {
	bad := record("T1", "R1", 120, 120)
	bad.RouteType = segment.FullTruckLoad
	cfg := testConfig()
	cfg.OutlierColumns = nil
	res, err := Run([]segment.Record{record("T1", "R1", 60, 60), bad, record("T2", "R1", 60, 60)}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Trips, 1)
	assert.Equal(t, 1, res.Diagnostics.Count(diag.KindConsistency))

	cfg.Trip.Strict = true
	_, err = Run([]segment.Record{record("T1", "R1", 60, 60), bad}, cfg)
	var ce *diag.ConsistencyError
	assert.True(t, errors.As(err, &ce))
}

func TestValidate_EmptyTripID(t *testing.T) {
	_, err := Run([]segment.Record{record("", "R1", 60, 60)}, testConfig())
	var se *diag.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, parser.FieldTripID, se.Field)
	assert.Equal(t, 1, se.Row)
}

func TestRunTable_MissingTripIDColumn(t *testing.T) {
	header := make([]string, 0, len(parser.RequiredFields))
	for _, f := range parser.RequiredFields {
		if f != parser.FieldTripID {
			header = append(header, f)
		}
	}
	row := strings.Split("R1,FTL,A_B (C),D_E (F),,,,1,1,1,1,1,1,1,1", ",")
	_, err := RunTable(header, [][]string{row}, parser.Options{}, testConfig())
	var se *diag.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{parser.FieldTripID}, se.Missing)
}

func TestDefaultComparisons(t *testing.T) {
	comps := DefaultComparisons()
	require.Len(t, comps, 8)
	for _, c := range comps {
		assert.True(t, trip.IsNumericColumn(c.A), c.A)
		assert.True(t, trip.IsNumericColumn(c.B), c.B)
	}
	assert.Equal(t, hypothesis.Greater, comps[3].Alternative)
}

func comparisonTrips() []trip.Record {
	var trips []trip.Record
	for i := 0; i < 40; i++ {
		f := float64(i)
		trips = append(trips, trip.Record{
			TripID:     string(rune('A' + i)),
			ActualTime: 10 + f*0.5 + float64(i%3),
			OSRMTime:   5 + f*0.25 + float64(i%4),
		})
	}
	return trips
}

func TestCompare(t *testing.T) {
	comps := []Comparison{{A: trip.ColActualTime, B: trip.ColOSRMTime, Alternative: hypothesis.Greater}}
	res, err := Compare(comparisonTrips(), comps, CompareOptions{Test: hypothesis.DefaultOptions()})
	require.NoError(t, err)
	require.Len(t, res, 1)
	r := res[0]
	require.Empty(t, r.Err)
	assert.Equal(t, hypothesis.Greater, r.TTest.Alternative)
	assert.Equal(t, hypothesis.Reject, r.TTest.Decision)
	assert.Equal(t, hypothesis.KSTest, r.KS.Kind)
	assert.Equal(t, 40, r.TTest.NA)
	assert.Empty(t, r.Rounds)
}

func TestCompare_SampledRoundsAreSeeded(t *testing.T) {
	comps := []Comparison{{A: trip.ColActualTime, B: trip.ColOSRMTime, Alternative: hypothesis.TwoSided}}
	opt := CompareOptions{Test: hypothesis.DefaultOptions(), SampleSize: 10, Rounds: 3, Seed: 42}
	first, err := Compare(comparisonTrips(), comps, opt)
	require.NoError(t, err)
	second, err := Compare(comparisonTrips(), comps, opt)
	require.NoError(t, err)
	require.Len(t, first[0].Rounds, 3)
	assert.Equal(t, 10, first[0].TTest.NA)
	for i := range first[0].Rounds {
		assert.Equal(t, first[0].Rounds[i].PValue, second[0].Rounds[i].PValue)
	}
}

func TestCompare_ZeroVarianceIsRecorded(t *testing.T) {
	trips := []trip.Record{{TripID: "a"}, {TripID: "b"}, {TripID: "c"}}
	res, err := Compare(trips, []Comparison{{A: trip.ColActualTime, B: trip.ColOSRMTime}}, CompareOptions{})
	require.NoError(t, err)
	assert.Nil(t, res[0].TTest)
	assert.Contains(t, res[0].Err, "zero variance")
	assert.NotNil(t, res[0].KS)
}

func TestCompare_UnknownColumn(t *testing.T) {
	_, err := Compare(nil, []Comparison{{A: "nope", B: trip.ColOSRMTime}}, CompareOptions{})
	assert.Error(t, err)
}
