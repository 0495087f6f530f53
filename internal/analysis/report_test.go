package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/KaramelBytes/tripstat-cli/internal/diag"
	"github.com/KaramelBytes/tripstat-cli/internal/hypothesis"
	"github.com/KaramelBytes/tripstat-cli/internal/outlier"
	"github.com/KaramelBytes/tripstat-cli/internal/pipeline"
	"github.com/KaramelBytes/tripstat-cli/internal/route"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

func sampleResult() *pipeline.Result {
	trips := []trip.Record{
		{TripID: "a", ActualTime: 1, OSRMTime: 1},
		{TripID: "b", ActualTime: 2, OSRMTime: 1},
		{TripID: "c", ActualTime: 3, OSRMTime: math.NaN()},
	}
	var d diag.Diagnostics
	d.Add(&diag.IncompleteJoinWarning{Group: "trip", Key: "x", Missing: []string{"osrm_time"}})
	d.Add(&diag.ConsistencyError{Group: "trip", Key: "y", Field: "route_type", Values: []string{"FTL", "Carting"}})
	return &pipeline.Result{
		RunID:    "run-1",
		Segments: 9,
		Trips:    trips,
		Filtered: trips,
		Routes: []route.Record{
			{RouteScheduleID: "r1", TripCount: 1, SourceToDestination: "Pune TO Mumbai"},
			{RouteScheduleID: "r2", TripCount: 2, SourceToDestination: "Anand TO Surat"},
		},
		Outlier:     &outlier.Result{Stats: []outlier.ColumnStat{{Column: trip.ColActualTime, Mean: 2, Std: 0.8}}, RemovedNaN: 1},
		Diagnostics: d,
	}
}

func TestBuild_ColumnSummaries(t *testing.T) {
	rep := Build("segments.csv", sampleResult(), nil, DefaultOptions())
	if len(rep.Cols) != len(trip.NumericColumns) {
		t.Fatalf("cols = %d", len(rep.Cols))
	}
	at := rep.Cols[0]
	if at.Name != trip.ColActualTime || at.Count != 3 || at.Mean != 2 || at.Std != 1 || at.Median != 2 {
		t.Fatalf("actual_time summary = %+v", at)
	}
	if !at.Filtered || at.FilterStd != 0.8 {
		t.Fatalf("filter stats not attached: %+v", at)
	}
	ot := rep.Cols[1]
	if ot.Count != 2 || ot.Missing != 1 || ot.Min != 1 || ot.Max != 1 {
		t.Fatalf("osrm_time summary = %+v", ot)
	}
}

func TestBuild_TopRoutesByTripCount(t *testing.T) {
	rep := Build("", sampleResult(), nil, Options{TopRoutes: 1})
	if len(rep.TopRoutes) != 1 || rep.TopRoutes[0].RouteScheduleID != "r2" {
		t.Fatalf("top routes = %+v", rep.TopRoutes)
	}
}

func TestBuild_CapsDiagnostics(t *testing.T) {
	rep := Build("", sampleResult(), nil, Options{MaxDiagnostics: 1})
	if len(rep.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %v", rep.Diagnostics)
	}
	if !strings.Contains(strings.Join(rep.Warnings, "\n"), "1 more diagnostics not shown") {
		t.Fatalf("warnings = %v", rep.Warnings)
	}
}

func TestMarkdown_Sections(t *testing.T) {
	tests := []pipeline.ComparisonResult{{
		Comparison: pipeline.Comparison{A: trip.ColActualTime, B: trip.ColOSRMTime, Alternative: hypothesis.Greater},
		TTest:      &hypothesis.Result{Kind: hypothesis.TTest, Statistic: 2.5, DF: 4, PValue: 0.03, Decision: hypothesis.Reject},
		KS:         &hypothesis.Result{Kind: hypothesis.KSTest, Statistic: 0.6, PValue: 0.2, Decision: hypothesis.FailToReject},
		Rounds:     []*hypothesis.Result{{Decision: hypothesis.Reject}, {Decision: hypothesis.FailToReject}},
	}}
	md := Build("segments.csv", sampleResult(), tests, DefaultOptions()).Markdown()
	for _, want := range []string{
		"[PIPELINE SUMMARY]",
		"Input: segments.csv",
		"Run: run-1",
		"Trips: 3 (after outlier filter 3)",
		"[TRIP METRICS]",
		"- actual_time: n 3",
		"[TOP ROUTES]",
		"| r2 | Anand TO Surat | 2 |",
		"[HYPOTHESIS TESTS]",
		"- actual_time vs osrm_time (greater)",
		"t-test: t=2.5000 df=4.0 p=0.03 → Reject",
		"ks-test: D=0.6000 p=0.2 → FailToReject",
		"sampled rounds: 1 of 2 reject",
		"[DIAGNOSTICS]",
		"consistency=1",
		"[NOTES]",
		"outlier filter removed 1 trips (1 with missing values)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestMarkdown_EscapesPipes(t *testing.T) {
	res := sampleResult()
	res.Routes = []route.Record{{RouteScheduleID: "a|b", TripCount: 1}}
	md := Build("", res, nil, DefaultOptions()).Markdown()
	if !strings.Contains(md, "| a/b | (unnamed) | 1 |") {
		t.Fatalf("route row not escaped:\n%s", md)
	}
}
