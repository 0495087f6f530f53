package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/tripstat-cli/internal/export"
	"github.com/KaramelBytes/tripstat-cli/internal/parser"
)

// resetFlags puts every flag back to its default so state does not leak
// between invocations of the shared rootCmd.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = fl.Value.Set(fl.DefValue)
		}
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execCmd runs the root command with args and returns its stdout.
func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	rootCmd.SetOut(nil)
	return buf.String(), err
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

// isolate points HOME at a temp dir so no user config is read.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

// writeSegments writes n single-segment trips spread over three routes.
func writeSegments(t *testing.T, dir string, n int) string {
	t.Helper()
	header := append([]string{}, parser.RequiredFields...)
	header = append(header, parser.FieldSourceCode, parser.FieldDestinationCode)
	var b strings.Builder
	b.WriteString(strings.Join(header, ",") + "\n")
	for i := 0; i < n; i++ {
		rt := "Carting"
		if i%2 == 0 {
			rt = "FTL"
		}
		x := float64(i)
		vals := map[string]string{
			parser.FieldTripID:              fmt.Sprintf("trip-%02d", i),
			parser.FieldRouteScheduleID:     fmt.Sprintf("thanos::sroute:%d", i%3),
			parser.FieldRouteType:           rt,
			parser.FieldSourceLabel:         "Anand_VUNagar_DC (Gujarat)",
			parser.FieldDestinationLabel:    "Khambhat_MotvdDPP_D (Gujarat)",
			parser.FieldSourceCode:          "IND388121AAA",
			parser.FieldDestinationCode:     "IND388620AAB",
			parser.FieldTripCreationTime:    "2018-09-20 02:35:36.476840",
			parser.FieldSegmentStartTime:    "2018-09-20 03:00:00",
			parser.FieldSegmentEndTime:      fmt.Sprintf("2018-09-20 05:%02d:00", i),
			parser.FieldStartScanToEndScan:  fmt.Sprint(100 + 7*x),
			parser.FieldActualTime:          fmt.Sprint(50 + 3*x),
			parser.FieldOSRMTime:            fmt.Sprint(30 + 2*x),
			parser.FieldActualDistance:      fmt.Sprint(20 + x),
			parser.FieldOSRMDistance:        fmt.Sprint(25 + 1.5*x),
			parser.FieldSegmentActualTime:   fmt.Sprint(51 + 3*x),
			parser.FieldSegmentOSRMTime:     fmt.Sprint(31 + 2*x),
			parser.FieldSegmentOSRMDistance: fmt.Sprint(26 + 1.5*x + float64(i%3)),
		}
		row := make([]string, len(header))
		for j, h := range header {
			row[j] = vals[h]
		}
		b.WriteString(strings.Join(row, ",") + "\n")
	}
	p := filepath.Join(dir, "segments.csv")
	if err := os.WriteFile(p, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write segments: %v", err)
	}
	return p
}

func TestCLI_Aggregate_WritesTablesReportAndDB(t *testing.T) {
	home := isolate(t)
	in := writeSegments(t, home, 12)
	outDir := filepath.Join(home, "out")
	report := filepath.Join(home, "report.md")
	db := filepath.Join(home, "runs.db")

	out := runCmd(t, "aggregate", in, "--out", outDir, "--report", report, "--sqlite", db)
	if !strings.Contains(out, "✓ Wrote 12 trips") || !strings.Contains(out, "✓ Stored run") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	trips, err := export.ReadTripsFile(filepath.Join(outDir, "trips.csv"))
	if err != nil {
		t.Fatalf("read trips: %v", err)
	}
	if len(trips) != 12 || trips[0].TripID != "trip-00" {
		t.Fatalf("trips = %d, first %q", len(trips), trips[0].TripID)
	}
	routes, err := os.ReadFile(filepath.Join(outDir, "routes.csv"))
	if err != nil {
		t.Fatalf("read routes: %v", err)
	}
	if got := strings.Count(strings.TrimSpace(string(routes)), "\n"); got != 3 {
		t.Fatalf("route rows = %d, want 3", got)
	}
	if _, err := os.Stat(filepath.Join(outDir, "trips_filtered.csv")); err != nil {
		t.Fatalf("filtered table: %v", err)
	}

	md, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	for _, want := range []string{"[PIPELINE SUMMARY]", "[HYPOTHESIS TESTS]", "actual_time vs osrm_time (greater)"} {
		if !strings.Contains(string(md), want) {
			t.Fatalf("report missing %q:\n%s", want, md)
		}
	}

	runs := runCmd(t, "runs", "--sqlite", db)
	if !strings.Contains(runs, "RUN") || !strings.Contains(runs, in) {
		t.Fatalf("runs listing:\n%s", runs)
	}
}

func TestCLI_Aggregate_NoInputs(t *testing.T) {
	home := isolate(t)
	if _, err := execCmd(t, "aggregate", filepath.Join(home, "missing*.csv")); err == nil {
		t.Fatal("expected error for unmatched glob")
	}
}

func TestCLI_Test_OnExportedTrips(t *testing.T) {
	home := isolate(t)
	in := writeSegments(t, home, 12)
	outDir := filepath.Join(home, "out")
	runCmd(t, "aggregate", in, "--out", outDir, "--no-tests")

	trips := filepath.Join(outDir, "trips_filtered.csv")
	out := runCmd(t, "test", trips, "--a", "actual_time", "--b", "osrm_time", "--alternative", "greater")
	if !strings.Contains(out, "actual_time vs osrm_time (greater)") || !strings.Contains(out, "→ Reject") {
		t.Fatalf("test output:\n%s", out)
	}

	out = runCmd(t, "test", trips, "--a", "actual_time", "--b", "osrm_time", "--sample", "8", "--rounds", "3", "--json")
	if !strings.Contains(out, `"Rounds"`) || !strings.Contains(out, `"kind": "t-test"`) {
		t.Fatalf("json output:\n%s", out)
	}

	if _, err := execCmd(t, "test", trips, "--a", "actual_time"); err == nil {
		t.Fatal("expected error when --b is missing")
	}
	if _, err := execCmd(t, "test", trips, "--a", "actual_time", "--b", "speed"); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestCLI_Test_FromStoredRun(t *testing.T) {
	home := isolate(t)
	in := writeSegments(t, home, 10)
	db := filepath.Join(home, "runs.db")
	out := runCmd(t, "aggregate", in, "--out", filepath.Join(home, "out"), "--sqlite", db, "--no-tests")

	var runID string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "✓ Stored run ") {
			runID = strings.Fields(strings.TrimPrefix(line, "✓ Stored run "))[0]
		}
	}
	if runID == "" {
		t.Fatalf("no run id in output:\n%s", out)
	}
	got := runCmd(t, "test", "--sqlite", db, "--run", runID, "--a", "osrm_distance", "--b", "actual_distance", "--alternative", "greater")
	if !strings.Contains(got, "n=10/10") {
		t.Fatalf("stored run test output:\n%s", got)
	}
}

func TestCLI_Encode(t *testing.T) {
	home := isolate(t)
	in := writeSegments(t, home, 6)
	outDir := filepath.Join(home, "out")
	runCmd(t, "aggregate", in, "--out", outDir, "--no-tests")

	matrix := filepath.Join(home, "matrix.csv")
	runCmd(t, "encode", filepath.Join(outDir, "trips.csv"), "--scaler", "minmax", "-o", matrix)
	b, err := os.ReadFile(matrix)
	if err != nil {
		t.Fatalf("read matrix: %v", err)
	}
	header := strings.SplitN(string(b), "\n", 2)[0]
	if !strings.HasPrefix(header, "trip_id,") || !strings.Contains(header, "route_type_FTL") || !strings.Contains(header, "route_type_Carting") {
		t.Fatalf("matrix header = %q", header)
	}

	if _, err := execCmd(t, "encode", filepath.Join(outDir, "trips.csv"), "--scaler", "robust"); err == nil {
		t.Fatal("expected error for unknown scaler")
	}
}

func TestCLI_ConfigInitSetShow(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "tripstat.yaml")

	runCmd(t, "--config", path, "config", "init")
	if _, err := execCmd(t, "--config", path, "config", "init"); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
	runCmd(t, "--config", path, "config", "set", "alpha", "0.01")
	runCmd(t, "--config", path, "config", "set", "outlier_columns", "actual_time, osrm_time")

	out := runCmd(t, "--config", path, "config", "show")
	if !strings.Contains(out, "alpha: 0.01") || !strings.Contains(out, "- osrm_time") {
		t.Fatalf("config show:\n%s", out)
	}
	if _, err := execCmd(t, "--config", path, "config", "set", "alpha", "2"); err == nil {
		t.Fatal("expected validation error for alpha")
	}
	if _, err := execCmd(t, "--config", path, "config", "set", "colour", "blue"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}
