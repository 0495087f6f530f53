package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tripstat-cli/internal/analysis"
	"github.com/KaramelBytes/tripstat-cli/internal/export"
	"github.com/KaramelBytes/tripstat-cli/internal/parser"
	"github.com/KaramelBytes/tripstat-cli/internal/pipeline"
	"github.com/KaramelBytes/tripstat-cli/internal/segment"
	"github.com/KaramelBytes/tripstat-cli/internal/store"
	"github.com/KaramelBytes/tripstat-cli/internal/utils"
)

var (
	aggOutDir         string
	aggReportPath     string
	aggSQLitePath     string
	aggDelimiter      string
	aggMaxRows        int
	aggThreshold      float64
	aggOutlierColumns []string
	aggSumAll         bool
	aggStrict         bool
	aggNoTests        bool
	aggTopRoutes      int
	aggSheetName      string
	aggSheetIndex     int
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <files...>",
	Short: "Aggregate segment CSVs into trip and route tables",
	Long: `Reads one or more segment CSV/TSV/XLSX files (globs allowed), builds the trip and
route tables, applies the z-score outlier filter, and writes trips.csv,
routes.csv and trips_filtered.csv into the output directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		files, err := expandInputs(args)
		if err != nil {
			return err
		}

		popt := c.ParserOptions()
		if aggMaxRows > 0 {
			popt.MaxRows = aggMaxRows
		}
		if popt.Delimiter, err = parseDelimiter(aggDelimiter); err != nil {
			return err
		}
		popt.Sheet, popt.SheetIndex = aggSheetName, aggSheetIndex

		var records []segment.Record
		for _, f := range files {
			recs, err := parser.ReadSegmentsFile(f, popt)
			if err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			log.WithFields(log.Fields{"file": f, "rows": len(recs)}).Info("segments read")
			records = append(records, recs...)
		}

		pcfg := c.PipelineConfig()
		flags := cmd.Flags()
		if flags.Changed("threshold") {
			pcfg.OutlierThreshold = aggThreshold
		}
		if flags.Changed("outlier-columns") {
			pcfg.OutlierColumns = aggOutlierColumns
		}
		if flags.Changed("sum-all") {
			pcfg.Trip.CollapseDuplicates = !aggSumAll
		}
		if flags.Changed("strict") {
			pcfg.Trip.Strict = aggStrict
		}
		pcfg.Logger = log.WithField("cmd", "aggregate")

		res, err := pipeline.Run(records, pcfg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		tripsPath := filepath.Join(aggOutDir, "trips.csv")
		routesPath := filepath.Join(aggOutDir, "routes.csv")
		filteredPath := filepath.Join(aggOutDir, "trips_filtered.csv")
		if err := export.SaveTrips(tripsPath, res.Trips); err != nil {
			return err
		}
		if err := export.SaveRoutes(routesPath, res.Routes); err != nil {
			return err
		}
		if err := export.SaveTrips(filteredPath, res.Filtered); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote %d trips to %s\n", len(res.Trips), tripsPath)
		fmt.Fprintf(out, "✓ Wrote %d routes to %s\n", len(res.Routes), routesPath)
		fmt.Fprintf(out, "✓ Wrote %d filtered trips to %s\n", len(res.Filtered), filteredPath)

		var tests []pipeline.ComparisonResult
		if !aggNoTests {
			if tests, err = pipeline.Compare(res.Filtered, c.Comparisons, c.CompareOptions()); err != nil {
				return err
			}
		}

		input := strings.Join(files, ", ")
		if aggReportPath != "" {
			opt := analysis.DefaultOptions()
			if aggTopRoutes > 0 {
				opt.TopRoutes = aggTopRoutes
			}
			md := analysis.Build(input, res, tests, opt).Markdown()
			if aggReportPath == "-" {
				fmt.Fprintln(out, md)
			} else {
				if err := utils.SafeWriteFile(aggReportPath, []byte(md)); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(out, "✓ Wrote report to %s\n", aggReportPath)
			}
		}

		dbPath := c.SQLitePath
		if flags.Changed("sqlite") {
			dbPath = aggSQLitePath
		}
		if dbPath != "" {
			st, err := store.Open(cmd.Context(), dbPath, log.Log)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.SaveRun(cmd.Context(), input, res, tests); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Stored run %s in %s\n", res.RunID, dbPath)
		}

		if n := len(res.Diagnostics); n > 0 {
			fmt.Fprintf(out, "⚠ %d diagnostics: %s\n", n, res.Diagnostics.Summary())
		}
		return nil
	},
}

// expandInputs resolves globs, keeps literal paths that exist, and returns a
// sorted de-duplicated list.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case "\t", "tab":
		return '\t', nil
	case ";":
		return ';', nil
	}
	return 0, fmt.Errorf("unsupported --delimiter: %s", s)
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	aggregateCmd.Flags().StringVarP(&aggOutDir, "out", "o", "out", "directory for trips.csv, routes.csv and trips_filtered.csv")
	aggregateCmd.Flags().StringVar(&aggReportPath, "report", "", "write a Markdown report to this path ('-' for stdout)")
	aggregateCmd.Flags().StringVar(&aggSQLitePath, "sqlite", "", "store the run in this SQLite database (overrides sqlite_path)")
	aggregateCmd.Flags().StringVar(&aggDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (default by extension)")
	aggregateCmd.Flags().IntVar(&aggMaxRows, "max-rows", 0, "maximum rows to read per file (0 = unlimited)")
	aggregateCmd.Flags().Float64Var(&aggThreshold, "threshold", 3.0, "|z| at or above which a trip is an outlier")
	aggregateCmd.Flags().StringSliceVar(&aggOutlierColumns, "outlier-columns", nil, "numeric columns checked by the outlier filter")
	aggregateCmd.Flags().BoolVar(&aggSumAll, "sum-all", false, "sum every segment reading of time_taken_od and start_scan_to_end_scan")
	aggregateCmd.Flags().BoolVar(&aggStrict, "strict", false, "fail on conflicting route types or schedules within a trip")
	aggregateCmd.Flags().BoolVar(&aggNoTests, "no-tests", false, "skip the hypothesis tests")
	aggregateCmd.Flags().IntVar(&aggTopRoutes, "top-routes", 0, "routes listed in the report (0 = default)")
	aggregateCmd.Flags().StringVar(&aggSheetName, "sheet-name", "", "XLSX: sheet name to read")
	aggregateCmd.Flags().IntVar(&aggSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}
