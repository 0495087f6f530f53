package cmd

import (
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tripstat-cli/internal/export"
	"github.com/KaramelBytes/tripstat-cli/internal/hypothesis"
	"github.com/KaramelBytes/tripstat-cli/internal/pipeline"
	"github.com/KaramelBytes/tripstat-cli/internal/store"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
	"github.com/KaramelBytes/tripstat-cli/internal/utils"
)

var (
	testColA        string
	testColB        string
	testAlternative string
	testAlpha       float64
	testSample      int
	testRounds      int
	testSeed        uint64
	testEqualVar    bool
	testJSON        bool
	testSQLitePath  string
	testRunID       string
)

var testCmd = &cobra.Command{
	Use:   "test [trips.csv]",
	Short: "Run t-test and KS test on numeric trip columns",
	Long: `Runs a t-test (Welch by default) and a two-sample Kolmogorov-Smirnov test on
two numeric columns of an exported trip table. Without --a/--b every configured
comparison is run. Trips can also be read back from a stored run with
--sqlite and --run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		trips, err := loadTestTrips(cmd, args)
		if err != nil {
			return err
		}

		comps := c.Comparisons
		if testColA != "" || testColB != "" {
			if testColA == "" || testColB == "" {
				return fmt.Errorf("--a and --b must be given together")
			}
			alt, err := hypothesis.ParseAlternative(testAlternative)
			if err != nil {
				return err
			}
			comps = []pipeline.Comparison{{A: testColA, B: testColB, Alternative: alt}}
		}

		opt := c.CompareOptions()
		flags := cmd.Flags()
		if flags.Changed("alpha") {
			opt.Test.Alpha = testAlpha
		}
		if flags.Changed("equal-var") {
			opt.Test.EqualVariance = testEqualVar
		}
		if flags.Changed("sample") {
			opt.SampleSize = testSample
		}
		if flags.Changed("rounds") {
			opt.Rounds = testRounds
		}
		if flags.Changed("seed") {
			opt.Seed = testSeed
		}

		results, err := pipeline.Compare(trips, comps, opt)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"trips": len(trips), "comparisons": len(results)}).Debug("tests done")

		out := cmd.OutOrStdout()
		if testJSON {
			b, err := utils.PrettyJSON(results)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}
		for _, r := range results {
			printComparison(out, r)
		}
		return nil
	},
}

func loadTestTrips(cmd *cobra.Command, args []string) ([]trip.Record, error) {
	if testRunID != "" {
		if testSQLitePath == "" {
			return nil, fmt.Errorf("--run requires --sqlite")
		}
		st, err := store.Open(cmd.Context(), testSQLitePath, log.Log)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return st.LoadTrips(cmd.Context(), testRunID, false)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("a trip table path or --run is required")
	}
	return export.ReadTripsFile(args[0])
}

func printComparison(w io.Writer, r pipeline.ComparisonResult) {
	fmt.Fprintf(w, "%s\n", r.Comparison)
	if t := r.TTest; t != nil {
		fmt.Fprintf(w, "  t-test  t=%.4f df=%.1f p=%.4g n=%d/%d → %s\n", t.Statistic, t.DF, t.PValue, t.NA, t.NB, t.Decision)
	}
	if k := r.KS; k != nil {
		fmt.Fprintf(w, "  ks-test D=%.4f p=%.4g n=%d/%d → %s\n", k.Statistic, k.PValue, k.NA, k.NB, k.Decision)
	}
	if len(r.Rounds) > 1 {
		rejected := 0
		for _, rr := range r.Rounds {
			if rr.Decision == hypothesis.Reject {
				rejected++
			}
		}
		fmt.Fprintf(w, "  rounds  %d of %d reject\n", rejected, len(r.Rounds))
	}
	if r.Err != "" {
		fmt.Fprintf(w, "  ⚠ %s\n", r.Err)
	}
}

func init() {
	rootCmd.AddCommand(testCmd)
	testCmd.Flags().StringVar(&testColA, "a", "", "first numeric column")
	testCmd.Flags().StringVar(&testColB, "b", "", "second numeric column")
	testCmd.Flags().StringVar(&testAlternative, "alternative", "two-sided", "alternative for mean(a) - mean(b): two-sided | less | greater")
	testCmd.Flags().Float64Var(&testAlpha, "alpha", hypothesis.DefaultAlpha, "significance level")
	testCmd.Flags().IntVar(&testSample, "sample", 0, "values drawn per side (0 = full column)")
	testCmd.Flags().IntVar(&testRounds, "rounds", 1, "seeded subsampling rounds for the t-test")
	testCmd.Flags().Uint64Var(&testSeed, "seed", 42, "sampling seed")
	testCmd.Flags().BoolVar(&testEqualVar, "equal-var", false, "use the pooled-variance t-test")
	testCmd.Flags().BoolVar(&testJSON, "json", false, "print results as JSON")
	testCmd.Flags().StringVar(&testSQLitePath, "sqlite", "", "SQLite database holding stored runs")
	testCmd.Flags().StringVar(&testRunID, "run", "", "stored run id to read trips from")
}
