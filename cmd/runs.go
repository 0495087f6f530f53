package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tripstat-cli/internal/store"
)

var runsSQLitePath string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List aggregate runs stored in a SQLite database",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		path := c.SQLitePath
		if cmd.Flags().Changed("sqlite") {
			path = runsSQLitePath
		}
		if path == "" {
			return fmt.Errorf("no database: pass --sqlite or set sqlite_path")
		}
		st, err := store.Open(cmd.Context(), path, log.Log)
		if err != nil {
			return err
		}
		defer st.Close()
		runs, err := st.Runs(cmd.Context())
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs stored")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tSEGMENTS\tTRIPS\tROUTES\tFILTERED\tINPUT")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				r.ID, r.StartedAt.Local().Format(time.DateTime), r.Segments, r.Trips, r.Routes, r.Filtered, r.Input)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().StringVar(&runsSQLitePath, "sqlite", "", "SQLite database (overrides sqlite_path)")
}
