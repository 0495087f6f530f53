package cmd

import (
	"fmt"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/tripstat-cli/internal/export"
	"github.com/KaramelBytes/tripstat-cli/internal/features"
)

var (
	encScaler  string
	encOneHot  []string
	encColumns []string
	encOutPath string
)

var encodeCmd = &cobra.Command{
	Use:   "encode <trips.csv>",
	Short: "One-hot encode and scale a trip table into a feature matrix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		trips, err := export.ReadTripsFile(args[0])
		if err != nil {
			return err
		}

		opt := c.EncodeOptions()
		flags := cmd.Flags()
		if flags.Changed("scaler") {
			if opt.Scaler, err = features.ParseScaler(encScaler); err != nil {
				return err
			}
		}
		if flags.Changed("onehot") {
			opt.Categorical = encOneHot
		}
		if flags.Changed("columns") {
			opt.Numeric = encColumns
		}

		m, err := features.Encode(trips, opt)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"rows": len(m.Rows), "columns": len(m.Columns), "scaler": opt.Scaler}).Info("matrix encoded")

		if encOutPath == "" || encOutPath == "-" {
			return export.WriteMatrix(cmd.OutOrStdout(), m)
		}
		if err := export.SaveMatrix(encOutPath, m); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d x %d matrix to %s\n", len(m.Rows), len(m.Columns), encOutPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().StringVar(&encScaler, "scaler", "standard", "numeric scaler: standard | minmax | none")
	encodeCmd.Flags().StringSliceVar(&encOneHot, "onehot", nil, "categorical columns to one-hot (default route_type,location_category)")
	encodeCmd.Flags().StringSliceVar(&encColumns, "columns", nil, "numeric columns to scale (default all)")
	encodeCmd.Flags().StringVarP(&encOutPath, "out", "o", "", "matrix CSV path (default stdout)")
}
