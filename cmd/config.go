package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "github.com/KaramelBytes/tripstat-cli/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set tripstat configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		b, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(b))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the built-in configuration to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			p, err := cfgpkg.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}
		if err := cfgpkg.Save(cfgpkg.Default(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote config to %s\n", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		// A broken file can still be repaired key by key.
		c := cfg
		if c == nil || cfgErr != nil {
			c = cfgpkg.Default()
		}
		if err := setKey(c, key, val); err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		cfg, cfgErr = c, nil
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setKey(c *cfgpkg.Global, key, val string) error {
	var err error
	switch key {
	case "collapse_duplicates":
		c.CollapseDuplicates, err = strconv.ParseBool(val)
	case "strict_consistency":
		c.StrictConsistency, err = strconv.ParseBool(val)
	case "equal_variance":
		c.EqualVariance, err = strconv.ParseBool(val)
	case "pincode_strategy":
		c.PincodeStrategy = strings.ToLower(val)
	case "pincode_start":
		c.PincodeStart, err = strconv.Atoi(val)
	case "pincode_end":
		c.PincodeEnd, err = strconv.Atoi(val)
	case "outlier_threshold":
		c.OutlierThreshold, err = strconv.ParseFloat(val, 64)
	case "outlier_columns":
		c.OutlierColumns = splitList(val)
	case "onehot_columns":
		c.OneHotColumns = splitList(val)
	case "scale_columns":
		c.ScaleColumns = splitList(val)
	case "scaler":
		c.Scaler = strings.ToLower(val)
	case "alpha":
		c.Alpha, err = strconv.ParseFloat(val, 64)
	case "sample_size":
		c.SampleSize, err = strconv.Atoi(val)
	case "sample_rounds":
		c.SampleRounds, err = strconv.Atoi(val)
	case "seed":
		c.Seed, err = strconv.ParseUint(val, 10, 64)
	case "sqlite_path":
		c.SQLitePath = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")
}
