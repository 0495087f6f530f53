package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/tripstat-cli/internal/features"
	"github.com/KaramelBytes/tripstat-cli/internal/hypothesis"
	"github.com/KaramelBytes/tripstat-cli/internal/normalize"
	"github.com/KaramelBytes/tripstat-cli/internal/outlier"
	"github.com/KaramelBytes/tripstat-cli/internal/parser"
	"github.com/KaramelBytes/tripstat-cli/internal/pipeline"
	"github.com/KaramelBytes/tripstat-cli/internal/segment"
	"github.com/KaramelBytes/tripstat-cli/internal/trip"
)

// Pincode strategies.
const (
	PincodeOffset = "offset"
	PincodeDigits = "digits"
)

// Global configuration structure.
type Global struct {
	// Name tables. Empty lists fall back to the built-in tables.
	StateAliases  []normalize.Alias `mapstructure:"state_aliases" yaml:"state_aliases"`
	CityAliases   []normalize.Alias `mapstructure:"city_aliases" yaml:"city_aliases"`
	HeaderAliases []normalize.Alias `mapstructure:"header_aliases" yaml:"header_aliases"`

	// Aggregation
	CollapseDuplicates bool   `mapstructure:"collapse_duplicates" yaml:"collapse_duplicates"`
	StrictConsistency  bool   `mapstructure:"strict_consistency" yaml:"strict_consistency"`
	PincodeStrategy    string `mapstructure:"pincode_strategy" yaml:"pincode_strategy"`
	PincodeStart       int    `mapstructure:"pincode_start" yaml:"pincode_start"`
	PincodeEnd         int    `mapstructure:"pincode_end" yaml:"pincode_end"`

	// Outlier filter
	OutlierThreshold float64  `mapstructure:"outlier_threshold" yaml:"outlier_threshold"`
	OutlierColumns   []string `mapstructure:"outlier_columns" yaml:"outlier_columns"`

	// Feature encoding
	OneHotColumns []string `mapstructure:"onehot_columns" yaml:"onehot_columns"`
	ScaleColumns  []string `mapstructure:"scale_columns" yaml:"scale_columns"`
	Scaler        string   `mapstructure:"scaler" yaml:"scaler"`

	// Hypothesis tests
	Alpha         float64               `mapstructure:"alpha" yaml:"alpha"`
	EqualVariance bool                  `mapstructure:"equal_variance" yaml:"equal_variance"`
	SampleSize    int                   `mapstructure:"sample_size" yaml:"sample_size"`
	SampleRounds  int                   `mapstructure:"sample_rounds" yaml:"sample_rounds"`
	Seed          uint64                `mapstructure:"seed" yaml:"seed"`
	Comparisons   []pipeline.Comparison `mapstructure:"comparisons" yaml:"comparisons"`

	// SQLitePath, when set, stores every aggregate run.
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// Default returns the built-in configuration.
func Default() *Global {
	c := &Global{
		CollapseDuplicates: true,
		PincodeStrategy:    PincodeOffset,
		PincodeStart:       3,
		PincodeEnd:         9,
		OutlierThreshold:   outlier.DefaultThreshold,
		Scaler:             string(features.Standard),
		Alpha:              hypothesis.DefaultAlpha,
		SampleRounds:       1,
		Seed:               42,
	}
	c.fillLists()
	return c
}

func (c *Global) fillLists() {
	if len(c.StateAliases) == 0 {
		c.StateAliases = normalize.DefaultStateAliases()
	}
	if len(c.CityAliases) == 0 {
		c.CityAliases = normalize.DefaultCityAliases()
	}
	if len(c.HeaderAliases) == 0 {
		c.HeaderAliases = parser.DefaultHeaderAliases()
	}
	if len(c.OutlierColumns) == 0 {
		c.OutlierColumns = append([]string(nil), trip.NumericColumns...)
	}
	enc := features.DefaultEncodeOptions()
	if len(c.OneHotColumns) == 0 {
		c.OneHotColumns = enc.Categorical
	}
	if len(c.ScaleColumns) == 0 {
		c.ScaleColumns = enc.Numeric
	}
	if len(c.Comparisons) == 0 {
		c.Comparisons = pipeline.DefaultComparisons()
	}
}

// Validate rejects values no stage can run with and canonicalizes the
// comparison alternatives.
func (c *Global) Validate() error {
	switch c.PincodeStrategy {
	case PincodeOffset:
		if c.PincodeStart < 0 || c.PincodeEnd <= c.PincodeStart {
			return fmt.Errorf("invalid pincode range [%d, %d)", c.PincodeStart, c.PincodeEnd)
		}
	case PincodeDigits:
	default:
		return fmt.Errorf("invalid pincode_strategy: %s (use offset or digits)", c.PincodeStrategy)
	}
	if c.OutlierThreshold <= 0 {
		return fmt.Errorf("outlier_threshold must be positive, got %v", c.OutlierThreshold)
	}
	if _, err := features.ParseScaler(c.Scaler); err != nil {
		return err
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0, 1), got %v", c.Alpha)
	}
	if c.SampleSize < 0 || c.SampleRounds < 1 {
		return fmt.Errorf("invalid sampling: sample_size %d, sample_rounds %d", c.SampleSize, c.SampleRounds)
	}
	for _, col := range c.OutlierColumns {
		if !trip.IsNumericColumn(col) {
			return fmt.Errorf("outlier_columns: unknown numeric column %q", col)
		}
	}
	for i, cmp := range c.Comparisons {
		if !trip.IsNumericColumn(cmp.A) || !trip.IsNumericColumn(cmp.B) {
			return fmt.Errorf("comparison %s: unknown column", cmp)
		}
		alt, err := hypothesis.ParseAlternative(string(cmp.Alternative))
		if err != nil {
			return fmt.Errorf("comparison %s: %w", cmp, err)
		}
		c.Comparisons[i].Alternative = alt
	}
	return nil
}

// PincodeExtractor builds the configured pincode strategy.
func (c *Global) PincodeExtractor() segment.PincodeExtractor {
	if c.PincodeStrategy == PincodeDigits {
		return segment.DigitsPincode{Length: 6}
	}
	return segment.OffsetPincode{Start: c.PincodeStart, End: c.PincodeEnd}
}

// ParserOptions returns the segment reader options.
func (c *Global) ParserOptions() parser.Options {
	opt := parser.DefaultOptions()
	opt.HeaderAliases = c.HeaderAliases
	return opt
}

// PipelineConfig returns the stage configuration. The logger is left for the caller.
func (c *Global) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Names:   normalize.New(c.StateAliases, c.CityAliases),
		Pincode: c.PincodeExtractor(),
		Trip: trip.Options{
			CollapseDuplicates: c.CollapseDuplicates,
			Strict:             c.StrictConsistency,
		},
		OutlierColumns:   append([]string(nil), c.OutlierColumns...),
		OutlierThreshold: c.OutlierThreshold,
	}
}

// CompareOptions returns the hypothesis test settings.
func (c *Global) CompareOptions() pipeline.CompareOptions {
	return pipeline.CompareOptions{
		Test: hypothesis.Options{
			Alpha:         c.Alpha,
			EqualVariance: c.EqualVariance,
		},
		SampleSize: c.SampleSize,
		Rounds:     c.SampleRounds,
		Seed:       c.Seed,
	}
}

// EncodeOptions returns the feature encoding settings.
func (c *Global) EncodeOptions() features.EncodeOptions {
	scaler, err := features.ParseScaler(c.Scaler)
	if err != nil {
		scaler = features.Standard
	}
	return features.EncodeOptions{
		Categorical: append([]string(nil), c.OneHotColumns...),
		Numeric:     append([]string(nil), c.ScaleColumns...),
		Scaler:      scaler,
	}
}

// DefaultPath returns ~/.tripstat/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".tripstat", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.tripstat/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("TRIPSTAT")
	v.AutomaticEnv()

	// Defaults. Every key needs one for AutomaticEnv to see it.
	d := Default()
	v.SetDefault("collapse_duplicates", d.CollapseDuplicates)
	v.SetDefault("strict_consistency", d.StrictConsistency)
	v.SetDefault("pincode_strategy", d.PincodeStrategy)
	v.SetDefault("pincode_start", d.PincodeStart)
	v.SetDefault("pincode_end", d.PincodeEnd)
	v.SetDefault("outlier_threshold", d.OutlierThreshold)
	v.SetDefault("outlier_columns", []string{})
	v.SetDefault("onehot_columns", []string{})
	v.SetDefault("scale_columns", []string{})
	v.SetDefault("scaler", d.Scaler)
	v.SetDefault("alpha", d.Alpha)
	v.SetDefault("equal_variance", d.EqualVariance)
	v.SetDefault("sample_size", d.SampleSize)
	v.SetDefault("sample_rounds", d.SampleRounds)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("sqlite_path", "")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(p))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine; a broken one is not
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.fillLists()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}
