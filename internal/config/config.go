// Package config loads the YAML configuration shared by the train, infer and
// threshold-search commands.
package config

import (
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// EnvPrefix prefixes environment overrides: FRAUDKIT_CV_N_SPLITS overrides cv.n_splits.
const EnvPrefix = "FRAUDKIT"

// Threshold strategies.
const (
	StrategyMaxF1         = "max_f1"
	StrategyPositiveQuota = "positive_quota"
)

// Config is the decoded configuration document.
type Config struct {
	Paths     Paths     `mapstructure:"paths"`
	CV        CV        `mapstructure:"cv"`
	Seed      uint64    `mapstructure:"seed"`
	Model     Model     `mapstructure:"model"`
	Threshold Threshold `mapstructure:"threshold"`
	Logging   Logging   `mapstructure:"logging"`
	Tracking  Tracking  `mapstructure:"tracking"`
	Metrics   Metrics   `mapstructure:"metrics"`
}

// Paths lists every file the pipeline reads or writes.
type Paths struct {
	TrainCSV            string `mapstructure:"train_csv"`
	TestCSV             string `mapstructure:"test_csv"`
	SampleCSV           string `mapstructure:"sample_csv"`
	ModelDir            string `mapstructure:"model_dir" validate:"required"`
	SubmissionsDir      string `mapstructure:"submissions_dir" validate:"required"`
	OOFProbaCSV         string `mapstructure:"oof_proba_csv"`
	ThresholdResultsCSV string `mapstructure:"threshold_results_csv"`
	ThresholdPlotPNG    string `mapstructure:"threshold_plot_png"`
}

// CV configures stratified k-fold cross-validation.
type CV struct {
	NSplits int  `mapstructure:"n_splits" validate:"gte=2"`
	Shuffle bool `mapstructure:"shuffle"`
	// NJobs > 1 trains folds concurrently.
	NJobs int `mapstructure:"n_jobs" validate:"gte=1"`
}

// Model holds the learner hyperparameters. They are passed through to
// gbdt.ParamsFromMap unchanged.
type Model struct {
	Params map[string]interface{} `mapstructure:"params"`
}

// Threshold configures decision threshold selection and inference.
type Threshold struct {
	Strategy          string  `mapstructure:"strategy" validate:"oneof=max_f1 positive_quota"`
	Default           float64 `mapstructure:"default" validate:"gte=0,lte=1"`
	PositiveQuotaGrid []int   `mapstructure:"positive_quota_grid" validate:"dive,gte=1"`
}

// Logging selects the log backend.
type Logging struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// Tracking enables the SQLite run ledger when DBPath is set.
type Tracking struct {
	DBPath string `mapstructure:"db_path"`
}

// Metrics enables the Prometheus textfile export when Textfile is set.
type Metrics struct {
	Textfile string `mapstructure:"textfile"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Report mapstructure names so errors match the YAML keys.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// defaults are registered on every loader so AutomaticEnv can see the keys.
var defaults = map[string]interface{}{
	"paths.train_csv":               "",
	"paths.test_csv":                "",
	"paths.sample_csv":              "",
	"paths.model_dir":               "models",
	"paths.submissions_dir":         "submissions",
	"paths.oof_proba_csv":           "",
	"paths.threshold_results_csv":   "",
	"paths.threshold_plot_png":      "",
	"cv.n_splits":                   5,
	"cv.shuffle":                    true,
	"cv.n_jobs":                     1,
	"seed":                          42,
	"threshold.strategy":            StrategyMaxF1,
	"threshold.default":             0.5,
	"threshold.positive_quota_grid": []int{},
	"logging.level":                 "info",
	"logging.format":                "console",
	"tracking.db_path":              "",
	"metrics.textfile":              "",
}

// Load reads the YAML file at path, applies FRAUDKIT_* environment overrides
// and defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}
	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return &cfg, nil
}

// applyDerivedDefaults fills paths that default relative to other paths.
func (c *Config) applyDerivedDefaults() {
	if c.Paths.OOFProbaCSV == "" {
		c.Paths.OOFProbaCSV = filepath.Join(c.Paths.ModelDir, "oof_proba.csv")
	}
	if c.Paths.ThresholdResultsCSV == "" {
		c.Paths.ThresholdResultsCSV = filepath.Join(c.Paths.SubmissionsDir, "threshold_search_results.csv")
	}
}

// Validate checks the struct tags and returns the first violation as a
// ValidationError.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if c.Threshold.Strategy == StrategyPositiveQuota && len(c.Threshold.PositiveQuotaGrid) == 0 {
			return errors.NewValidationError("threshold.positive_quota_grid",
				"must not be empty with strategy positive_quota", c.Threshold.PositiveQuotaGrid)
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		reason := "must satisfy " + fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return errors.NewValidationError(field, reason, fe.Value())
	}
	return errors.Wrap(err, "validate config")
}
