package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

const sampleConfig = `
paths:
  train_csv: data/train.csv
  test_csv: data/test.csv
  sample_csv: data/sample_submission.csv
  model_dir: out/models
  submissions_dir: out/submissions
cv:
  n_splits: 4
  shuffle: false
seed: 7
model:
  params:
    iterations: 100
    learning_rate: 0.05
    depth: 6
    l2_leaf_reg: 3
threshold:
  strategy: positive_quota
  default: 0.4
  positive_quota_grid: [10, 20]
logging:
  level: debug
  format: json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "data/train.csv", cfg.Paths.TrainCSV)
	assert.Equal(t, "out/models", cfg.Paths.ModelDir)
	assert.Equal(t, filepath.Join("out/models", "oof_proba.csv"), cfg.Paths.OOFProbaCSV)
	assert.Equal(t, filepath.Join("out/submissions", "threshold_search_results.csv"), cfg.Paths.ThresholdResultsCSV)
	assert.Equal(t, 4, cfg.CV.NSplits)
	assert.False(t, cfg.CV.Shuffle)
	assert.Equal(t, 1, cfg.CV.NJobs)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, StrategyPositiveQuota, cfg.Threshold.Strategy)
	assert.Equal(t, 0.4, cfg.Threshold.Default)
	assert.Equal(t, []int{10, 20}, cfg.Threshold.PositiveQuotaGrid)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.EqualValues(t, 100, cfg.Model.Params["iterations"])
	assert.EqualValues(t, 0.05, cfg.Model.Params["learning_rate"])
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "paths:\n  train_csv: train.csv\n"))
	require.NoError(t, err)

	assert.Equal(t, "models", cfg.Paths.ModelDir)
	assert.Equal(t, 5, cfg.CV.NSplits)
	assert.True(t, cfg.CV.Shuffle)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, StrategyMaxF1, cfg.Threshold.Strategy)
	assert.Equal(t, 0.5, cfg.Threshold.Default)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Empty(t, cfg.Tracking.DBPath)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FRAUDKIT_CV_N_SPLITS", "3")
	t.Setenv("FRAUDKIT_THRESHOLD_DEFAULT", "0.35")
	t.Setenv("FRAUDKIT_TRACKING_DB_PATH", "runs.db")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.CV.NSplits)
	assert.Equal(t, 0.35, cfg.Threshold.Default)
	assert.Equal(t, "runs.db", cfg.Tracking.DBPath)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"one fold", "cv:\n  n_splits: 1\n", "cv.n_splits"},
		{"unknown strategy", "threshold:\n  strategy: best\n", "threshold.strategy"},
		{"threshold above one", "threshold:\n  default: 1.5\n", "threshold.default"},
		{"quota without grid", "threshold:\n  strategy: positive_quota\n", "threshold.positive_quota_grid"},
		{"non-positive quota", "threshold:\n  strategy: positive_quota\n  positive_quota_grid: [0]\n", "threshold.positive_quota_grid[0]"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
		{"zero jobs", "cv:\n  n_jobs: 0\n", "cv.n_jobs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.ParamName)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
