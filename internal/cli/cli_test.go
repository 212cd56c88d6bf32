package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fraudkit/internal/config"
	"github.com/YuminosukeSato/fraudkit/internal/pipeline"
	"github.com/YuminosukeSato/fraudkit/internal/tracking"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
	"github.com/YuminosukeSato/fraudkit/pkg/log"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	body := fmt.Sprintf(`
paths:
  model_dir: %[1]s/models
  submissions_dir: %[1]s/submissions
logging:
  level: warn
  format: json
tracking:
  db_path: %[1]s/state/runs.db
metrics:
  textfile: %[1]s/metrics/fraudkit.prom
`, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func isolateLogging(t *testing.T) {
	t.Helper()
	restore := log.SetProvider(log.NewSlogProvider(io.Discard, log.LevelError))
	t.Cleanup(func() {
		restore()
		errors.SetWarningHandler(func(error) {})
	})
}

func TestRootCommandRecordsRun(t *testing.T) {
	isolateLogging(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	var got *config.Config
	var runID string
	cmd := NewRootCommand(Command{
		Name: "train",
		Run: func(ctx context.Context, cfg *config.Config, deps pipeline.Deps) error {
			got = cfg
			runID = deps.RunID
			require.NotNil(t, deps.Ledger)
			require.NotNil(t, deps.Metrics)
			deps.Metrics.SetOOF(0.8, 0.9)
			fmt.Fprintln(deps.Stdout, "done")
			return nil
		},
	})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--config", cfgPath})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	require.NotNil(t, got)
	assert.Equal(t, filepath.Join(dir, "models"), got.Paths.ModelDir)
	assert.Equal(t, "done\n", out.String())

	ledger, err := tracking.Open(context.Background(), filepath.Join(dir, "state", "runs.db"))
	require.NoError(t, err)
	defer ledger.Close()
	runs, err := ledger.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, "train", runs[0].Command)
	assert.Equal(t, cfgPath, runs[0].ConfigPath)
	assert.Equal(t, tracking.StatusSucceeded, runs[0].Status)

	prom, err := os.ReadFile(filepath.Join(dir, "metrics", "fraudkit.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "fraudkit_cv_oof_auc 0.9")
	assert.Contains(t, string(prom), `fraudkit_run_duration_seconds{command="train"}`)
}

func TestRootCommandFailure(t *testing.T) {
	isolateLogging(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	cmd := NewRootCommand(Command{
		Name: "infer",
		Run: func(context.Context, *config.Config, pipeline.Deps) error {
			return pipeline.ErrNoModels
		},
	})
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"--config", cfgPath})
	err := cmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, pipeline.ErrNoModels)

	ledger, err := tracking.Open(context.Background(), filepath.Join(dir, "state", "runs.db"))
	require.NoError(t, err)
	defer ledger.Close()
	runs, err := ledger.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, tracking.StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "no models found")
}

func TestRootCommandRejectsBadInvocation(t *testing.T) {
	isolateLogging(t)
	called := false
	run := func(context.Context, *config.Config, pipeline.Deps) error {
		called = true
		return nil
	}

	tests := []struct {
		name string
		args []string
	}{
		{"missing config file", []string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}},
		{"positional argument", []string{"extra"}},
		{"unknown flag", []string{"--seed", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCommand(Command{Name: "train", Run: run})
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tt.args)
			assert.Error(t, cmd.ExecuteContext(context.Background()))
		})
	}
	assert.False(t, called)
}

func TestConfigFlagDefault(t *testing.T) {
	cmd := NewRootCommand(Command{Name: "train"})
	flag := cmd.Flags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, DefaultConfigPath, flag.DefValue)
	n := 0
	cmd.Flags().VisitAll(func(*pflag.Flag) { n++ })
	assert.Equal(t, 1, n)
}
