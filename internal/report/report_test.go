package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fraudkit/metrics"
)

func TestPlotThresholdSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots", "sweep.png")
	grid := []metrics.GridPoint{
		{Threshold: 0.7, MacroF1: 0.6, NPos: 10},
		{Threshold: 0.3, MacroF1: 0.5, NPos: 40},
		{Threshold: 0.5, MacroF1: 0.72, NPos: 20},
	}
	selected := metrics.ThresholdResult{Threshold: 0.5, MacroF1: 0.72, NPos: 20}

	require.NoError(t, PlotThresholdSweep(path, "max_f1", grid, selected))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, len(data) > 8 && string(data[1:4]) == "PNG", "not a png file")

	// the input grid is left in its original order
	assert.Equal(t, 0.7, grid[0].Threshold)
}

func TestPlotThresholdSweepEmptyGrid(t *testing.T) {
	err := PlotThresholdSweep(filepath.Join(t.TempDir(), "x.png"), "max_f1", nil, metrics.ThresholdResult{})
	assert.Error(t, err)
}

func TestMetricsTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveFold(1, 0.61, 0.88, 0.35)
	m.ObserveFold(2, 0.64, 0.9, 0.33)
	m.SetOOF(0.63, 0.89)
	m.SetThreshold("positive_quota", 0.42, 0.7)
	m.SetInference(1000, 57, 5)
	start := time.Unix(1700000000, 0)
	m.ObserveRun("train", start, start.Add(90*time.Second))

	path := filepath.Join(t.TempDir(), "textfile", "fraudkit.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	for _, want := range []string{
		`fraudkit_cv_fold_macro_f1{fold="1"} 0.61`,
		`fraudkit_cv_fold_auc{fold="2"} 0.9`,
		`fraudkit_cv_oof_auc 0.89`,
		`fraudkit_threshold_selected{strategy="positive_quota"} 0.42`,
		`fraudkit_inference_positives 57`,
		`fraudkit_run_duration_seconds{command="train"} 90`,
		`fraudkit_last_run_timestamp_seconds{command="train"} 1.70000009e+09`,
	} {
		assert.True(t, strings.Contains(text, want), "missing %q in\n%s", want, text)
	}

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
