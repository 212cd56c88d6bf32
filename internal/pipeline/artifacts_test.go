package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fraudkit/core/frame"
	"github.com/YuminosukeSato/fraudkit/metrics"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

func TestThresholdTag(t *testing.T) {
	tests := []struct {
		thr  float64
		want string
	}{
		{0.5, "05"},
		{0.35, "035"},
		{1, "10"},
		{0, "00"},
		{0.125, "0125"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, thresholdTag(tt.thr), "thr %v", tt.thr)
	}

	stamp := time.Date(2025, 12, 31, 23, 59, 1, 0, time.UTC)
	assert.Equal(t, "submission_gbdt_thr05_20251231_235901", submissionBase(0.5, stamp))
}

func TestListModels(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		ModelFileName(10), ModelFileName(2), ModelFileName(1),
		"gbdt_fold.msgpack", "gbdt_fold0.msgpack", "gbdt_foldx.msgpack",
		"catboost_fold1.cbm", "feature_schema.yaml",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, ModelFileName(3)), 0o755))

	paths, err := ListModels(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "gbdt_fold1.msgpack"),
		filepath.Join(dir, "gbdt_fold2.msgpack"),
		filepath.Join(dir, "gbdt_fold10.msgpack"),
	}, paths)

	paths, err = ListModels(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestCreateExclusive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	var names []string
	for i := 0; i < 3; i++ {
		f, path, err := createExclusive(dir, "submission")
		require.NoError(t, err)
		require.NoError(t, f.Close())
		names = append(names, filepath.Base(path))
	}
	assert.Equal(t, []string{"submission.csv", "submission_1.csv", "submission_2.csv"}, names)
}

func TestWriteSubmission(t *testing.T) {
	pred := []int{0, 1, 1}

	tests := []struct {
		name   string
		sample [][]string
		want   string
	}{
		{
			name: "no sample",
			want: "fraud\n0\n1\n1\n",
		},
		{
			name:   "sample without fraud column",
			sample: [][]string{{"id"}, {"a"}, {"b"}, {"c"}},
			want:   "fraud\n0\n1\n1\n",
		},
		{
			name:   "sample with fraud column",
			sample: [][]string{{"id", "fraud"}, {"007", ""}, {"008", "1"}, {"009", "x"}},
			want:   "id,fraud\n007,0\n008,1\n009,1\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeSubmission(&buf, pred, tt.sample))
			assert.Equal(t, tt.want, buf.String())
		})
	}

	t.Run("row mismatch", func(t *testing.T) {
		err := writeSubmission(&bytes.Buffer{}, pred, [][]string{{"fraud"}, {"0"}})
		var dimErr *errors.DimensionError
		require.True(t, errors.As(err, &dimErr))
		assert.Equal(t, 3, dimErr.Expected)
		assert.Equal(t, 1, dimErr.Got)
	})
}

func TestReadSample(t *testing.T) {
	dir := t.TempDir()

	records, err := readSample("")
	require.NoError(t, err)
	assert.Nil(t, records)

	records, err = readSample(filepath.Join(dir, "absent.csv"))
	require.NoError(t, err)
	assert.Nil(t, records)

	path := filepath.Join(dir, "sample.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffid,fraud\n1,0\n"), 0o644))
	records, err = readSample(path)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "fraud"}, {"1", "0"}}, records)
}

func TestSplitLabel(t *testing.T) {
	tests := []struct {
		name    string
		cols    []*frame.Column
		label   string
		wantErr bool
	}{
		{
			name: "fraud column anywhere",
			cols: []*frame.Column{
				frame.NewNumeric("fraud", []float64{0, 1}),
				frame.NewNumeric("x", []float64{3, 4}),
			},
			label: "fraud",
		},
		{
			name: "last column fallback",
			cols: []*frame.Column{
				frame.NewNumeric("x", []float64{3, 4}),
				frame.NewNumeric("target", []float64{1, 0}),
			},
			label: "target",
		},
		{
			name: "categorical label",
			cols: []*frame.Column{
				frame.NewNumeric("x", []float64{3, 4}),
				frame.NewCategorical("fraud", []string{"yes", "no"}, nil),
			},
			wantErr: true,
		},
		{
			name: "non binary label",
			cols: []*frame.Column{
				frame.NewNumeric("x", []float64{3, 4}),
				frame.NewNumeric("fraud", []float64{0, 2}),
			},
			wantErr: true,
		},
		{
			name:    "label only",
			cols:    []*frame.Column{frame.NewNumeric("fraud", []float64{0, 1})},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := frame.MustNew(tt.cols...)
			X, y, err := splitLabel(raw)
			if tt.wantErr {
				var valErr *errors.ValidationError
				assert.True(t, errors.As(err, &valErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"x"}, X.Names())
			want, _ := raw.Numeric(tt.label)
			assert.Equal(t, want, y)
		})
	}
}

func TestWriteOOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "oof.csv")
	require.NoError(t, writeOOF(path, []float64{0.25, 0.75}, []float64{0, 1}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "oof_proba,y\n0.25,0\n0.75,1\n", string(data))
}

func TestWriteThresholdResults(t *testing.T) {
	tests := []struct {
		name   string
		points []metrics.GridPoint
		want   string
	}{
		{
			name:   "header only",
			points: nil,
			want:   "target_pos,thr,macro_f1,n_pos\n",
		},
		{
			name: "sweep rows leave target empty",
			points: []metrics.GridPoint{
				{Threshold: 0.25, MacroF1: 0.5, NPos: 3},
				{Threshold: 0.5, MacroF1: 0.75, NPos: 1},
			},
			want: "target_pos,thr,macro_f1,n_pos\n,0.25,0.5,3\n,0.5,0.75,1\n",
		},
		{
			name:   "quota rows",
			points: []metrics.GridPoint{{TargetPos: 2, Threshold: 0.8, MacroF1: 1, NPos: 2}},
			want:   "target_pos,thr,macro_f1,n_pos\n2,0.8,1,2\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", "results.csv")
			require.NoError(t, writeThresholdResults(path, tt.points))
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}

	t.Run("unwritable path", func(t *testing.T) {
		dir := t.TempDir()
		err := writeThresholdResults(dir, []metrics.GridPoint{{Threshold: 0.5}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), dir)
	})
}
