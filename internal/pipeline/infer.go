package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/fraudkit/internal/config"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
	"github.com/YuminosukeSato/fraudkit/pkg/log"
	"github.com/YuminosukeSato/fraudkit/preprocessing"
)

// InferSummary describes the submission written by Infer.
type InferSummary struct {
	Path      string
	Rows      int
	Positives int
	Models    int
	Threshold float64
}

// Infer scores the test CSV with the mean probability of every fold model
// and writes a timestamped submission. It returns ErrNoModels, before
// writing anything, when model_dir holds no fold models.
func Infer(ctx context.Context, cfg *config.Config, deps Deps) (*InferSummary, error) {
	d := deps.withDefaults("pipeline.infer")
	logger := d.Logger.With(log.OperationKey, log.OperationInfer)

	paths, err := ListModels(cfg.Paths.ModelDir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.Wrapf(ErrNoModels, "model_dir %s", cfg.Paths.ModelDir)
	}

	raw, err := readInput("test_csv", cfg.Paths.TestCSV)
	if err != nil {
		return nil, err
	}
	schema, err := loadSchemaIfPresent(filepath.Join(cfg.Paths.ModelDir, preprocessing.SchemaFileName))
	if err != nil {
		return nil, err
	}
	if schema.IsZero() {
		logger.Warn("feature schema not found, column kinds are inferred from the test file",
			log.PathKey, cfg.Paths.ModelDir)
	}
	X := preprocessing.NewFeatureBuilder().TransformWithSchema(raw, schema)

	models, err := loadModels(paths)
	if err != nil {
		return nil, err
	}
	sample, err := readSample(cfg.Paths.SampleCSV)
	if err != nil {
		return nil, err
	}

	score := make([]float64, X.NumRows())
	for i, m := range models {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "inference cancelled")
		}
		proba, err := m.PredictProba(X)
		if err != nil {
			return nil, errors.Wrapf(err, "score with %s", filepath.Base(paths[i]))
		}
		floats.Add(score, proba)
	}
	floats.Scale(1/float64(len(models)), score)

	thr := cfg.Threshold.Default
	pred := make([]int, len(score))
	positives := 0
	for i, p := range score {
		if p >= thr {
			pred[i] = 1
			positives++
		}
	}

	f, path, err := createExclusive(cfg.Paths.SubmissionsDir, submissionBase(thr, d.Now()))
	if err != nil {
		return nil, err
	}
	if err := writeSubmission(f, pred, sample); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrapf(err, "close %s", path)
	}

	sum := &InferSummary{Path: path, Rows: len(pred), Positives: positives, Models: len(models), Threshold: thr}
	logger.Info("submission written",
		log.PhaseKey, log.PhaseInference,
		log.PathKey, path,
		log.PredsKey, sum.Rows,
		log.PositivesKey, positives,
		log.ThresholdKey, thr,
		log.NFoldsKey, sum.Models,
	)
	if d.Metrics != nil {
		d.Metrics.SetInference(sum.Rows, positives, sum.Models)
	}
	fmt.Fprintf(d.Stdout, "Wrote: %s\n", path)
	return sum, nil
}

func loadSchemaIfPresent(path string) (preprocessing.Schema, error) {
	s, err := preprocessing.LoadSchema(path)
	if errors.Is(err, fs.ErrNotExist) {
		return preprocessing.Schema{}, nil
	}
	return s, err
}
