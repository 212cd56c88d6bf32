package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/YuminosukeSato/fraudkit/internal/config"
	"github.com/YuminosukeSato/fraudkit/metrics"
	"github.com/YuminosukeSato/fraudkit/pkg/log"
	"github.com/YuminosukeSato/fraudkit/preprocessing"
)

// TrainSummary describes the artifacts written by Train.
type TrainSummary struct {
	ModelPaths []string
	SchemaPath string
	OOFPath    string
	Folds      []FoldResult
	OOFMacroF1 float64 // at metrics.DefaultThreshold
	OOFAUC     float64
	Rows       int
	Positives  int
}

// Train reads the training CSV, builds features, cross-validates the learner
// and persists every fold model, the feature schema and the OOF vector.
func Train(ctx context.Context, cfg *config.Config, deps Deps) (*TrainSummary, error) {
	d := deps.withDefaults("pipeline.train")
	logger := d.Logger.With(log.OperationKey, log.OperationTrain)

	params, err := modelParams(cfg)
	if err != nil {
		return nil, err
	}
	raw, err := readInput("train_csv", cfg.Paths.TrainCSV)
	if err != nil {
		return nil, err
	}
	X, y, err := splitLabel(raw)
	if err != nil {
		return nil, err
	}

	fb := preprocessing.NewFeatureBuilder().WithRunID(d.RunID)
	features, schema := fb.FitTransform(X)

	positives := countPositives(y)
	logger.Info("training started",
		log.PhaseKey, log.PhasePreprocessing,
		log.SamplesKey, features.NumRows(),
		log.FeaturesKey, features.NumCols(),
		log.PositivesKey, positives,
		log.NFoldsKey, cfg.CV.NSplits,
		log.LearningRateKey, params.LearningRate,
		log.HyperParamsKey, cfg.Model.Params,
		log.RandomSeedKey, params.Seed,
	)

	opts := cvOptions(cfg, d)
	opts.OnFold = func(f FoldResult) {
		fmt.Fprintf(d.Stdout, "[fold %d] macro F1@%.2f = %.4f\n", f.Fold, metrics.DefaultThreshold, f.MacroF1)
		if d.OnFold != nil {
			d.OnFold(f)
		}
	}
	cv, err := CrossValidate(ctx, features, y, opts, params)
	if err != nil {
		return nil, err
	}

	saved, removed, err := saveModels(cfg.Paths.ModelDir, cv.Models)
	if err != nil {
		return nil, err
	}
	for _, path := range removed {
		logger.Info("removed stale fold model", log.PathKey, path)
	}

	schemaPath := filepath.Join(cfg.Paths.ModelDir, preprocessing.SchemaFileName)
	if err := preprocessing.SaveSchema(schemaPath, schema); err != nil {
		return nil, err
	}
	if err := writeOOF(cfg.Paths.OOFProbaCSV, cv.OOF, y); err != nil {
		return nil, err
	}

	sum := &TrainSummary{
		ModelPaths: saved,
		SchemaPath: schemaPath,
		OOFPath:    cfg.Paths.OOFProbaCSV,
		Folds:      cv.Folds,
		Rows:       len(y),
		Positives:  positives,
	}
	if sum.OOFMacroF1, err = metrics.MacroF1AtThreshold(y, cv.OOF, metrics.DefaultThreshold); err != nil {
		return nil, err
	}
	if sum.OOFAUC, err = metrics.AUCScore(y, cv.OOF); err != nil {
		sum.OOFAUC = math.NaN()
	}
	logger.Info("out-of-fold scores",
		log.PhaseKey, log.PhaseValidation,
		log.MacroF1Key, sum.OOFMacroF1,
		log.AUCKey, sum.OOFAUC,
		log.PathKey, sum.OOFPath,
	)

	if err := d.recordFolds(ctx, cv.Folds); err != nil {
		return nil, err
	}
	if err := d.recordMetric(ctx, "oof_macro_f1", sum.OOFMacroF1); err != nil {
		return nil, err
	}
	if err := d.recordMetric(ctx, "oof_auc", sum.OOFAUC); err != nil {
		return nil, err
	}
	if d.Metrics != nil {
		d.Metrics.SetOOF(sum.OOFMacroF1, sum.OOFAUC)
	}

	fmt.Fprintln(d.Stdout, "Training complete. Models & OOF saved.")
	return sum, nil
}

func countPositives(y []float64) int {
	n := 0
	for _, v := range y {
		if v == 1 {
			n++
		}
	}
	return n
}
