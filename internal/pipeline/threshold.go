package pipeline

import (
	"context"
	"fmt"

	"github.com/YuminosukeSato/fraudkit/internal/config"
	"github.com/YuminosukeSato/fraudkit/internal/report"
	"github.com/YuminosukeSato/fraudkit/internal/tracking"
	"github.com/YuminosukeSato/fraudkit/metrics"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
	"github.com/YuminosukeSato/fraudkit/pkg/log"
	"github.com/YuminosukeSato/fraudkit/preprocessing"
)

// ThresholdSummary is the outcome of ThresholdSearch.
type ThresholdSummary struct {
	Strategy string
	Selected metrics.ThresholdResult
	// Grid holds the rows written to the results CSV and the ledger.
	Grid []metrics.GridPoint
	// Sweep holds every evaluated candidate: one per unique probability for
	// max_f1, one per quota for positive_quota. Both strategies write it in
	// full, so it equals Grid.
	Sweep       []metrics.GridPoint
	ResultsPath string
	PlotPath    string
	Folds       []FoldResult
	// OOF is the re-derived out-of-fold probability vector.
	OOF []float64
}

// ThresholdSearch re-derives the out-of-fold probabilities by running the
// same cross-validation as Train and selects a decision threshold with the
// configured strategy.
func ThresholdSearch(ctx context.Context, cfg *config.Config, deps Deps) (*ThresholdSummary, error) {
	d := deps.withDefaults("pipeline.threshold")
	logger := d.Logger.With(log.OperationKey, log.OperationThresholdSearch, log.StrategyKey, cfg.Threshold.Strategy)

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
	features := preprocessing.NewFeatureBuilder().Transform(X)

	cv, err := CrossValidate(ctx, features, y, cvOptions(cfg, d), params)
	if err != nil {
		return nil, err
	}

	sum := &ThresholdSummary{Strategy: cfg.Threshold.Strategy, ResultsPath: cfg.Paths.ThresholdResultsCSV, Folds: cv.Folds, OOF: cv.OOF}
	switch cfg.Threshold.Strategy {
	case config.StrategyMaxF1:
		sum.Selected, sum.Sweep, err = metrics.MaxF1Threshold(y, cv.OOF, metrics.DefaultThreshold)
		if err != nil {
			return nil, err
		}
		sum.Grid = sum.Sweep
	case config.StrategyPositiveQuota:
		sum.Selected, sum.Grid, err = metrics.QuotaSearch(y, cv.OOF, cfg.Threshold.PositiveQuotaGrid)
		if err != nil {
			return nil, err
		}
		sum.Sweep = sum.Grid
		for _, p := range sum.Grid {
			logger.Debug("quota evaluated",
				log.TargetPositivesKey, p.TargetPos,
				log.ThresholdKey, p.Threshold,
				log.MacroF1Key, p.MacroF1,
				log.PredsKey, p.NPos,
			)
		}
	default:
		return nil, errors.NewValidationError("threshold.strategy", "must be max_f1 or positive_quota", cfg.Threshold.Strategy)
	}

	if err := writeThresholdResults(sum.ResultsPath, sum.Grid); err != nil {
		return nil, err
	}
	fmt.Fprintf(d.Stdout, "Saved grid to %s\n", sum.ResultsPath)

	if path := cfg.Paths.ThresholdPlotPNG; path != "" {
		if err := report.PlotThresholdSweep(path, sum.Strategy, sum.Sweep, sum.Selected); err != nil {
			return nil, err
		}
		sum.PlotPath = path
	}

	logger.Info("threshold selected",
		log.ThresholdKey, sum.Selected.Threshold,
		log.MacroF1Key, sum.Selected.MacroF1,
		log.PredsKey, sum.Selected.NPos,
		log.PathKey, sum.ResultsPath,
	)

	if err := d.recordFolds(ctx, cv.Folds); err != nil {
		return nil, err
	}
	if d.Ledger != nil {
		recs := make([]tracking.ThresholdRecord, len(sum.Grid))
		marked := false
		for i, p := range sum.Grid {
			selected := !marked && p.Threshold == sum.Selected.Threshold && p.MacroF1 == sum.Selected.MacroF1
			marked = marked || selected
			recs[i] = tracking.ThresholdRecord{
				TargetPos: p.TargetPos,
				Threshold: p.Threshold,
				MacroF1:   p.MacroF1,
				NPos:      p.NPos,
				Selected:  selected,
			}
		}
		if err := d.Ledger.RecordThresholds(ctx, d.RunID, recs); err != nil {
			return nil, err
		}
	}
	if d.Metrics != nil {
		d.Metrics.SetThreshold(sum.Strategy, sum.Selected.Threshold, sum.Selected.MacroF1)
	}

	fmt.Fprintf(d.Stdout, "Selected thr: %s\n", formatFloat(sum.Selected.Threshold))
	return sum, nil
}
