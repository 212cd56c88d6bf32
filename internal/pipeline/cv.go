// Package pipeline wires feature building, cross-validated training,
// fold-ensemble inference and threshold search into the three commands.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/YuminosukeSato/fraudkit/core/frame"
	"github.com/YuminosukeSato/fraudkit/core/model"
	"github.com/YuminosukeSato/fraudkit/core/parallel"
	"github.com/YuminosukeSato/fraudkit/metrics"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
	"github.com/YuminosukeSato/fraudkit/pkg/log"
	"github.com/YuminosukeSato/fraudkit/sklearn/gbdt"
	"github.com/YuminosukeSato/fraudkit/sklearn/model_selection"
)

// CVOptions configures CrossValidate.
type CVOptions struct {
	NSplits int
	Shuffle bool
	Seed    uint64
	// NJobs > 1 trains up to NJobs folds concurrently.
	NJobs int
	// OnFold, when set, is called once per finished fold. Calls are serialized
	// but arrive in completion order when folds run concurrently.
	OnFold func(FoldResult)
	Logger log.Logger
}

// FoldResult holds the diagnostics of one fold. They are reported, never
// used for model selection.
type FoldResult struct {
	Fold          int // 1-based
	TrainSize     int
	ValidSize     int
	MacroF1       float64 // at metrics.DefaultThreshold
	AUC           float64 // NaN when the held-out fold has one class
	LogLoss       float64
	BestIteration int
	Duration      time.Duration
}

// CVResult is the outcome of CrossValidate.
type CVResult struct {
	// OOF holds, for every row, the probability predicted by the fold model
	// that did not see the row.
	OOF    []float64
	Models []*gbdt.Classifier
	Folds  []FoldResult
}

// CrossValidate trains one classifier per stratified fold and assembles the
// out-of-fold probability vector.
func CrossValidate(ctx context.Context, X *frame.Frame, y []float64, opts CVOptions, params gbdt.Params) (*CVResult, error) {
	n := X.NumRows()
	if n == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "CrossValidate")
	}
	if len(y) != n {
		return nil, errors.NewDimensionError("CrossValidate", n, len(y), 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("pipeline.cv")
	}

	folds, err := model_selection.NewStratifiedKFold(opts.NSplits, opts.Shuffle, opts.Seed).Split(y)
	if err != nil {
		return nil, err
	}

	type foldOut struct {
		idx   []int
		proba []float64
		clf   *gbdt.Classifier
		res   FoldResult
	}
	outs := make([]foldOut, len(folds))
	var mu sync.Mutex

	fitFold := func(ctx context.Context, k int) error {
		start := time.Now()
		fold := folds[k]
		trainY := take(y, fold.TrainIndices)
		validX := X.Take(fold.TestIndices)
		validY := take(y, fold.TestIndices)

		clf := gbdt.NewClassifier(params)
		err := clf.Fit(ctx, X.Take(fold.TrainIndices), trainY, &model.EvalSet{X: validX, Y: validY})
		if err != nil {
			return errors.Wrapf(err, "fold %d", k+1)
		}
		proba, err := clf.PredictProba(validX)
		if err != nil {
			return errors.Wrapf(err, "fold %d", k+1)
		}

		res := FoldResult{
			Fold:          k + 1,
			TrainSize:     len(fold.TrainIndices),
			ValidSize:     len(fold.TestIndices),
			BestIteration: clf.BestIteration(),
		}
		if res.MacroF1, err = metrics.MacroF1AtThreshold(validY, proba, metrics.DefaultThreshold); err != nil {
			return errors.Wrapf(err, "fold %d", k+1)
		}
		if res.AUC, err = metrics.AUCScore(validY, proba); err != nil {
			res.AUC = math.NaN()
		}
		if res.LogLoss, err = metrics.LogLoss(validY, proba); err != nil {
			return errors.Wrapf(err, "fold %d", k+1)
		}
		res.Duration = time.Since(start)

		outs[k] = foldOut{idx: fold.TestIndices, proba: proba, clf: clf, res: res}

		logger.Info("fold complete",
			log.FoldKey, res.Fold,
			log.NFoldsKey, len(folds),
			log.SamplesKey, res.TrainSize,
			log.MacroF1Key, res.MacroF1,
			log.AUCKey, res.AUC,
			log.LossKey, res.LogLoss,
			log.BestIterationKey, res.BestIteration,
			log.DurationMsKey, res.Duration.Milliseconds(),
		)
		if opts.OnFold != nil {
			mu.Lock()
			opts.OnFold(res)
			mu.Unlock()
		}
		return nil
	}

	if err := parallel.ForEach(ctx, len(folds), opts.NJobs, fitFold); err != nil {
		return nil, errors.Wrap(err, "cross-validation")
	}

	result := &CVResult{
		OOF:    make([]float64, n),
		Models: make([]*gbdt.Classifier, len(folds)),
		Folds:  make([]FoldResult, len(folds)),
	}
	written := make([]int, n)
	for k, o := range outs {
		for j, i := range o.idx {
			result.OOF[i] = o.proba[j]
			written[i]++
		}
		result.Models[k] = o.clf
		result.Folds[k] = o.res
	}
	for i, c := range written {
		if c != 1 {
			return nil, errors.NewValueError("CrossValidate",
				fmt.Sprintf("out-of-fold coverage broken: row %d written %d times", i, c))
		}
	}
	return result, nil
}

func take(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for j, i := range idx {
		out[j] = v[i]
	}
	return out
}
