package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/YuminosukeSato/fraudkit/core/frame"
	"github.com/YuminosukeSato/fraudkit/internal/config"
	"github.com/YuminosukeSato/fraudkit/internal/report"
	"github.com/YuminosukeSato/fraudkit/internal/tracking"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
	"github.com/YuminosukeSato/fraudkit/pkg/log"
	"github.com/YuminosukeSato/fraudkit/sklearn/gbdt"
)

// Deps carries the collaborators of a pipeline command. Every field is
// optional.
type Deps struct {
	Logger log.Logger
	// Stdout receives the human-readable progress lines. Defaults to os.Stdout.
	Stdout io.Writer
	// Ledger, when set, receives fold diagnostics and selected thresholds
	// under RunID.
	Ledger  *tracking.Ledger
	Metrics *report.Metrics
	RunID   string
	// Now stamps submission file names. Defaults to time.Now.
	Now func() time.Time
	// OnFold is called after each cross-validation fold.
	OnFold func(FoldResult)
}

func (d Deps) withDefaults(component string) Deps {
	if d.Logger == nil {
		d.Logger = log.GetLoggerWithName(component)
	}
	if d.RunID != "" {
		d.Logger = d.Logger.With(log.RunIDKey, d.RunID)
	}
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// recordFolds stores fold diagnostics in the ledger and metrics registry.
func (d Deps) recordFolds(ctx context.Context, folds []FoldResult) error {
	for _, f := range folds {
		if d.Metrics != nil {
			d.Metrics.ObserveFold(f.Fold, f.MacroF1, f.AUC, f.LogLoss)
		}
		if d.Ledger == nil {
			continue
		}
		err := d.Ledger.RecordFold(ctx, d.RunID, tracking.FoldRecord{
			Fold:          f.Fold,
			TrainSize:     f.TrainSize,
			ValidSize:     f.ValidSize,
			MacroF1:       f.MacroF1,
			AUC:           f.AUC,
			LogLoss:       f.LogLoss,
			BestIteration: f.BestIteration,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (d Deps) recordMetric(ctx context.Context, name string, value float64) error {
	if d.Ledger == nil {
		return nil
	}
	return d.Ledger.RecordMetric(ctx, d.RunID, name, value)
}

// modelParams decodes the learner hyperparameters. The top-level seed
// applies unless the parameters carry their own.
func modelParams(cfg *config.Config) (gbdt.Params, error) {
	m := make(map[string]interface{}, len(cfg.Model.Params)+1)
	for k, v := range cfg.Model.Params {
		m[k] = v
	}
	if !gbdt.HasParam(m, "random_seed") {
		m["random_seed"] = cfg.Seed
	}
	p, err := gbdt.ParamsFromMap(m)
	if err != nil {
		return gbdt.Params{}, errors.Wrap(err, "model.params")
	}
	return p, nil
}

// splitLabel separates the label from the features: the fraud column when
// present, else the last column. Labels must be numeric 0/1.
func splitLabel(raw *frame.Frame) (*frame.Frame, []float64, error) {
	if raw.NumCols() < 2 {
		return nil, nil, errors.NewValidationError("train_csv", "need at least one feature column and a label column", raw.Names())
	}
	name := LabelColumn
	if !raw.Has(name) {
		names := raw.Names()
		name = names[len(names)-1]
	}
	y, ok := raw.Numeric(name)
	if !ok {
		return nil, nil, errors.NewValidationError(name, "label column must be numeric 0/1", "categorical")
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, nil, errors.NewValidationError(name, "label must be 0 or 1", map[string]interface{}{"row": i, "value": v})
		}
	}
	return raw.Drop(name), append([]float64(nil), y...), nil
}

func readInput(key, path string) (*frame.Frame, error) {
	if path == "" {
		return nil, errors.NewValidationError("paths."+key, "required", path)
	}
	f, err := frame.ReadCSVFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return f, nil
}

func cvOptions(cfg *config.Config, d Deps) CVOptions {
	return CVOptions{
		NSplits: cfg.CV.NSplits,
		Shuffle: cfg.CV.Shuffle,
		Seed:    cfg.Seed,
		NJobs:   cfg.CV.NJobs,
		OnFold:  d.OnFold,
		Logger:  d.Logger,
	}
}
