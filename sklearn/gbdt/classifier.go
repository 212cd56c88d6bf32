package gbdt

import (
	"context"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fraudkit/core/frame"
	"github.com/YuminosukeSato/fraudkit/core/model"
	"github.com/YuminosukeSato/fraudkit/core/parallel"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
	"github.com/YuminosukeSato/fraudkit/pkg/log"
)

const (
	modelName = "GBDTClassifier"

	// FormatName and FormatVersion identify persisted classifiers.
	FormatName    = "fraudkit.gbdt"
	FormatVersion = 1

	// predictChunk is the row count below which scoring stays on one goroutine.
	predictChunk = 1000
)

// Classifier is a binary gradient-boosted tree classifier with native
// categorical features. It is immutable once fitted. The zero value is an
// unfitted classifier with zero Params, ready for model.LoadModel.
type Classifier struct {
	state model.StateManager

	params        Params
	encoder       *Encoder
	trees         []*Tree
	initScore     float64
	bestIteration int
}

var (
	_ model.ProbabilisticClassifier = (*Classifier)(nil)
	_ model.Versioned               = (*Classifier)(nil)
)

// NewClassifier creates an unfitted classifier.
func NewClassifier(params Params) *Classifier {
	return &Classifier{params: params}
}

// Params returns the hyperparameters.
func (c *Classifier) Params() Params { return c.params }

// Fit trains the classifier on X with 0/1 labels y. When eval is non-nil its
// log-loss is tracked every round: training stops after
// EarlyStoppingRounds rounds without improvement, and with UseBestModel the
// ensemble is cut back to the best round.
func (c *Classifier) Fit(ctx context.Context, X *frame.Frame, y []float64, eval *model.EvalSet) (err error) {
	defer errors.Recover(&err, "GBDTClassifier.Fit")

	if err := c.params.Validate(); err != nil {
		return err
	}
	if X.NumRows() == 0 {
		return errors.Wrap(errors.ErrEmptyData, "GBDTClassifier.Fit")
	}
	if X.NumCols() == 0 {
		return errors.NewValueError("GBDTClassifier.Fit", "X has no feature columns")
	}
	if X.NumRows() != len(y) {
		return errors.NewDimensionError("GBDTClassifier.Fit", X.NumRows(), len(y), 0)
	}
	if err := checkLabels("y", y); err != nil {
		return err
	}

	enc := fitEncoder(X)
	design, err := enc.Encode(X)
	if err != nil {
		return err
	}

	trainer := NewTrainer(c.params, enc.Features, design, y)
	if eval != nil {
		if eval.X == nil || eval.X.NumRows() == 0 {
			return errors.Wrap(errors.ErrEmptyData, "GBDTClassifier.Fit: eval set")
		}
		if eval.X.NumRows() != len(eval.Y) {
			return errors.NewDimensionError("GBDTClassifier.Fit", eval.X.NumRows(), len(eval.Y), 0)
		}
		if err := checkLabels("eval.y", eval.Y); err != nil {
			return err
		}
		evalDesign, err := enc.Encode(eval.X)
		if err != nil {
			return err
		}
		trainer.WithEvalSet(evalDesign, eval.Y)
	}

	if err := trainer.Fit(ctx); err != nil {
		return err
	}

	c.encoder = enc
	c.trees = trainer.trees
	c.initScore = trainer.initScore
	c.bestIteration = trainer.BestIteration()
	c.state.SetFitted(enc.NumFeatures(), X.NumRows())

	log.GetLoggerWithName("gbdt.classifier").Debug("Model fitted",
		log.ModelNameKey, modelName,
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.SamplesKey, X.NumRows(),
		log.FeaturesKey, enc.NumFeatures(),
		log.BestIterationKey, c.bestIteration)
	return nil
}

func checkLabels(name string, y []float64) error {
	for _, v := range y {
		if v != 0 && v != 1 {
			return errors.NewValidationError(name, "labels must be 0 or 1", v)
		}
	}
	return nil
}

// PredictProba returns the positive-class probability for each row of X.
func (c *Classifier) PredictProba(X *frame.Frame) ([]float64, error) {
	if err := c.state.RequireFitted(modelName, "PredictProba"); err != nil {
		return nil, err
	}
	if X.NumRows() == 0 {
		return []float64{}, nil
	}
	design, err := c.encoder.Encode(X)
	if err != nil {
		return nil, err
	}
	proba := c.predictDesign(design)
	log.GetLoggerWithName("gbdt.classifier").Debug("Predicted",
		log.ModelNameKey, modelName,
		log.OperationKey, log.OperationPredict,
		log.PredsKey, len(proba))
	return proba, nil
}

func (c *Classifier) predictDesign(design *mat.Dense) []float64 {
	n, _ := design.Dims()
	proba := make([]float64, n)
	parallel.ParallelizeWithThreshold(n, predictChunk, func(start, end int) {
		for i := start; i < end; i++ {
			row := design.RawRowView(i)
			score := c.initScore
			for _, tree := range c.trees {
				score += tree.Predict(row)
			}
			proba[i] = errors.Sigmoid(score)
		}
	})
	return proba
}

// NumTrees returns the number of boosting rounds kept.
func (c *Classifier) NumTrees() int { return len(c.trees) }

// BestIteration returns the 0-based best round on the eval set, or the last
// round when fitted without one.
func (c *Classifier) BestIteration() int { return c.bestIteration }

// FeatureNames returns the features in model order.
func (c *Classifier) FeatureNames() []string {
	if c.encoder == nil {
		return nil
	}
	return c.encoder.Names()
}

// FeatureImportance returns the importance of every feature keyed by name.
// importanceType is "split" (number of splits) or "gain" (total split gain).
func (c *Classifier) FeatureImportance(importanceType string) (map[string]float64, error) {
	if err := c.state.RequireFitted(modelName, "FeatureImportance"); err != nil {
		return nil, err
	}
	if importanceType != "split" && importanceType != "gain" {
		return nil, errors.NewValidationError("importance_type", "must be split or gain", importanceType)
	}

	names := c.encoder.Names()
	scores := make(map[string]float64, len(names))
	for _, name := range names {
		scores[name] = 0
	}
	for _, tree := range c.trees {
		for i := range tree.Nodes {
			n := &tree.Nodes[i]
			if n.IsLeaf() {
				continue
			}
			if importanceType == "split" {
				scores[names[n.SplitFeature]]++
			} else {
				scores[names[n.SplitFeature]] += n.Gain
			}
		}
	}
	return scores, nil
}

// TopFeatures returns up to k feature names by descending gain importance.
func (c *Classifier) TopFeatures(k int) ([]string, error) {
	imp, err := c.FeatureImportance("gain")
	if err != nil {
		return nil, err
	}
	names := c.encoder.Names()
	sort.SliceStable(names, func(a, b int) bool { return imp[names[a]] > imp[names[b]] })
	if k < len(names) {
		names = names[:k]
	}
	return names, nil
}

// ModelFormat implements model.Versioned.
func (c *Classifier) ModelFormat() (string, int) {
	return FormatName, FormatVersion
}

// persisted is the on-disk layout of a fitted classifier.
type persisted struct {
	Params        Params    `msgpack:"params"`
	Features      []Feature `msgpack:"features"`
	InitScore     float64   `msgpack:"init_score"`
	BestIteration int       `msgpack:"best_iteration"`
	Trees         []*Tree   `msgpack:"trees"`
	NumSamples    int       `msgpack:"n_samples"`
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (c *Classifier) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := c.state.RequireFitted(modelName, "EncodeMsgpack"); err != nil {
		return err
	}
	_, nSamples := c.state.GetDimensions()
	return enc.Encode(&persisted{
		Params:        c.params,
		Features:      c.encoder.Features,
		InitScore:     c.initScore,
		BestIteration: c.bestIteration,
		Trees:         c.trees,
		NumSamples:    nSamples,
	})
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (c *Classifier) DecodeMsgpack(dec *msgpack.Decoder) error {
	var p persisted
	if err := dec.Decode(&p); err != nil {
		return err
	}
	if len(p.Features) == 0 {
		return errors.NewValueError("GBDTClassifier.DecodeMsgpack", "model has no features")
	}
	for ti, tree := range p.Trees {
		if err := validateTree(tree, len(p.Features)); err != nil {
			return errors.Wrapf(err, "tree %d", ti)
		}
	}

	c.params = p.Params
	c.encoder = &Encoder{Features: p.Features}
	c.encoder.index()
	c.trees = p.Trees
	c.initScore = p.InitScore
	c.bestIteration = p.BestIteration
	c.state.SetFitted(len(p.Features), p.NumSamples)
	return nil
}

// validateTree rejects trees whose links or features would make Predict
// index out of range or loop.
func validateTree(t *Tree, nFeatures int) error {
	if t == nil || len(t.Nodes) == 0 {
		return errors.NewValueError("GBDTClassifier.DecodeMsgpack", "empty tree")
	}
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			continue
		}
		if n.SplitFeature < 0 || n.SplitFeature >= nFeatures {
			return errors.NewValueError("GBDTClassifier.DecodeMsgpack", "split feature out of range")
		}
		// Children are always appended after their parent.
		if n.LeftChild <= i || n.RightChild <= i || n.LeftChild >= len(t.Nodes) || n.RightChild >= len(t.Nodes) {
			return errors.NewValueError("GBDTClassifier.DecodeMsgpack", "invalid child index")
		}
	}
	return nil
}
