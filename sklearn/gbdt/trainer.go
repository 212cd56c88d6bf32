package gbdt

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fraudkit/core/parallel"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
	"github.com/YuminosukeSato/fraudkit/pkg/log"
)

// Trainer grows the boosted trees for one Fit call.
type Trainer struct {
	// Training parameters
	params Params

	// Data
	X        *mat.Dense
	y        []float64
	features []Feature
	binned   []*binnedFeature

	// Validation data, optional
	evalX      *mat.Dense
	evalY      []float64
	evalScores []float64

	// Gradient and Hessian
	gradients []float64
	hessians  []float64

	// Raw scores of the training rows under the current ensemble
	scores []float64

	// Trees
	trees     []*Tree
	initScore float64

	objective     ObjectiveFunction
	earlyStopping *EarlyStopping
	rng           *rand.Rand
	logger        log.Logger
}

// histogram accumulates gradient statistics per bin. The last slot is the
// missing bin.
type histogram struct {
	grad  []float64
	hess  []float64
	count []int
}

// SplitInfo contains information about a candidate split
type SplitInfo struct {
	Feature     int
	Gain        float64
	Threshold   float64
	Categories  []int
	DefaultLeft bool
	// leftBin[b] reports whether training rows in bin b go left.
	leftBin []bool
}

// NewTrainer creates a trainer for features encoded in X.
func NewTrainer(params Params, features []Feature, X *mat.Dense, y []float64) *Trainer {
	return &Trainer{
		params:    params,
		X:         X,
		y:         y,
		features:  features,
		objective: NewBinaryLogloss(params.ScalePosWeight),
		rng:       rand.New(rand.NewPCG(params.Seed, params.Seed)),
		logger:    log.GetLoggerWithName("gbdt.trainer"),
	}
}

// WithEvalSet registers a validation set for best-iteration tracking and
// early stopping.
func (t *Trainer) WithEvalSet(X *mat.Dense, y []float64) *Trainer {
	t.evalX = X
	t.evalY = y
	return t
}

// Fit runs the boosting loop. The context is checked before every round.
func (t *Trainer) Fit(ctx context.Context) error {
	n, p := t.X.Dims()
	if n != len(t.y) {
		return errors.NewDimensionError("gbdt.Trainer.Fit", n, len(t.y), 0)
	}

	t.binned = binDataset(t.X, t.features, t.params.MaxBin)
	t.gradients = make([]float64, n)
	t.hessians = make([]float64, n)
	t.initScore = t.objective.GetInitScore(t.y)
	t.scores = make([]float64, n)
	for i := range t.scores {
		t.scores[i] = t.initScore
	}

	if t.evalX != nil {
		t.earlyStopping = NewEarlyStopping(t.params.EarlyStoppingRounds)
		t.evalScores = make([]float64, len(t.evalY))
		for i := range t.evalScores {
			t.evalScores[i] = t.initScore
		}
	}

	allRows := make([]int, n)
	for i := range allRows {
		allRows[i] = i
	}
	allFeatures := make([]int, p)
	for j := range allFeatures {
		allFeatures[j] = j
	}

	for iter := 0; iter < t.params.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "gbdt: training cancelled at iteration %d", iter)
		}

		t.calculateGradients()

		rows := t.sampleRows(allRows)
		feats := t.sampleFeatures(allFeatures)

		tree, err := t.buildTree(ctx, rows, feats)
		if err != nil {
			return errors.Wrapf(err, "tree building failed at iteration %d", iter)
		}
		if err := t.checkLeaves(tree, iter); err != nil {
			return err
		}
		t.trees = append(t.trees, tree)
		t.updatePredictions(tree)

		if t.earlyStopping == nil {
			if t.params.Verbosity > 0 && iter%t.params.Verbosity == 0 {
				t.logger.Debug("Training progress",
					log.IterationKey, iter,
					log.LossKey, t.trainLoss())
			}
			continue
		}

		evalLoss := t.evalLoss()
		stop := t.earlyStopping.Update(iter, evalLoss)
		if t.params.Verbosity > 0 && iter%t.params.Verbosity == 0 {
			t.logger.Debug("Training progress",
				log.IterationKey, iter,
				log.LossKey, evalLoss,
				log.BestIterationKey, t.earlyStopping.BestIteration)
		}
		if stop {
			t.logger.Debug("Early stopping",
				log.IterationKey, iter,
				log.BestIterationKey, t.earlyStopping.BestIteration,
				log.LossKey, t.earlyStopping.BestScore)
			break
		}
	}

	if t.earlyStopping != nil && t.params.UseBestModel && t.earlyStopping.BestIteration >= 0 {
		t.trees = t.trees[:t.earlyStopping.BestIteration+1]
	}
	return nil
}

// BestIteration returns the 0-based round with the lowest validation loss,
// or the last round when no validation set was given.
func (t *Trainer) BestIteration() int {
	if t.earlyStopping != nil && t.earlyStopping.BestIteration >= 0 {
		return t.earlyStopping.BestIteration
	}
	return len(t.trees) - 1
}

// calculateGradients computes gradients and hessians at the current scores.
func (t *Trainer) calculateGradients() {
	for i, target := range t.y {
		t.gradients[i] = t.objective.CalculateGradient(t.scores[i], target)
		t.hessians[i] = t.objective.CalculateHessian(t.scores[i], target)
	}
}

func (t *Trainer) sampleRows(all []int) []int {
	if t.params.Subsample >= 1 {
		return all
	}
	k := max(1, int(t.params.Subsample*float64(len(all))))
	rows := t.rng.Perm(len(all))[:k]
	sort.Ints(rows)
	return rows
}

func (t *Trainer) sampleFeatures(all []int) []int {
	if t.params.ColsampleByTree >= 1 {
		return all
	}
	k := max(1, int(t.params.ColsampleByTree*float64(len(all))))
	feats := t.rng.Perm(len(all))[:k]
	sort.Ints(feats)
	return feats
}

// buildTree grows one depth-wise tree on the sampled rows.
func (t *Trainer) buildTree(ctx context.Context, rows, feats []int) (*Tree, error) {
	tree := &Tree{Nodes: make([]Node, 0, 2*t.params.MaxDepth+1)}
	var sumGrad, sumHess float64
	for _, i := range rows {
		sumGrad += t.gradients[i]
		sumHess += t.hessians[i]
	}
	if _, err := t.buildNode(ctx, tree, rows, feats, 0, sumGrad, sumHess); err != nil {
		return nil, err
	}
	return tree, nil
}

// buildNode appends the subtree for rows and returns its root index.
func (t *Trainer) buildNode(ctx context.Context, tree *Tree, rows, feats []int, depth int, sumGrad, sumHess float64) (int, error) {
	nodeIdx := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, Node{
		NodeType:   LeafNode,
		LeftChild:  -1,
		RightChild: -1,
		Count:      len(rows),
		LeafValue:  t.calculateLeafValue(sumGrad, sumHess),
	})

	// Check stopping conditions
	if depth >= t.params.MaxDepth || len(rows) < 2*t.params.MinDataInLeaf {
		return nodeIdx, nil
	}

	split, found, err := t.findBestSplit(ctx, rows, feats, sumGrad, sumHess)
	if err != nil {
		return 0, err
	}
	if !found || split.Gain < t.params.MinGainToSplit {
		return nodeIdx, nil
	}

	bins := t.binned[split.Feature].bins
	var leftRows, rightRows []int
	var lg, lh, rg, rh float64
	for _, i := range rows {
		if split.leftBin[bins[i]] {
			leftRows = append(leftRows, i)
			lg += t.gradients[i]
			lh += t.hessians[i]
		} else {
			rightRows = append(rightRows, i)
			rg += t.gradients[i]
			rh += t.hessians[i]
		}
	}

	node := &tree.Nodes[nodeIdx]
	node.SplitFeature = split.Feature
	node.Gain = split.Gain
	node.DefaultLeft = split.DefaultLeft
	node.LeafValue = 0
	if t.binned[split.Feature].categorical {
		node.NodeType = CategoricalNode
		node.Categories = split.Categories
	} else {
		node.NodeType = NumericalNode
		node.Threshold = split.Threshold
	}

	left, err := t.buildNode(ctx, tree, leftRows, feats, depth+1, lg, lh)
	if err != nil {
		return 0, err
	}
	right, err := t.buildNode(ctx, tree, rightRows, feats, depth+1, rg, rh)
	if err != nil {
		return 0, err
	}
	// tree.Nodes may have been reallocated by the recursive calls.
	tree.Nodes[nodeIdx].LeftChild = left
	tree.Nodes[nodeIdx].RightChild = right
	return nodeIdx, nil
}

// findBestSplit scans the histograms of every sampled feature. Features are
// processed NumJobs at a time; ties go to the lowest feature index.
func (t *Trainer) findBestSplit(ctx context.Context, rows, feats []int, sumGrad, sumHess float64) (SplitInfo, bool, error) {
	candidates := make([]SplitInfo, len(feats))
	ok := make([]bool, len(feats))

	err := parallel.ForEach(ctx, len(feats), t.params.NumJobs, func(_ context.Context, k int) error {
		j := feats[k]
		hist := t.buildHistogram(rows, j)
		if t.binned[j].categorical {
			candidates[k], ok[k] = t.findCategoricalSplit(hist, j, sumGrad, sumHess)
		} else {
			candidates[k], ok[k] = t.findNumericalSplit(hist, j, sumGrad, sumHess, len(rows))
		}
		return nil
	})
	if err != nil {
		return SplitInfo{}, false, err
	}

	var best SplitInfo
	found := false
	for k := range candidates {
		if ok[k] && (!found || candidates[k].Gain > best.Gain) {
			best = candidates[k]
			found = true
		}
	}
	return best, found, nil
}

func (t *Trainer) buildHistogram(rows []int, feature int) histogram {
	bf := t.binned[feature]
	size := bf.nBins + 1
	h := histogram{
		grad:  make([]float64, size),
		hess:  make([]float64, size),
		count: make([]int, size),
	}
	for _, i := range rows {
		b := bf.bins[i]
		h.grad[b] += t.gradients[i]
		h.hess[b] += t.hessians[i]
		h.count[b]++
	}
	return h
}

// findNumericalSplit tries every bin boundary with missing values sent
// right, then left.
func (t *Trainer) findNumericalSplit(h histogram, feature int, sumGrad, sumHess float64, total int) (SplitInfo, bool) {
	bf := t.binned[feature]
	nb := bf.nBins
	if nb < 2 {
		return SplitInfo{}, false
	}
	missGrad, missHess, missCount := h.grad[nb], h.hess[nb], h.count[nb]

	best := SplitInfo{Feature: feature}
	bestBin := -1
	for _, missingLeft := range []bool{false, true} {
		if missingLeft && missCount == 0 {
			break
		}
		var lg, lh float64
		var lc int
		if missingLeft {
			lg, lh, lc = missGrad, missHess, missCount
		}
		for b := 0; b < nb-1; b++ {
			lg += h.grad[b]
			lh += h.hess[b]
			lc += h.count[b]
			rg, rh, rc := sumGrad-lg, sumHess-lh, total-lc
			if rc < t.params.MinDataInLeaf {
				break
			}
			if !t.validChild(lc, lh) || !t.validChild(rc, rh) {
				continue
			}
			gain := t.calculateSplitGain(lg, lh, rg, rh, sumGrad, sumHess)
			if gain > best.Gain {
				best.Gain = gain
				best.DefaultLeft = missingLeft
				bestBin = b
			}
		}
	}
	if bestBin < 0 {
		return SplitInfo{}, false
	}

	best.Threshold = bf.upper[bestBin]
	if missCount == 0 {
		// No missing values in training: send them where most rows went.
		var lc int
		for b := 0; b <= bestBin; b++ {
			lc += h.count[b]
		}
		best.DefaultLeft = 2*lc >= total
	}
	best.leftBin = make([]bool, nb+1)
	for b := 0; b <= bestBin; b++ {
		best.leftBin[b] = true
	}
	best.leftBin[nb] = best.DefaultLeft
	return best, true
}

// findCategoricalSplit puts a set of levels on the left. Features with few
// observed levels try each level against the rest; otherwise levels are
// ordered by smoothed gradient ratio and every prefix is tried. Missing and
// unseen levels always go right.
func (t *Trainer) findCategoricalSplit(h histogram, feature int, sumGrad, sumHess float64) (SplitInfo, bool) {
	bf := t.binned[feature]
	var levels []int
	for c := 0; c < bf.nBins; c++ {
		if h.count[c] > 0 {
			levels = append(levels, c)
		}
	}
	total := 0
	for _, c := range h.count {
		total += c
	}

	var candidates [][]int
	if len(levels) <= t.params.MaxCatToOnehot {
		for _, c := range levels {
			candidates = append(candidates, []int{c})
		}
	} else {
		ratio := func(c int) float64 { return h.grad[c] / (h.hess[c] + t.params.CatSmooth) }
		sort.SliceStable(levels, func(a, b int) bool { return ratio(levels[a]) < ratio(levels[b]) })
		for k := 1; k < len(levels); k++ {
			candidates = append(candidates, levels[:k])
		}
	}

	best := SplitInfo{Feature: feature}
	var bestSet []int
	for _, set := range candidates {
		var lg, lh float64
		var lc int
		for _, c := range set {
			lg += h.grad[c]
			lh += h.hess[c]
			lc += h.count[c]
		}
		rg, rh, rc := sumGrad-lg, sumHess-lh, total-lc
		if !t.validChild(lc, lh) || !t.validChild(rc, rh) {
			continue
		}
		gain := t.calculateSplitGain(lg, lh, rg, rh, sumGrad, sumHess)
		if gain > best.Gain {
			best.Gain = gain
			bestSet = set
		}
	}
	if bestSet == nil {
		return SplitInfo{}, false
	}

	best.Categories = append([]int(nil), bestSet...)
	sort.Ints(best.Categories)
	best.leftBin = make([]bool, bf.nBins+1)
	for _, c := range best.Categories {
		best.leftBin[c] = true
	}
	return best, true
}

func (t *Trainer) validChild(count int, hess float64) bool {
	return count >= t.params.MinDataInLeaf && hess >= t.params.MinSumHessianInLeaf
}

// thresholdL1 applies the L1 soft threshold to a gradient sum.
func (t *Trainer) thresholdL1(g float64) float64 {
	if t.params.Alpha <= 0 {
		return g
	}
	if g > t.params.Alpha {
		return g - t.params.Alpha
	}
	if g < -t.params.Alpha {
		return g + t.params.Alpha
	}
	return 0
}

func (t *Trainer) leafScore(g, h float64) float64 {
	tg := t.thresholdL1(g)
	return tg * tg / (h + t.params.Lambda)
}

func (t *Trainer) calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess float64) float64 {
	return 0.5 * (t.leafScore(leftGrad, leftHess) + t.leafScore(rightGrad, rightHess) - t.leafScore(totalGrad, totalHess))
}

// calculateLeafValue returns the shrunk optimal leaf value.
func (t *Trainer) calculateLeafValue(sumGrad, sumHess float64) float64 {
	denom := sumHess + t.params.Lambda
	if denom < 1e-10 {
		denom = 1e-10
	}
	return -t.thresholdL1(sumGrad) / denom * t.params.LearningRate
}

func (t *Trainer) checkLeaves(tree *Tree, iter int) error {
	values := make([]float64, 0, len(tree.Nodes))
	for i := range tree.Nodes {
		if tree.Nodes[i].IsLeaf() {
			values = append(values, tree.Nodes[i].LeafValue)
		}
	}
	return errors.CheckNumericalStability("leaf_value", values, iter)
}

// updatePredictions adds the new tree to the cached raw scores.
func (t *Trainer) updatePredictions(tree *Tree) {
	for i := range t.scores {
		t.scores[i] += tree.Predict(t.X.RawRowView(i))
	}
	for i := range t.evalScores {
		t.evalScores[i] += tree.Predict(t.evalX.RawRowView(i))
	}
}

func (t *Trainer) trainLoss() float64 {
	return meanLogloss(t.scores, t.y)
}

func (t *Trainer) evalLoss() float64 {
	return meanLogloss(t.evalScores, t.evalY)
}

// meanLogloss is the unweighted validation metric.
func meanLogloss(scores, y []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	unweighted := BinaryLogloss{PosWeight: 1}
	var sum float64
	for i, target := range y {
		sum += unweighted.CalculateLoss(scores[i], target)
	}
	return sum / float64(len(y))
}
