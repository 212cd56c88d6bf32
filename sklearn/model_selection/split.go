// Package model_selection provides cross-validation splitters.
package model_selection

import (
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// Splitter produces train/test index sets over len(y) samples.
type Splitter interface {
	Split(y []float64) ([]Fold, error)
	GetNSplits() int
}

var (
	_ Splitter = (*KFold)(nil)
	_ Splitter = (*StratifiedKFold)(nil)
)

// Fold is one train/test partition. Both index lists are ascending.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, randomSeed uint64) *KFold {
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split assigns consecutive blocks of the (optionally shuffled) index list
// to folds. The first n%k folds get one extra sample.
func (kf *KFold) Split(y []float64) ([]Fold, error) {
	n := len(y)
	if err := checkSplits(kf.NSplits, n); err != nil {
		return nil, err
	}

	indices := identity(n)
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(kf.RandomSeed, kf.RandomSeed))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	assign := make([]int, n)
	distribute(indices, kf.NSplits, 0, assign)
	return buildFolds(assign, kf.NSplits), nil
}

// StratifiedKFold implements stratified k-fold cross-validation
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split distributes the samples of each class evenly across folds so every
// test fold keeps roughly the overall class ratio. Classes are visited in
// ascending label order and share one random stream, so the result depends
// only on y and the seed.
func (skf *StratifiedKFold) Split(y []float64) ([]Fold, error) {
	n := len(y)
	if err := checkSplits(skf.NSplits, n); err != nil {
		return nil, err
	}

	classIndices := make(map[float64][]int)
	for i, label := range y {
		classIndices[label] = append(classIndices[label], i)
	}
	labels := make([]float64, 0, len(classIndices))
	for label := range classIndices {
		labels = append(labels, label)
	}
	sort.Float64s(labels)

	var r *rand.Rand
	if skf.Shuffle {
		r = rand.New(rand.NewPCG(skf.RandomSeed, skf.RandomSeed))
	}

	assign := make([]int, n)
	// Leftover rows of each class continue in the fold after the previous
	// class's leftovers, so no test fold stays empty when classes are small.
	offset := 0
	for _, label := range labels {
		indices := classIndices[label]
		if r != nil {
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		offset = distribute(indices, skf.NSplits, offset, assign)
	}
	return buildFolds(assign, skf.NSplits), nil
}

func checkSplits(nSplits, nSamples int) error {
	if nSplits < 2 {
		return errors.NewValidationError("n_splits", "must be at least 2", nSplits)
	}
	if nSamples < nSplits {
		return errors.NewValidationError("n_splits", "cannot be greater than the number of samples", map[string]int{
			"n_splits":  nSplits,
			"n_samples": nSamples,
		})
	}
	return nil
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// distribute writes the fold number of each index into assign as
// consecutive blocks in fold order. The len%k larger blocks go to the folds
// starting at offset, wrapping around; the returned offset is the fold after
// the last larger block.
func distribute(indices []int, k, offset int, assign []int) int {
	size := len(indices) / k
	remainder := len(indices) % k
	pos := 0
	for fold := 0; fold < k; fold++ {
		testSize := size
		if (fold-offset+k)%k < remainder {
			testSize++
		}
		for _, idx := range indices[pos : pos+testSize] {
			assign[idx] = fold
		}
		pos += testSize
	}
	return (offset + remainder) % k
}

func buildFolds(assign []int, k int) []Fold {
	folds := make([]Fold, k)
	for i, f := range assign {
		for j := range folds {
			if j == f {
				folds[j].TestIndices = append(folds[j].TestIndices, i)
			} else {
				folds[j].TrainIndices = append(folds[j].TrainIndices, i)
			}
		}
	}
	return folds
}
