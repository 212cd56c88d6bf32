package gbdt

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fraudkit/core/frame"
)

// binnedFeature holds the histogram bins of one feature over the training rows.
type binnedFeature struct {
	categorical bool
	// upper[b] is the largest value falling in numeric bin b.
	upper []float64
	// nBins excludes the missing bin, which is always index nBins.
	nBins int
	bins  []int32
}

func (b *binnedFeature) missingBin() int32 { return int32(b.nBins) }

// binDataset discretizes every column of X. Numeric columns get at most
// maxBin quantile bins; categorical columns get one bin per level code.
func binDataset(X *mat.Dense, features []Feature, maxBin int) []*binnedFeature {
	n, p := X.Dims()
	out := make([]*binnedFeature, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, X)
		if features[j].Kind == frame.Categorical {
			out[j] = binCategorical(col, len(features[j].Levels))
		} else {
			out[j] = binNumeric(col, maxBin)
		}
	}
	return out
}

func binCategorical(col []float64, nLevels int) *binnedFeature {
	bf := &binnedFeature{categorical: true, nBins: nLevels, bins: make([]int32, len(col))}
	for i, v := range col {
		if math.IsNaN(v) {
			bf.bins[i] = bf.missingBin()
			continue
		}
		bf.bins[i] = int32(v)
	}
	return bf
}

func binNumeric(col []float64, maxBin int) *binnedFeature {
	sorted := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)

	bf := &binnedFeature{upper: binUpperBounds(sorted, maxBin), bins: make([]int32, len(col))}
	bf.nBins = len(bf.upper)
	for i, v := range col {
		if math.IsNaN(v) {
			bf.bins[i] = bf.missingBin()
			continue
		}
		bf.bins[i] = int32(sort.SearchFloat64s(bf.upper, v))
	}
	return bf
}

// binUpperBounds returns the distinct values when there are at most maxBin
// of them, else the distinct quantile cut points of sorted.
func binUpperBounds(sorted []float64, maxBin int) []float64 {
	var distinct []float64
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
		}
	}
	if len(distinct) <= maxBin {
		return distinct
	}

	bounds := make([]float64, 0, maxBin)
	n := len(sorted)
	// k == maxBin picks sorted[n-1], so the maximum is always covered.
	for k := 1; k <= maxBin; k++ {
		v := sorted[k*n/maxBin-1]
		if len(bounds) == 0 || v > bounds[len(bounds)-1] {
			bounds = append(bounds, v)
		}
	}
	return bounds
}
