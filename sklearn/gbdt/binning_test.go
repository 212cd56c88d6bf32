package gbdt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinUpperBounds(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		maxBin int
		want   []float64
	}{
		{"distinct values fit", []float64{1, 1, 2, 3, 3}, 4, []float64{1, 2, 3}},
		{"quantiles", []float64{1, 2, 3, 4, 5, 6, 7, 8}, 4, []float64{2, 4, 6, 8}},
		{"heavy ties collapse", []float64{0, 0, 0, 0, 0, 0, 1, 2}, 2, []float64{0, 2}},
		{"empty", nil, 4, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, binUpperBounds(tt.sorted, tt.maxBin))
		})
	}
}

func TestBinNumericMatchesThresholds(t *testing.T) {
	col := []float64{5, math.NaN(), 1, 3, 3, 9}
	bf := binNumeric(col, 254)

	assert.Equal(t, []float64{1, 3, 5, 9}, bf.upper)
	assert.Equal(t, []int32{2, 4, 0, 1, 1, 3}, bf.bins)
	// value <= upper[b] exactly when its bin is <= b
	for i, v := range col {
		if math.IsNaN(v) {
			assert.Equal(t, bf.missingBin(), bf.bins[i])
			continue
		}
		for b, u := range bf.upper {
			assert.Equal(t, v <= u, int(bf.bins[i]) <= b)
		}
	}
}

func TestTreePredict(t *testing.T) {
	tree := &Tree{Nodes: []Node{
		{NodeType: NumericalNode, SplitFeature: 0, Threshold: 2.5, DefaultLeft: true, LeftChild: 1, RightChild: 2},
		{NodeType: LeafNode, LeafValue: -1, LeftChild: -1, RightChild: -1},
		{NodeType: CategoricalNode, SplitFeature: 1, Categories: []int{0, 3}, LeftChild: 3, RightChild: 4},
		{NodeType: LeafNode, LeafValue: 2, LeftChild: -1, RightChild: -1},
		{NodeType: LeafNode, LeafValue: 3, LeftChild: -1, RightChild: -1},
	}}

	tests := []struct {
		row  []float64
		want float64
	}{
		{[]float64{1, 0}, -1},
		{[]float64{math.NaN(), 0}, -1},
		{[]float64{4, 3}, 2},
		{[]float64{4, 1}, 3},
		{[]float64{4, math.NaN()}, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tree.Predict(tt.row))
	}
	assert.Equal(t, 3, tree.NumLeaves())
}
