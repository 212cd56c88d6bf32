package metrics

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositiveQuotaThreshold(t *testing.T) {
	proba := []float64{0.9, 0.1, 0.5, 0.7, 0.3}

	tests := []struct {
		name string
		q    int
		want float64
	}{
		{"top one", 1, 0.9},
		{"top three", 3, 0.5},
		{"zero clamps to one", 0, 0.9},
		{"negative clamps to one", -4, 0.9},
		{"n clamps to n-1", 5, 0.3},
		{"above n clamps to n-1", 50, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PositiveQuotaThreshold(proba, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := PositiveQuotaThreshold(nil, 1)
	assert.Error(t, err)
}

func TestPositiveQuotaThresholdCountsQuota(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	proba := make([]float64, 200)
	for i := range proba {
		proba[i] = rng.Float64()
	}

	for _, q := range []int{1, 10, 57, 199} {
		thr, err := PositiveQuotaThreshold(proba, q)
		require.NoError(t, err)
		n := 0
		for _, p := range proba {
			if p >= thr {
				n++
			}
		}
		assert.Equal(t, q, n, "quota %d", q)
	}
}

func TestPositiveQuotaThresholdTiesExceedQuota(t *testing.T) {
	thr, err := PositiveQuotaThreshold([]float64{0.2, 0.8, 0.8, 0.8}, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.8, thr)
	assert.Equal(t, []float64{0, 1, 1, 1}, Binarize([]float64{0.2, 0.8, 0.8, 0.8}, thr))
}

func TestMaxF1Threshold(t *testing.T) {
	yTrue := []float64{0, 0, 0, 1, 1}
	proba := []float64{0.1, 0.2, 0.3, 0.35, 0.4}

	best, sweep, err := MaxF1Threshold(yTrue, proba, DefaultThreshold)
	require.NoError(t, err)

	assert.Equal(t, 0.35, best.Threshold)
	assert.InDelta(t, 1.0, best.MacroF1, 1e-12)
	assert.Equal(t, 2, best.NPos)
	assert.Len(t, sweep, 6, "five unique probabilities plus the reference")
	for i := 1; i < len(sweep); i++ {
		assert.Less(t, sweep[i-1].Threshold, sweep[i].Threshold)
	}
}

func TestMaxF1ThresholdFirstWinsTies(t *testing.T) {
	// 0.3 と 0.6 の間のどの閾値でも完全分類になる
	yTrue := []float64{0, 0, 1, 1}
	proba := []float64{0.1, 0.2, 0.6, 0.7}

	best, _, err := MaxF1Threshold(yTrue, proba, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, best.Threshold, "0.5 precedes 0.6 and scores the same")

	best, _, err = MaxF1Threshold(yTrue, proba, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 0.6, best.Threshold)
}

func TestMaxF1ThresholdNeverBelowReference(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	for trial := 0; trial < 20; trial++ {
		n := 30 + rng.IntN(70)
		yTrue := make([]float64, n)
		proba := make([]float64, n)
		for i := range yTrue {
			if rng.Float64() < 0.2 {
				yTrue[i] = 1
			}
			proba[i] = rng.Float64()
		}

		best, _, err := MaxF1Threshold(yTrue, proba, DefaultThreshold)
		require.NoError(t, err)
		ref := mustMacroF1(t, yTrue, proba, DefaultThreshold)
		assert.GreaterOrEqual(t, best.MacroF1, ref)

		// スイープ結果は直接計算と一致する
		direct := mustMacroF1(t, yTrue, proba, best.Threshold)
		assert.InDelta(t, direct, best.MacroF1, 1e-12)
	}
}

func TestMaxF1ThresholdValidation(t *testing.T) {
	_, _, err := MaxF1Threshold(nil, nil, 0.5)
	assert.Error(t, err)
	_, _, err = MaxF1Threshold([]float64{0, 1}, []float64{0.5}, 0.5)
	assert.Error(t, err)
	_, _, err = MaxF1Threshold([]float64{0, 3}, []float64{0.5, 0.2}, 0.5)
	assert.Error(t, err)
}

func TestQuotaSearch(t *testing.T) {
	yTrue := []float64{1, 1, 0, 0, 0, 0, 0, 0, 0, 0}
	proba := []float64{0.95, 0.9, 0.85, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2}

	best, grid, err := QuotaSearch(yTrue, proba, []int{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, grid, 3)

	for i, q := range []int{1, 2, 3} {
		assert.Equal(t, q, grid[i].TargetPos)
		assert.Equal(t, q, grid[i].NPos)
	}
	assert.Equal(t, 0.9, best.Threshold)
	assert.InDelta(t, 1.0, best.MacroF1, 1e-12)

	// q=1 と q=3 はマクロF1が同じになる。同点は先勝ち
	tieY := []float64{1, 0, 1, 0}
	tieP := []float64{0.9, 0.8, 0.7, 0.6}
	best, _, err = QuotaSearch(tieY, tieP, []int{3, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.7, best.Threshold)
	best, _, err = QuotaSearch(tieY, tieP, []int{1, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.9, best.Threshold)

	_, _, err = QuotaSearch(yTrue, proba, nil)
	assert.Error(t, err)
}

func TestClampQuota(t *testing.T) {
	assert.Equal(t, 1, ClampQuota(0, 10))
	assert.Equal(t, 9, ClampQuota(10, 10))
	assert.Equal(t, 4, ClampQuota(4, 10))
	assert.Equal(t, 1, ClampQuota(3, 1))
}

func mustMacroF1(t *testing.T, yTrue, proba []float64, thr float64) float64 {
	t.Helper()
	cm, err := NewConfusionMatrix(yTrue, Binarize(proba, thr))
	require.NoError(t, err)
	return cm.MacroF1()
}
