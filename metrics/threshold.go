package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// DefaultThreshold は確率の既定の判定閾値
const DefaultThreshold = 0.5

// ThresholdResult は閾値選択の結果
type ThresholdResult struct {
	Threshold float64
	MacroF1   float64
	// NPos は proba >= Threshold となった件数
	NPos int
}

// GridPoint は閾値探索の一点
type GridPoint struct {
	// TargetPos は正例数の目標値（クォータ探索のみ、それ以外は 0）
	TargetPos int
	Threshold float64
	MacroF1   float64
	NPos      int
}

// sweeper は確率を昇順に並べ、任意の閾値での混同行列を O(log n) で求める
type sweeper struct {
	sorted   []float64 // 昇順の確率
	posBelow []int     // posBelow[k] は sorted[:k] に含まれる正例数
	nPos     int
}

func newSweeper(op string, yTrue, proba []float64) (*sweeper, error) {
	n := len(yTrue)
	if n == 0 {
		return nil, errors.NewValueError(op, "empty vector")
	}
	if len(proba) != n {
		return nil, errors.NewDimensionError(op, n, len(proba), 0)
	}
	if err := checkBinary(op, yTrue); err != nil {
		return nil, err
	}
	for i, p := range proba {
		if math.IsNaN(p) {
			return nil, errors.NewValidationError(op+".proba", "probabilities must not be NaN", i)
		}
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return proba[idx[a]] < proba[idx[b]] })

	s := &sweeper{sorted: make([]float64, n), posBelow: make([]int, n+1)}
	for k, i := range idx {
		s.sorted[k] = proba[i]
		s.posBelow[k+1] = s.posBelow[k]
		if yTrue[i] == 1 {
			s.posBelow[k+1]++
		}
	}
	s.nPos = s.posBelow[n]
	return s, nil
}

// at は閾値 thr での混同行列を返す
func (s *sweeper) at(thr float64) ConfusionMatrix {
	n := len(s.sorted)
	k := sort.SearchFloat64s(s.sorted, thr) // 最初の sorted[k] >= thr
	posPred := n - k
	tp := s.nPos - s.posBelow[k]
	fp := posPred - tp
	fn := s.nPos - tp
	tn := n - tp - fp - fn
	return ConfusionMatrix{TP: tp, FP: fp, TN: tn, FN: fn}
}

// uniqueSorted は昇順かつ重複のない候補値を返す
func uniqueSorted(values []float64) []float64 {
	out := append([]float64(nil), values...)
	sort.Float64s(out)
	w := 0
	for i, v := range out {
		if i == 0 || v != out[w-1] {
			out[w] = v
			w++
		}
	}
	return out[:w]
}

// MaxF1Threshold はマクロ平均F1が最大となる閾値を探索する
//
// 候補は確率の一意な値に reference を加えたもの（昇順）。
// より大きいF1が出たときのみ更新するため、同点の場合は小さい閾値が選ばれる。
// reference を候補に含めるので、選ばれた閾値のF1は reference でのF1を下回らない。
// 戻り値の二つ目は全候補のF1（描画用）。
func MaxF1Threshold(yTrue, proba []float64, reference float64) (ThresholdResult, []GridPoint, error) {
	s, err := newSweeper("MaxF1Threshold", yTrue, proba)
	if err != nil {
		return ThresholdResult{}, nil, err
	}

	candidates := uniqueSorted(append(append([]float64(nil), proba...), reference))
	sweep := make([]GridPoint, 0, len(candidates))

	best := ThresholdResult{Threshold: reference, MacroF1: -1}
	for _, t := range candidates {
		cm := s.at(t)
		f := cm.MacroF1()
		sweep = append(sweep, GridPoint{Threshold: t, MacroF1: f, NPos: cm.TP + cm.FP})
		if f > best.MacroF1 {
			best = ThresholdResult{Threshold: t, MacroF1: f, NPos: cm.TP + cm.FP}
		}
	}
	return best, sweep, nil
}

// PositiveQuotaThreshold は上位 q 件が正例となる閾値（q 番目に大きい確率）を返す
// q は [1, N-1] に丸められる。N == 1 の場合はその確率をそのまま返す。
// 同じ確率が境界に並ぶ場合、正例数は q を超えることがある。
func PositiveQuotaThreshold(proba []float64, q int) (float64, error) {
	n := len(proba)
	if n == 0 {
		return 0, errors.NewValueError("PositiveQuotaThreshold", "empty vector")
	}
	q = ClampQuota(q, n)

	sorted := append([]float64(nil), proba...)
	sort.Float64s(sorted)
	return sorted[n-q], nil
}

// ClampQuota は q を [1, n-1] に丸める（n == 1 のときは 1）
func ClampQuota(q, n int) int {
	if q > n-1 {
		q = n - 1
	}
	if q < 1 {
		q = 1
	}
	return q
}

// QuotaSearch は各クォータの閾値とマクロ平均F1を計算し、最良の点を選ぶ
// 同点の場合はグリッドで先に現れた点が選ばれる。
func QuotaSearch(yTrue, proba []float64, grid []int) (ThresholdResult, []GridPoint, error) {
	if len(grid) == 0 {
		return ThresholdResult{}, nil, errors.NewValidationError("positive_quota_grid", "must not be empty", grid)
	}
	s, err := newSweeper("QuotaSearch", yTrue, proba)
	if err != nil {
		return ThresholdResult{}, nil, err
	}

	points := make([]GridPoint, 0, len(grid))
	bestIdx := -1
	for _, q := range grid {
		thr, err := PositiveQuotaThreshold(proba, q)
		if err != nil {
			return ThresholdResult{}, nil, err
		}
		cm := s.at(thr)
		p := GridPoint{TargetPos: q, Threshold: thr, MacroF1: cm.MacroF1(), NPos: cm.TP + cm.FP}
		points = append(points, p)
		if bestIdx < 0 || p.MacroF1 > points[bestIdx].MacroF1 {
			bestIdx = len(points) - 1
		}
	}

	b := points[bestIdx]
	return ThresholdResult{Threshold: b.Threshold, MacroF1: b.MacroF1, NPos: b.NPos}, points, nil
}
