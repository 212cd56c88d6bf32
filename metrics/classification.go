package metrics

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)


// checkPair は二つのベクトルの入力検証を行う
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// checkBinary はラベルが0または1であることを検証する
func checkBinary(op string, y []float64) error {
	for i, v := range y {
		if v != 0 && v != 1 {
			return errors.NewValidationError(op+".y_true", "labels must be 0 or 1", map[string]interface{}{"index": i, "value": v})
		}
	}
	return nil
}

// AUC はROC曲線下面積を計算する
//
// 同順位のスコアには平均順位を割り当てる（Mann-Whitney U 統計量）。
// 正例または負例が存在しない場合は定義できないため 0.5 を返し、警告を発生させる。
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	n, err := checkPair("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	y := mat.Col(nil, 0, yTrue)
	p := mat.Col(nil, 0, yPred)
	if err := checkBinary("AUC", y); err != nil {
		return 0, err
	}

	nPos := floats.Sum(y)
	nNeg := float64(n) - nPos
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}

	// スコア昇順に並べ、同順位は平均順位とする
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })

	var rankSumPos float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && p[idx[j+1]] == p[idx[i]] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if y[idx[k]] == 1 {
				rankSumPos += avgRank
			}
		}
		i = j + 1
	}

	u := rankSumPos - nPos*(nPos+1)/2
	return u / (nPos * nNeg), nil
}

// AUCMatrix は行列形式の入力に対してAUCを計算する（先頭列を使用）
func AUCMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	yt, yp, err := firstColumns("AUCMatrix", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return AUC(yt, yp)
}

// firstColumns は行列の先頭列をベクトルとして取り出す
func firstColumns(op string, yTrue, yPred mat.Matrix) (*mat.VecDense, *mat.VecDense, error) {
	if yTrue == nil || yPred == nil {
		return nil, nil, errors.NewValueError(op, "nil matrix")
	}
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()
	if rTrue == 0 || cTrue == 0 || cPred == 0 {
		return nil, nil, errors.NewValueError(op, "empty matrix")
	}
	if rTrue != rPred {
		return nil, nil, errors.NewDimensionError(op, rTrue, rPred, 0)
	}
	return mat.NewVecDense(rTrue, mat.Col(nil, 0, yTrue)),
		mat.NewVecDense(rPred, mat.Col(nil, 0, yPred)), nil
}

// BinaryLogLoss は二値分類の対数損失を計算する
// 確率は [0, 1] にクリップされ、log(0) は StabilizeLog で有限値に抑えられる
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	n, err := checkPair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	y := mat.Col(nil, 0, yTrue)
	if err := checkBinary("BinaryLogLoss", y); err != nil {
		return 0, err
	}

	// LogLoss = -(1/n) * Σ[y*log(p) + (1-y)*log(1-p)]
	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yPred.AtVec(i), 0, 1)
		if y[i] == 1 {
			sum -= errors.StabilizeLog(p)
		} else {
			sum -= errors.StabilizeLog(1 - p)
		}
	}
	return sum / float64(n), nil
}

// Accuracy は正解率を計算する（多クラスのラベルにも対応）
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率（1 - 正解率）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// ConfusionMatrix は二値分類の混同行列
type ConfusionMatrix struct {
	TP, FP, TN, FN int
}

// NewConfusionMatrix は0/1のラベルと予測から混同行列を作成する
func NewConfusionMatrix(yTrue, yPred []float64) (ConfusionMatrix, error) {
	var cm ConfusionMatrix
	if len(yTrue) == 0 {
		return cm, errors.NewValueError("ConfusionMatrix", "empty vector")
	}
	if len(yPred) != len(yTrue) {
		return cm, errors.NewDimensionError("ConfusionMatrix", len(yTrue), len(yPred), 0)
	}
	if err := checkBinary("ConfusionMatrix", yTrue); err != nil {
		return cm, err
	}
	for i, t := range yTrue {
		pos := yPred[i] == 1
		switch {
		case t == 1 && pos:
			cm.TP++
		case t == 1:
			cm.FN++
		case pos:
			cm.FP++
		default:
			cm.TN++
		}
	}
	return cm, nil
}

// f1 はゼロ除算の場合 0 と ok=false を返す
func f1(tp, fp, fn int) (float64, bool) {
	denom := 2*tp + fp + fn
	if denom == 0 {
		return 0, false
	}
	return float64(2*tp) / float64(denom), true
}

// F1Positive は正例クラス（1）のF1スコア
func (cm ConfusionMatrix) F1Positive() float64 {
	v, _ := f1(cm.TP, cm.FP, cm.FN)
	return v
}

// F1Negative は負例クラス（0）のF1スコア
func (cm ConfusionMatrix) F1Negative() float64 {
	v, _ := f1(cm.TN, cm.FN, cm.FP)
	return v
}

// MacroF1 は二つのクラスのF1スコアの単純平均
// 予測にも正解にも現れないクラスのF1は 0 として扱う
func (cm ConfusionMatrix) MacroF1() float64 {
	return (cm.F1Positive() + cm.F1Negative()) / 2
}

// MacroF1 はラベルと0/1予測からマクロ平均F1を計算する
// クラスのF1が定義できない場合は警告を発生させ 0 として扱う
func MacroF1(yTrue, yPred []float64) (float64, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if _, ok := f1(cm.TP, cm.FP, cm.FN); !ok {
		errors.Warn(errors.NewUndefinedMetricWarning("f1", "no true nor predicted samples of class 1", 0))
	}
	if _, ok := f1(cm.TN, cm.FN, cm.FP); !ok {
		errors.Warn(errors.NewUndefinedMetricWarning("f1", "no true nor predicted samples of class 0", 0))
	}
	return cm.MacroF1(), nil
}

// Binarize は確率を閾値で0/1に変換する（p >= thr が正例）
func Binarize(proba []float64, thr float64) []float64 {
	out := make([]float64, len(proba))
	for i, p := range proba {
		if p >= thr {
			out[i] = 1
		}
	}
	return out
}

// MacroF1AtThreshold は閾値で二値化した後のマクロ平均F1を計算する
func MacroF1AtThreshold(yTrue, proba []float64, thr float64) (float64, error) {
	if len(proba) != len(yTrue) {
		return 0, errors.NewDimensionError("MacroF1AtThreshold", len(yTrue), len(proba), 0)
	}
	return MacroF1(yTrue, Binarize(proba, thr))
}

// AUCScore はスライス入力のAUC
func AUCScore(yTrue, proba []float64) (float64, error) {
	if len(yTrue) == 0 || len(proba) == 0 {
		return 0, errors.NewValueError("AUC", "empty vector")
	}
	return AUC(mat.NewVecDense(len(yTrue), yTrue), mat.NewVecDense(len(proba), proba))
}

// LogLoss はスライス入力の二値対数損失
func LogLoss(yTrue, proba []float64) (float64, error) {
	if len(yTrue) == 0 || len(proba) == 0 {
		return 0, errors.NewValueError("BinaryLogLoss", "empty vector")
	}
	return BinaryLogLoss(mat.NewVecDense(len(yTrue), yTrue), mat.NewVecDense(len(proba), proba))
}
