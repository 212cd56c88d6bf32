// Package preprocessing は学習と推論で共通に使う特徴量エンジニアリングを提供する
package preprocessing

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/fraudkit/core/frame"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// 派生列の名前
const (
	MonthNumColumn              = "month_num"
	DayOfWeekNumColumn          = "claim_day_of_week_num"
	PayoutIncomeRatioColumn     = "payout_income_ratio"
	DriverVehicleAgeRatioColumn = "driver_vehicle_age_ratio"
	DriverVehicleAgeDiffColumn  = "driver_vehicle_age_diff"
	LiabPayoutColumn            = "liab_payout"

	// UnknownCategory はカテゴリ列の欠損を埋める値
	UnknownCategory = "Unknown"
)

// monthNumbers は月の略称（大文字）を 1..12 に対応させる
var monthNumbers = map[string]float64{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

// weekdayNumbers は曜日名を 1 (Monday) .. 7 (Sunday) に対応させる
var weekdayNumbers = map[string]float64{
	"Monday": 1, "Tuesday": 2, "Wednesday": 3, "Thursday": 4,
	"Friday": 5, "Saturday": 6, "Sunday": 7,
}

// ratioSpec は分子・分母・出力列の組
type ratioSpec struct {
	num, den, out string
}

var ratioSpecs = []ratioSpec{
	{"claim_est_payout", "annual_income", PayoutIncomeRatioColumn},
	{"driver_age", "vehicle_age", DriverVehicleAgeRatioColumn},
}

// FeatureBuilder は生のクレームデータに派生特徴量を追加し、欠損を埋める
//
// 変換は入力フレームを変更しない。派生列の元になる列が存在しない場合、
// または数値列でない場合、その派生列は作られない。エラーは返さない。
//
// 使用例:
//
//	fb := preprocessing.NewFeatureBuilder()
//	Xtrain, schema := fb.FitTransform(raw)
//	Xtest := fb.TransformWithSchema(test, schema)
type FeatureBuilder struct {
	runID string
	now   func() time.Time
}

// NewFeatureBuilder は新しいFeatureBuilderを作成する
func NewFeatureBuilder() *FeatureBuilder {
	return &FeatureBuilder{now: time.Now}
}

// WithRunID はFitTransformが返すSchemaに記録する実行IDを設定する
// 設定しない場合はUUIDを新規に発行する
func (fb *FeatureBuilder) WithRunID(id string) *FeatureBuilder {
	fb.runID = id
	return fb
}

// Transform は派生列を追加し、欠損値を埋めたフレームを返す
//
// 派生列:
//   - month_num: month を JAN..DEC → 1..12、それ以外は 0
//   - claim_day_of_week_num: claim_day_of_week を Monday..Sunday → 1..7、それ以外は 0
//   - payout_income_ratio: claim_est_payout / annual_income
//   - driver_vehicle_age_ratio: driver_age / vehicle_age
//   - driver_vehicle_age_diff: driver_age - vehicle_age
//   - liab_payout: liab_prct * claim_est_payout
//
// 比率は分母が 0 または欠損の場合 0 になる。最後に数値列の NaN を 0、
// カテゴリ列の欠損を "Unknown" で埋める。
func (fb *FeatureBuilder) Transform(raw *frame.Frame) *frame.Frame {
	out := raw.Clone()

	if c, ok := out.Column("month"); ok {
		mustSet(out, calendarColumn(MonthNumColumn, c, monthNumbers))
	}
	if c, ok := out.Column("claim_day_of_week"); ok {
		mustSet(out, calendarColumn(DayOfWeekNumColumn, c, weekdayNumbers))
	}

	for _, r := range ratioSpecs {
		num, okNum := out.Numeric(r.num)
		den, okDen := out.Numeric(r.den)
		if okNum && okDen {
			mustSet(out, frame.NewNumeric(r.out, safeRatio(num, den)))
		}
	}

	if age, ok := out.Numeric("driver_age"); ok {
		if vage, ok := out.Numeric("vehicle_age"); ok {
			mustSet(out, frame.NewNumeric(DriverVehicleAgeDiffColumn, combine(age, vage, func(a, b float64) float64 { return a - b })))
		}
	}
	if liab, ok := out.Numeric("liab_prct"); ok {
		if payout, ok := out.Numeric("claim_est_payout"); ok {
			mustSet(out, frame.NewNumeric(LiabPayoutColumn, combine(liab, payout, func(a, b float64) float64 { return a * b })))
		}
	}

	fillNulls(out)
	return out
}

// FitTransform はTransformと同じ値を返し、加えて結果の列構成をSchemaとして返す
func (fb *FeatureBuilder) FitTransform(raw *frame.Frame) (*frame.Frame, Schema) {
	out := fb.Transform(raw)

	runID := fb.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	schema := Schema{
		RunID:     runID,
		CreatedAt: fb.now().UTC(),
		Columns:   make([]ColumnSpec, 0, out.NumCols()),
	}
	for _, c := range out.Columns() {
		schema.Columns = append(schema.Columns, ColumnSpec{Name: c.Name, Kind: c.Kind.String()})
	}
	return out, schema
}

// TransformWithSchema は列の型を学習時のSchemaに合わせてからTransformを適用する
//
// 型が既に一致している列の値は変更しない。ゼロ値のSchemaを渡した場合は
// Transformと同じ結果になる。
func (fb *FeatureBuilder) TransformWithSchema(raw *frame.Frame, schema Schema) *frame.Frame {
	if schema.IsZero() {
		return fb.Transform(raw)
	}

	coerced := raw.Drop()
	for _, spec := range schema.Columns {
		c, ok := coerced.Column(spec.Name)
		if !ok {
			continue
		}
		kind, err := frame.ParseKind(spec.Kind)
		if err != nil || c.Kind == kind {
			continue
		}
		switch kind {
		case frame.Numeric:
			conv, bad := c.ToNumeric()
			if bad > 0 {
				errors.Warn(errors.NewDataConversionWarning(c.Name, c.Kind.String(), kind.String(),
					"values that do not parse as numbers become missing"))
			}
			mustSet(coerced, conv)
		case frame.Categorical:
			mustSet(coerced, c.ToCategorical())
		}
	}
	return fb.Transform(coerced)
}

// calendarColumn は閉じた対応表で列を数値化する。対応表にない値、欠損、
// 数値列は 0 になる
func calendarColumn(name string, src *frame.Column, table map[string]float64) *frame.Column {
	out := make([]float64, src.Len())
	if src.Kind != frame.Categorical {
		return frame.NewNumeric(name, out)
	}
	for i, v := range src.Str {
		if src.Null[i] {
			continue
		}
		out[i] = table[v]
	}
	return frame.NewNumeric(name, out)
}

// safeRatio は num/den を計算する。分母が 0 または NaN の行は 0
func safeRatio(num, den []float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		if den[i] == 0 || math.IsNaN(den[i]) {
			continue
		}
		out[i] = num[i] / den[i]
	}
	return out
}

func combine(a, b []float64, op func(x, y float64) float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = op(a[i], b[i])
	}
	return out
}

// fillNulls は数値列の NaN を 0、カテゴリ列の欠損を "Unknown" で置き換える
// 列はTransform内でクローン済みなので直接書き換えてよい
func fillNulls(f *frame.Frame) {
	for _, c := range f.Columns() {
		switch c.Kind {
		case frame.Numeric:
			for i, v := range c.Num {
				if math.IsNaN(v) {
					c.Num[i] = 0
				}
			}
		case frame.Categorical:
			for i := range c.Str {
				if c.Null[i] {
					c.Str[i] = UnknownCategory
					c.Null[i] = false
				}
			}
		}
	}
}

// mustSet は同じ行数の列を追加する。行数は常に一致するため失敗しない
func mustSet(f *frame.Frame, c *frame.Column) {
	if err := f.Set(c); err != nil {
		panic(err)
	}
}
