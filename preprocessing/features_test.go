package preprocessing

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fraudkit/core/frame"
)

func claimsFrame() *frame.Frame {
	nan := math.NaN()
	return frame.MustNew(
		frame.NewCategorical("month", []string{"JAN", "dec", "DEC", ""}, []bool{false, false, false, true}),
		frame.NewCategorical("claim_day_of_week", []string{"Monday", "Sunday", "monday", "Funday"}, nil),
		frame.NewNumeric("claim_est_payout", []float64{1000, 500, nan, 300}),
		frame.NewNumeric("annual_income", []float64{50000, 0, 20000, nan}),
		frame.NewNumeric("driver_age", []float64{40, 30, nan, 25}),
		frame.NewNumeric("vehicle_age", []float64{4, 0, 3, 5}),
		frame.NewNumeric("liab_prct", []float64{50, 10, 20, nan}),
		frame.NewCategorical("channel", []string{"Broker", "", "Online", "Phone"}, []bool{false, true, false, false}),
	)
}

func num(t *testing.T, f *frame.Frame, name string) []float64 {
	t.Helper()
	v, ok := f.Numeric(name)
	require.True(t, ok, "numeric column %s", name)
	return v
}

func TestTransformDerivedFields(t *testing.T) {
	out := NewFeatureBuilder().Transform(claimsFrame())

	assert.Equal(t, []float64{1, 0, 12, 0}, num(t, out, MonthNumColumn))
	assert.Equal(t, []float64{1, 7, 0, 0}, num(t, out, DayOfWeekNumColumn))

	// denominator 0 or missing gives exactly 0, missing numerator fills to 0
	assert.Equal(t, []float64{0.02, 0, 0, 0}, num(t, out, PayoutIncomeRatioColumn))
	assert.Equal(t, []float64{10, 0, 0, 5}, num(t, out, DriverVehicleAgeRatioColumn))
	assert.Equal(t, []float64{36, 30, 0, 20}, num(t, out, DriverVehicleAgeDiffColumn))
	assert.Equal(t, []float64{50000, 5000, 0, 0}, num(t, out, LiabPayoutColumn))

	// null fill
	assert.Equal(t, []float64{1000, 500, 0, 300}, num(t, out, "claim_est_payout"))
	channel, ok := out.Column("channel")
	require.True(t, ok)
	assert.Equal(t, []string{"Broker", UnknownCategory, "Online", "Phone"}, channel.Str)
	assert.Zero(t, channel.NullCount())
	month, _ := out.Column("month")
	assert.Equal(t, UnknownCategory, month.Str[3])

	assert.Equal(t, []string{
		"month", "claim_day_of_week", "claim_est_payout", "annual_income", "driver_age",
		"vehicle_age", "liab_prct", "channel",
		MonthNumColumn, DayOfWeekNumColumn, PayoutIncomeRatioColumn,
		DriverVehicleAgeRatioColumn, DriverVehicleAgeDiffColumn, LiabPayoutColumn,
	}, out.Names())
}

func TestTransformDoesNotMutateInput(t *testing.T) {
	raw := claimsFrame()
	before := raw.Clone()
	NewFeatureBuilder().Transform(raw)

	assert.Equal(t, before.Names(), raw.Names())
	payout, _ := raw.Numeric("claim_est_payout")
	assert.True(t, math.IsNaN(payout[2]))
	channel, _ := raw.Column("channel")
	assert.True(t, channel.IsNull(1))
}

func TestTransformOmitsFieldsWithoutSources(t *testing.T) {
	tests := []struct {
		name    string
		raw     *frame.Frame
		present []string
		absent  []string
	}{
		{
			name:    "no sources",
			raw:     frame.MustNew(frame.NewNumeric("x", []float64{1, math.NaN()})),
			present: []string{"x"},
			absent:  []string{MonthNumColumn, DayOfWeekNumColumn, PayoutIncomeRatioColumn, DriverVehicleAgeDiffColumn, LiabPayoutColumn},
		},
		{
			name: "categorical source",
			raw: frame.MustNew(
				frame.NewCategorical("driver_age", []string{"old"}, nil),
				frame.NewNumeric("vehicle_age", []float64{2}),
			),
			absent: []string{DriverVehicleAgeRatioColumn, DriverVehicleAgeDiffColumn},
		},
		{
			name: "one side only",
			raw: frame.MustNew(
				frame.NewNumeric("claim_est_payout", []float64{2}),
			),
			absent: []string{PayoutIncomeRatioColumn, LiabPayoutColumn},
		},
		{
			name:    "numeric month maps to zero",
			raw:     frame.MustNew(frame.NewNumeric("month", []float64{3})),
			present: []string{MonthNumColumn},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewFeatureBuilder().Transform(tt.raw)
			for _, name := range tt.present {
				assert.True(t, out.Has(name), name)
			}
			for _, name := range tt.absent {
				assert.False(t, out.Has(name), name)
			}
		})
	}

	out := NewFeatureBuilder().Transform(frame.MustNew(frame.NewNumeric("month", []float64{3})))
	assert.Equal(t, []float64{0}, num(t, out, MonthNumColumn))
}

func TestFitTransformSchema(t *testing.T) {
	fb := NewFeatureBuilder().WithRunID("run-1")
	fb.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	raw := claimsFrame()
	out, schema := fb.FitTransform(raw)
	assert.Equal(t, NewFeatureBuilder().Transform(raw), out)

	assert.Equal(t, "run-1", schema.RunID)
	assert.Equal(t, out.Names(), schema.Names())
	assert.Equal(t, []string{"month", "claim_day_of_week", "channel"}, schema.ColumnsOfKind(frame.Categorical))

	_, generated := NewFeatureBuilder().FitTransform(raw)
	assert.NotEmpty(t, generated.RunID)
	assert.False(t, generated.CreatedAt.IsZero())
}

func TestTransformWithSchemaCoercesKinds(t *testing.T) {
	_, schema := NewFeatureBuilder().FitTransform(claimsFrame())

	// At inference every channel value is missing, so CSV inference makes it numeric.
	test := frame.MustNew(
		frame.NewNumeric("channel", []float64{math.NaN(), math.NaN()}),
		frame.NewCategorical("driver_age", []string{"40", "30"}, nil),
		frame.NewNumeric("vehicle_age", []float64{4, 3}),
	)
	out := NewFeatureBuilder().TransformWithSchema(test, schema)

	channel, ok := out.Column("channel")
	require.True(t, ok)
	assert.Equal(t, frame.Categorical, channel.Kind)
	assert.Equal(t, []string{UnknownCategory, UnknownCategory}, channel.Str)
	assert.Equal(t, []float64{36, 27}, num(t, out, DriverVehicleAgeDiffColumn))

	// matching kinds are untouched
	assert.Equal(t, []float64{4, 3}, num(t, out, "vehicle_age"))
}

func TestTransformWithZeroSchema(t *testing.T) {
	raw := claimsFrame()
	fb := NewFeatureBuilder()
	assert.Equal(t, fb.Transform(raw), fb.TransformWithSchema(raw, Schema{}))
}

func TestSchemaSaveLoad(t *testing.T) {
	_, schema := NewFeatureBuilder().FitTransform(claimsFrame())
	path := filepath.Join(t.TempDir(), SchemaFileName)

	require.NoError(t, SaveSchema(path, schema))
	loaded, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal(t, schema.RunID, loaded.RunID)
	assert.True(t, schema.CreatedAt.Equal(loaded.CreatedAt))
	assert.Equal(t, schema.Columns, loaded.Columns)
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr bool
	}{
		{"ok", Schema{Columns: []ColumnSpec{{"a", "numeric"}, {"b", "categorical"}}}, false},
		{"duplicate", Schema{Columns: []ColumnSpec{{"a", "numeric"}, {"a", "numeric"}}}, true},
		{"unknown kind", Schema{Columns: []ColumnSpec{{"a", "text"}}}, true},
		{"empty name", Schema{Columns: []ColumnSpec{{"", "numeric"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
