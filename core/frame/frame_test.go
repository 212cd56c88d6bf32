package frame

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

func TestReadCSVInfersKinds(t *testing.T) {
	in := "claim_number,annual_income,month,empty,fraud\n" +
		"1,50000,JAN,,0\n" +
		"2,NA,FEB,NaN,1\n" +
		"3,42000.5,,null,0\n"

	f, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, 3, f.NumRows())
	assert.Equal(t, []string{"claim_number", "annual_income", "month", "empty", "fraud"}, f.Names())

	income, ok := f.Column("annual_income")
	require.True(t, ok)
	assert.Equal(t, Numeric, income.Kind)
	assert.Equal(t, 50000.0, income.Num[0])
	assert.True(t, math.IsNaN(income.Num[1]))

	month, _ := f.Column("month")
	assert.Equal(t, Categorical, month.Kind)
	assert.Equal(t, "FEB", month.Str[1])
	assert.True(t, month.IsNull(2))
	assert.Equal(t, 1, month.NullCount())

	empty, _ := f.Column("empty")
	assert.Equal(t, Numeric, empty.Kind, "all-null column is numeric")
	assert.Equal(t, 3, empty.NullCount())
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty input", ""},
		{"duplicate header", "a,a\n1,2\n"},
		{"ragged record", "a,b\n1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}

	_, err := ReadCSV(strings.NewReader(""))
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestWriteCSVRoundTrip(t *testing.T) {
	f := MustNew(
		NewNumeric("oof_proba", []float64{0.25, math.NaN(), 1}),
		NewCategorical("state", []string{"CA", "", "NY"}, []bool{false, true, false}),
	)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, f))
	assert.Equal(t, "oof_proba,state\n0.25,CA\n,\n1,NY\n", buf.String())

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteCSVFile(path, f))
	back, err := ReadCSVFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.Names(), back.Names())
	assert.Equal(t, 3, back.NumRows())
}

func TestFrameSetDropTake(t *testing.T) {
	f := MustNew(
		NewNumeric("a", []float64{1, 2, 3}),
		NewCategorical("b", []string{"x", "y", "z"}, nil),
	)

	err := f.Set(NewNumeric("c", []float64{1}))
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))

	require.NoError(t, f.Set(NewNumeric("a", []float64{9, 8, 7})))
	assert.Equal(t, []string{"a", "b"}, f.Names(), "replacing keeps position")

	dropped := f.Drop("a")
	assert.Equal(t, []string{"b"}, dropped.Names())
	assert.True(t, f.Has("a"))

	sub := f.Take([]int{2, 0})
	assert.Equal(t, 2, sub.NumRows())
	a, _ := sub.Numeric("a")
	assert.Equal(t, []float64{7, 9}, a)
	b, _ := sub.Column("b")
	assert.Equal(t, []string{"z", "x"}, b.Str)

	_, ok := f.Numeric("b")
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	f := MustNew(NewNumeric("a", []float64{1, 2}))
	g := f.Clone()
	g.cols[0].Num[0] = 100

	a, _ := f.Numeric("a")
	assert.Equal(t, 1.0, a[0])
}

func TestColumnConversions(t *testing.T) {
	cat := NewCategorical("age", []string{"31", "abc", ""}, []bool{false, false, true})
	num, bad := cat.ToNumeric()
	assert.Equal(t, 1, bad)
	assert.Equal(t, 31.0, num.Num[0])
	assert.True(t, math.IsNaN(num.Num[1]))
	assert.True(t, math.IsNaN(num.Num[2]))

	back := NewNumeric("zip", []float64{94105, math.NaN()}).ToCategorical()
	assert.Equal(t, Categorical, back.Kind)
	assert.Equal(t, "94105", back.Str[0])
	assert.True(t, back.Null[1])

	same, bad := num.ToNumeric()
	assert.Same(t, num, same)
	assert.Zero(t, bad)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("categorical")
	require.NoError(t, err)
	assert.Equal(t, Categorical, k)
	assert.Equal(t, "numeric", Numeric.String())

	_, err = ParseKind("text")
	assert.Error(t, err)
}
