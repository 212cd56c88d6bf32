// Package frame provides a small column-oriented table used by the pipeline.
//
// A Frame is an ordered set of named columns of equal length. Columns are
// either Numeric (float64, NaN marks a missing value) or Categorical
// (string values plus a null mask).
package frame

import (
	"math"
	"strconv"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// Kind is the storage type of a column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "numeric":
		return Numeric, nil
	case "categorical":
		return Categorical, nil
	default:
		return Numeric, errors.NewValidationError("kind", "must be numeric or categorical", s)
	}
}

// Column is a named vector. Exactly one of Num or Str is populated,
// according to Kind.
type Column struct {
	Name string
	Kind Kind
	Num  []float64
	Str  []string
	Null []bool
}

// NewNumeric creates a numeric column. NaN entries are missing.
func NewNumeric(name string, values []float64) *Column {
	return &Column{Name: name, Kind: Numeric, Num: values}
}

// NewCategorical creates a categorical column. A nil null mask means no nulls.
func NewCategorical(name string, values []string, null []bool) *Column {
	if null == nil {
		null = make([]bool, len(values))
	}
	return &Column{Name: name, Kind: Categorical, Str: values, Null: null}
}

// Len returns the number of rows.
func (c *Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Num)
	}
	return len(c.Str)
}

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool {
	if c.Kind == Numeric {
		return math.IsNaN(c.Num[i])
	}
	return c.Null[i]
}

// NullCount returns the number of missing rows.
func (c *Column) NullCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			n++
		}
	}
	return n
}

// Format renders row i for CSV output. Missing values render as "".
func (c *Column) Format(i int) string {
	if c.IsNull(i) {
		return ""
	}
	if c.Kind == Numeric {
		return strconv.FormatFloat(c.Num[i], 'g', -1, 64)
	}
	return c.Str[i]
}

// Clone returns a deep copy.
func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Num != nil {
		out.Num = append([]float64(nil), c.Num...)
	}
	if c.Str != nil {
		out.Str = append([]string(nil), c.Str...)
	}
	if c.Null != nil {
		out.Null = append([]bool(nil), c.Null...)
	}
	return out
}

// ToNumeric converts c to a numeric column. Null cells and cells that do not
// parse as a float become NaN; bad counts the latter. A numeric column is
// returned unchanged.
func (c *Column) ToNumeric() (out *Column, bad int) {
	if c.Kind == Numeric {
		return c, 0
	}
	vals := make([]float64, len(c.Str))
	for i, s := range c.Str {
		if c.Null[i] {
			vals[i] = math.NaN()
			continue
		}
		v, ok := parseFloat(s)
		if !ok {
			bad++
			v = math.NaN()
		}
		vals[i] = v
	}
	return NewNumeric(c.Name, vals), bad
}

// ToCategorical converts c to a categorical column using Format. A
// categorical column is returned unchanged.
func (c *Column) ToCategorical() *Column {
	if c.Kind == Categorical {
		return c
	}
	vals := make([]string, len(c.Num))
	null := make([]bool, len(c.Num))
	for i := range c.Num {
		null[i] = c.IsNull(i)
		vals[i] = c.Format(i)
	}
	return NewCategorical(c.Name, vals, null)
}

// take returns the rows at idx as a new column.
func (c *Column) take(idx []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Numeric {
		out.Num = make([]float64, len(idx))
		for j, i := range idx {
			out.Num[j] = c.Num[i]
		}
		return out
	}
	out.Str = make([]string, len(idx))
	out.Null = make([]bool, len(idx))
	for j, i := range idx {
		out.Str[j] = c.Str[i]
		out.Null[j] = c.Null[i]
	}
	return out
}

// Frame is an ordered collection of equal-length columns.
type Frame struct {
	cols  []*Column
	index map[string]int
	nrows int
}

// New builds a frame. Columns must have equal length and unique names.
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if err := f.Set(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// MustNew is New for statically known inputs; it panics on error.
func MustNew(cols ...*Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int { return f.nrows }

// NumCols returns the number of columns.
func (f *Frame) NumCols() int { return len(f.cols) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order. The slice is a copy; the columns are not.
func (f *Frame) Columns() []*Column {
	return append([]*Column(nil), f.cols...)
}

// Column returns the named column.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// Has reports whether the named column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Numeric returns the values of a numeric column. ok is false when the column
// is absent or categorical.
func (f *Frame) Numeric(name string) (values []float64, ok bool) {
	c, found := f.Column(name)
	if !found || c.Kind != Numeric {
		return nil, false
	}
	return c.Num, true
}

// Set appends c, or replaces the column with the same name in place.
func (f *Frame) Set(c *Column) error {
	if len(f.cols) > 0 && c.Len() != f.nrows {
		return errors.NewDimensionError("frame.Set("+c.Name+")", f.nrows, c.Len(), 0)
	}
	if len(f.cols) == 0 {
		f.nrows = c.Len()
	}
	if i, ok := f.index[c.Name]; ok {
		f.cols[i] = c
		return nil
	}
	f.index[c.Name] = len(f.cols)
	f.cols = append(f.cols, c)
	return nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := &Frame{index: make(map[string]int, len(f.cols)), nrows: f.nrows}
	for i, c := range f.cols {
		out.cols = append(out.cols, c.Clone())
		out.index[c.Name] = i
	}
	return out
}

// Drop returns a frame without the named columns. Columns are shared with f.
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := &Frame{index: make(map[string]int, len(f.cols)), nrows: f.nrows}
	for _, c := range f.cols {
		if skip[c.Name] {
			continue
		}
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c)
	}
	return out
}

// Take returns a new frame holding the rows at idx, in that order.
func (f *Frame) Take(idx []int) *Frame {
	out := &Frame{index: make(map[string]int, len(f.cols)), nrows: len(idx)}
	for i, c := range f.cols {
		out.cols = append(out.cols, c.take(idx))
		out.index[c.Name] = i
	}
	return out
}
