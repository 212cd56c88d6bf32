package gbdt

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fraudkit/core/frame"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// Feature describes one model input column.
type Feature struct {
	Name string     `msgpack:"name"`
	Kind frame.Kind `msgpack:"kind"`
	// Levels is the sorted vocabulary of a categorical feature. A level's
	// code is its index.
	Levels []string `msgpack:"levels,omitempty"`
}

// Encoder maps frames onto the numeric design matrix the trees split on.
// Categorical values become level codes; nulls, unseen levels and absent
// columns become NaN.
type Encoder struct {
	Features []Feature `msgpack:"features"`

	codes []map[string]int
}

// fitEncoder records the column order, kinds and categorical vocabularies of X.
func fitEncoder(X *frame.Frame) *Encoder {
	e := &Encoder{Features: make([]Feature, 0, X.NumCols())}
	for _, c := range X.Columns() {
		f := Feature{Name: c.Name, Kind: c.Kind}
		if c.Kind == frame.Categorical {
			seen := make(map[string]struct{})
			for i, v := range c.Str {
				if c.Null[i] {
					continue
				}
				if _, ok := seen[v]; !ok {
					seen[v] = struct{}{}
					f.Levels = append(f.Levels, v)
				}
			}
			sort.Strings(f.Levels)
		}
		e.Features = append(e.Features, f)
	}
	e.index()
	return e
}

// index rebuilds the level lookup tables, after fitting or decoding.
func (e *Encoder) index() {
	e.codes = make([]map[string]int, len(e.Features))
	for j, f := range e.Features {
		if f.Kind != frame.Categorical {
			continue
		}
		m := make(map[string]int, len(f.Levels))
		for code, level := range f.Levels {
			m[level] = code
		}
		e.codes[j] = m
	}
}

// NumFeatures returns the number of model inputs.
func (e *Encoder) NumFeatures() int { return len(e.Features) }

// Names returns the feature names in model order.
func (e *Encoder) Names() []string {
	names := make([]string, len(e.Features))
	for j, f := range e.Features {
		names[j] = f.Name
	}
	return names
}

// Encode builds the design matrix for X. Columns are looked up by name, so
// X may contain extra columns or a different order. A column missing from X
// scores as missing and raises a DataConversionWarning; a column of the
// other kind is converted.
func (e *Encoder) Encode(X *frame.Frame) (*mat.Dense, error) {
	n := X.NumRows()
	if n == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "gbdt: encode")
	}
	if len(e.Features) == 0 {
		return nil, errors.NewValueError("gbdt.Encode", "encoder has no features")
	}

	data := make([]float64, n*len(e.Features))
	p := len(e.Features)
	for j, f := range e.Features {
		col, ok := X.Column(f.Name)
		if !ok {
			errors.Warn(errors.NewDataConversionWarning(f.Name, "absent", f.Kind.String(),
				"column not present at scoring time, treated as missing"))
			for i := 0; i < n; i++ {
				data[i*p+j] = math.NaN()
			}
			continue
		}

		switch f.Kind {
		case frame.Numeric:
			if col.Kind != frame.Numeric {
				conv, bad := col.ToNumeric()
				errors.Warn(errors.NewDataConversionWarning(f.Name, col.Kind.String(), f.Kind.String(),
					fmt.Sprintf("model was trained on a numeric column, %d unparseable values treated as missing", bad)))
				col = conv
			}
			for i, v := range col.Num {
				data[i*p+j] = v
			}

		case frame.Categorical:
			if col.Kind != frame.Categorical {
				col = col.ToCategorical()
			}
			codes := e.codes[j]
			for i, v := range col.Str {
				code, known := codes[v]
				if col.Null[i] || !known {
					data[i*p+j] = math.NaN()
					continue
				}
				data[i*p+j] = float64(code)
			}
		}
	}
	return mat.NewDense(n, p, data), nil
}
