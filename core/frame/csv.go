package frame

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// naTokens are the cell values read as missing, matching the defaults of
// common dataframe CSV readers.
var naTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
	"<NA>": true,
	"#N/A": true,
}

// IsNA reports whether a raw cell is a missing-value token.
func IsNA(cell string) bool {
	return naTokens[strings.TrimSpace(cell)]
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReadCSV reads a header row followed by records. A column is numeric when
// every non-missing cell parses as a float, otherwise categorical. A column
// with no values at all is numeric.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.Wrap(errors.ErrEmptyData, "csv has no header")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if seen[h] {
			return nil, errors.NewValidationError("csv header", "duplicate column name", h)
		}
		seen[h] = true
	}

	cells := make([][]string, len(header))
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read csv record")
		}
		for j := range header {
			cells[j] = append(cells[j], rec[j])
		}
	}

	f := &Frame{index: make(map[string]int, len(header))}
	for j, name := range header {
		if err := f.Set(inferColumn(name, cells[j])); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func inferColumn(name string, raw []string) *Column {
	nums := make([]float64, len(raw))
	numeric := true
	for i, s := range raw {
		if IsNA(s) {
			nums[i] = math.NaN()
			continue
		}
		v, ok := parseFloat(s)
		if !ok {
			numeric = false
			break
		}
		nums[i] = v
	}
	if numeric {
		return NewNumeric(name, nums)
	}

	null := make([]bool, len(raw))
	for i, s := range raw {
		null[i] = IsNA(s)
	}
	return NewCategorical(name, raw, null)
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	f, err := ReadCSV(file)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return f, nil
}

// WriteCSV writes a header row and one record per row.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Names()); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	rec := make([]string, f.NumCols())
	for i := 0; i < f.NumRows(); i++ {
		for j, c := range f.cols {
			rec[j] = c.Format(i)
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "write csv record")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// WriteCSVFile creates or truncates path and writes f to it.
func WriteCSVFile(path string, f *Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := WriteCSV(file, f); err != nil {
		file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "close %s", path)
}
