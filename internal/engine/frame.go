package engine

import (
	"errors"
	"fmt"
)

// Frame is a column-oriented table of samples. All columns must have the
// same length.
type Frame map[string][]float64

// Len returns the number of rows, or 0 for an empty frame.
func (f Frame) Len() int {
	for _, col := range f {
		return len(col)
	}
	return 0
}

// Validate checks that every column has the same length.
func (f Frame) Validate() error {
	n := -1
	for name, col := range f {
		if n < 0 {
			n = len(col)
			continue
		}
		if len(col) != n {
			return fmt.Errorf("column %q has %d rows, expected %d", name, len(col), n)
		}
	}
	return nil
}

// Column returns the named column or an error when it is missing.
func (f Frame) Column(name string) ([]float64, error) {
	col, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("missing column %q", name)
	}
	return col, nil
}

// rows converts the named feature columns to a row-major matrix.
func (f Frame) rows(features []string) ([][]float64, error) {
	if len(features) == 0 {
		return nil, errors.New("no feature columns given")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	cols := make([][]float64, len(features))
	for i, name := range features {
		col, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	n := len(cols[0])
	if n == 0 {
		return nil, errors.New("frame has no rows")
	}
	out := make([][]float64, n)
	for r := 0; r < n; r++ {
		row := make([]float64, len(cols))
		for c := range cols {
			row[c] = cols[c][r]
		}
		out[r] = row
	}
	return out, nil
}
