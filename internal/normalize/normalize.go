// Package normalize converts typed database cells into values that can be sent
// to a spreadsheet: strings, numbers and booleans only.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02 15:04:05"
	TimeLayout      = "15:04:05"
)

// ErrShapeMismatch is matched by every *ShapeMismatchError.
var ErrShapeMismatch = errors.New("row length does not match header length")

// ShapeMismatchError reports a row whose cell count differs from the header.
type ShapeMismatchError struct {
	Row     int
	Columns int
	Cells   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("row %d has %d cells but header has %d columns", e.Row, e.Cells, e.Columns)
}

func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// Value converts one cell into a spreadsheet-safe scalar.
//
// Dates and timestamps become fixed-layout text, null becomes "", and decimals
// become float64. The decimal conversion is lossy for values that need more
// than 15-17 significant digits; that matches what the sheet would display
// anyway. A decimal whose text cannot be parsed is sent as text, and NaN or
// infinite numbers are sent as "NaN", "Infinity" or "-Infinity" since they have
// no JSON encoding.
func Value(c Cell) any {
	switch c.Kind {
	case KindNull:
		return ""
	case KindText:
		return c.Text
	case KindInteger:
		return c.Int
	case KindFloat:
		return finite(c.Float)
	case KindBool:
		return c.Bool
	case KindDecimal:
		f, err := strconv.ParseFloat(c.Text, 64)
		if err != nil {
			return c.Text
		}
		return finite(f)
	case KindDate:
		return c.Time.Format(DateLayout)
	case KindTimestamp:
		return c.Time.Format(TimestampLayout)
	case KindTime:
		return c.Time.Format(TimeLayout)
	default:
		return c.Raw
	}
}

func finite(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

// ProjectRow normalizes every cell of row positionally. The row index is only
// used for error reporting.
func ProjectRow(header []string, index int, row []Cell) ([]any, error) {
	if len(row) != len(header) {
		return nil, &ShapeMismatchError{Row: index, Columns: len(header), Cells: len(row)}
	}

	out := make([]any, len(row))
	for i, c := range row {
		out[i] = Value(c)
	}
	return out, nil
}

// ProjectRows applies ProjectRow to every row and stops at the first mismatch.
func ProjectRows(header []string, rows [][]Cell) ([][]any, error) {
	out := make([][]any, 0, len(rows))
	for i, row := range rows {
		projected, err := ProjectRow(header, i, row)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}
