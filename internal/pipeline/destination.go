package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Destination is a spreadsheet document holding one sheet per target.
// Rows and columns are 1-based.
type Destination interface {
	// Clear removes every value from sheet, creating the sheet if needed.
	Clear(ctx context.Context, sheet string) error
	// Write stores rows starting at column A of startRow.
	Write(ctx context.Context, sheet string, startRow int, rows [][]any) error
	// Format applies style to every cell of region.
	Format(ctx context.Context, sheet string, region Region, style Style) error
}

// Layouter is implemented by destinations that can freeze header rows and
// size columns to fit their content.
type Layouter interface {
	FreezeRows(ctx context.Context, sheet string, rows int) error
	AutoResize(ctx context.Context, sheet string, columns int) error
}

// Reader is implemented by destinations that can read a sheet back.
type Reader interface {
	// Read returns at most rows rows from the top of sheet.
	Read(ctx context.Context, sheet string, rows int) ([][]any, error)
}

// Region is an inclusive rectangle of cells.
type Region struct {
	StartRow int
	EndRow   int
	StartCol int
	EndCol   int
}

// A1 renders the region as a spreadsheet range reference, e.g. "A1:D3".
func (r Region) A1() string {
	return fmt.Sprintf("%s%d:%s%d", ColumnLetter(r.StartCol), r.StartRow, ColumnLetter(r.EndCol), r.EndRow)
}

// RowRange returns the range reference for rows starting at startRow and
// spanning columns cells, qualified with the sheet name.
func RowRange(sheet string, startRow, rows, columns int) string {
	if columns < 1 {
		columns = 1
	}
	r := Region{StartRow: startRow, EndRow: startRow + rows - 1, StartCol: 1, EndCol: columns}
	return QuoteSheet(sheet) + "!" + r.A1()
}

// QuoteSheet wraps a sheet name in single quotes as A1 notation requires.
func QuoteSheet(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// ColumnLetter converts a 1-based column number to letters: 1 → A, 27 → AA.
func ColumnLetter(col int) string {
	if col < 1 {
		return "A"
	}
	var letters []byte
	for col > 0 {
		col--
		letters = append([]byte{byte('A' + col%26)}, letters...)
		col /= 26
	}
	return string(letters)
}

type Color struct {
	Red   float64
	Green float64
	Blue  float64
}

// Hex renders the color as "RRGGBB".
func (c Color) Hex() string {
	return fmt.Sprintf("%02X%02X%02X", channel(c.Red), channel(c.Green), channel(c.Blue))
}

func channel(v float64) int {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return int(v*255 + 0.5)
	}
}

type Style struct {
	Background *Color
	Foreground *Color
	Bold       bool
	Italic     bool
	FontSize   int
	// Align is LEFT, CENTER or RIGHT. Empty leaves alignment unchanged.
	Align string
}

// Theme holds the colors used when formatting one target's sheet.
type Theme struct {
	Name   string
	Header Color
}

var themes = map[string]Theme{
	"blue":   {Name: "blue", Header: Color{Red: 0.26, Green: 0.52, Blue: 0.96}},
	"green":  {Name: "green", Header: Color{Red: 0.20, Green: 0.66, Blue: 0.33}},
	"orange": {Name: "orange", Header: Color{Red: 1.00, Green: 0.60, Blue: 0.00}},
	"purple": {Name: "purple", Header: Color{Red: 0.40, Green: 0.23, Blue: 0.72}},
	"gray":   {Name: "gray", Header: Color{Red: 0.45, Green: 0.45, Blue: 0.45}},
}

// ThemeFor returns the named theme, falling back to blue.
func ThemeFor(name string) (Theme, bool) {
	t, ok := themes[strings.ToLower(name)]
	if !ok {
		return themes["blue"], false
	}
	return t, true
}

var (
	white = Color{Red: 1, Green: 1, Blue: 1}
	gray  = Color{Red: 0.4, Green: 0.4, Blue: 0.4}
)

func (t Theme) HeaderStyle() Style {
	bg := t.Header
	return Style{Background: &bg, Foreground: &white, Bold: true, FontSize: 11, Align: "CENTER"}
}

func (t Theme) MetadataStyle() Style {
	return Style{Foreground: &gray, Italic: true, FontSize: 9, Align: "LEFT"}
}
