// Package xlsx is a pipeline destination backed by a local Excel workbook,
// for running the sync without access to Google Sheets.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"db_sheets_sync/internal/pipeline"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const maxColumnWidth = 60

type Workbook struct {
	path string
	file *excelize.File
}

// Open loads the workbook at path, or starts a new one if the file does not
// exist. Changes are written back by Close.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", path).Msg("Workbook not found, creating it")
		f, err = excelize.NewFile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return &Workbook{path: path, file: f}, nil
}

func (w *Workbook) Clear(ctx context.Context, sheet string) error {
	idx, err := w.file.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("failed to look up sheet %q: %w", sheet, err)
	}
	if idx == -1 {
		if _, err := w.file.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", sheet, err)
		}
		return nil
	}

	rows, err := w.file.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	for r := len(rows); r >= 1; r-- {
		if err := w.file.RemoveRow(sheet, r); err != nil {
			return fmt.Errorf("failed to clear row %d of %q: %w", r, sheet, err)
		}
	}
	return nil
}

func (w *Workbook) Write(ctx context.Context, sheet string, startRow int, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, startRow+i)
		if err != nil {
			return err
		}
		if err := w.file.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %q: %w", startRow+i, sheet, err)
		}
	}
	return nil
}

func (w *Workbook) Read(ctx context.Context, sheet string, rows int) ([][]any, error) {
	all, err := w.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	out := make([][]any, 0, min(rows, len(all)))
	for _, row := range all[:min(rows, len(all))] {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		out = append(out, cells)
	}
	return out, nil
}

func (w *Workbook) Format(ctx context.Context, sheet string, region pipeline.Region, style pipeline.Style) error {
	id, err := w.file.NewStyle(excelStyle(style))
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	topLeft, err := excelize.CoordinatesToCellName(region.StartCol, region.StartRow)
	if err != nil {
		return err
	}
	bottomRight, err := excelize.CoordinatesToCellName(region.EndCol, region.EndRow)
	if err != nil {
		return err
	}
	return w.file.SetCellStyle(sheet, topLeft, bottomRight, id)
}

func (w *Workbook) FreezeRows(ctx context.Context, sheet string, rows int) error {
	return w.file.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      rows,
		TopLeftCell: fmt.Sprintf("A%d", rows+1),
		ActivePane:  "bottomLeft",
	})
}

// AutoResize sets each column's width from its longest value.
func (w *Workbook) AutoResize(ctx context.Context, sheet string, columns int) error {
	rows, err := w.file.GetRows(sheet)
	if err != nil {
		return err
	}

	widths := make([]int, columns)
	for _, row := range rows {
		for c := 0; c < len(row) && c < columns; c++ {
			widths[c] = max(widths[c], utf8.RuneCountInString(row[c]))
		}
	}

	for c, width := range widths {
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := w.file.SetColWidth(sheet, name, name, float64(min(width+2, maxColumnWidth))); err != nil {
			return err
		}
	}
	return nil
}

// Close saves the workbook to its path.
func (w *Workbook) Close() error {
	if err := w.file.SaveAs(w.path); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return w.file.Close()
}

func excelStyle(style pipeline.Style) *excelize.Style {
	s := &excelize.Style{
		Font: &excelize.Font{
			Bold:   style.Bold,
			Italic: style.Italic,
			Size:   float64(style.FontSize),
		},
	}
	if style.Foreground != nil {
		s.Font.Color = "#" + style.Foreground.Hex()
	}
	if style.Background != nil {
		s.Fill = excelize.Fill{Type: "pattern", Color: []string{"#" + style.Background.Hex()}, Pattern: 1}
	}
	if style.Align != "" {
		s.Alignment = &excelize.Alignment{Horizontal: strings.ToLower(style.Align)}
	}
	return s
}
