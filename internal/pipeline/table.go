package pipeline

import (
	"fmt"
	"time"

	"db_sheets_sync/internal/normalize"
	"db_sheets_sync/internal/source"
)

// Table is a query result after normalization, ready to be written.
type Table struct {
	Source   string
	Header   []string
	Rows     [][]any
	Metadata string
}

// Columns is the header width, never less than 1.
func (t *Table) Columns() int {
	if len(t.Header) == 0 {
		return 1
	}
	return len(t.Header)
}

// BuildTable normalizes res. The metadata line is left empty when
// withMetadata is false.
func BuildTable(table string, res *source.Result, now time.Time, withMetadata bool) (*Table, error) {
	rows, err := normalize.ProjectRows(res.Columns, res.Rows)
	if err != nil {
		return nil, err
	}

	t := &Table{
		Source: table,
		Header: append([]string(nil), res.Columns...),
		Rows:   rows,
	}
	if withMetadata {
		t.Metadata = MetadataLine(table, now, len(rows))
	}
	return t, nil
}

// MetadataLine describes where and when the sheet contents came from.
func MetadataLine(table string, now time.Time, rows int) string {
	return fmt.Sprintf("Source: %s | Updated: %s | Rows: %d | Status: OK",
		table, now.Format(normalize.TimestampLayout), rows)
}
