package pipeline

import (
	"context"
	"fmt"
	"strings"

	"db_sheets_sync/internal/source"
)

type destCall struct {
	op     string
	sheet  string
	start  int
	rows   [][]any
	region Region
	style  Style
}

type fakeDestination struct {
	calls     []destCall
	clearErr  error
	writeErr  error
	formatErr error
}

func (d *fakeDestination) Clear(ctx context.Context, sheet string) error {
	d.calls = append(d.calls, destCall{op: "clear", sheet: sheet})
	return d.clearErr
}

func (d *fakeDestination) Write(ctx context.Context, sheet string, startRow int, rows [][]any) error {
	d.calls = append(d.calls, destCall{op: "write", sheet: sheet, start: startRow, rows: rows})
	return d.writeErr
}

func (d *fakeDestination) Format(ctx context.Context, sheet string, region Region, style Style) error {
	d.calls = append(d.calls, destCall{op: "format", sheet: sheet, region: region, style: style})
	return d.formatErr
}

func (d *fakeDestination) ops() []string {
	ops := make([]string, len(d.calls))
	for i, c := range d.calls {
		ops[i] = c.op
	}
	return ops
}

func (d *fakeDestination) writes() []destCall {
	var out []destCall
	for _, c := range d.calls {
		if c.op == "write" {
			out = append(out, c)
		}
	}
	return out
}

type layoutDestination struct {
	fakeDestination
	frozen  int
	resized int
}

func (d *layoutDestination) FreezeRows(ctx context.Context, sheet string, rows int) error {
	d.frozen = rows
	return nil
}

func (d *layoutDestination) AutoResize(ctx context.Context, sheet string, columns int) error {
	d.resized = columns
	return nil
}

// fakeSource answers "SELECT * FROM <table> LIMIT n" from a fixed map.
type fakeSource struct {
	results map[string]*source.Result
	errs    map[string]error
	queries []string
	panics  bool
}

func (s *fakeSource) Query(ctx context.Context, query string) (*source.Result, error) {
	s.queries = append(s.queries, query)
	if s.panics {
		panic("driver exploded")
	}

	fields := strings.Fields(query)
	if len(fields) < 4 {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	table := fields[3]
	if err, ok := s.errs[table]; ok {
		return nil, err
	}
	res, ok := s.results[table]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", table)
	}
	return res, nil
}
