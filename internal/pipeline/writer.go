package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Layout records which rows of the sheet hold what after WriteAll.
type Layout struct {
	MetadataRow  int // 0 when no metadata line was written
	HeaderRow    int
	FirstDataRow int
	LastRow      int
	Columns      int
}

// BatchWriter writes tables into a Destination in bounded chunks with a
// pause between chunks.
type BatchWriter struct {
	dest      Destination
	chunkSize int
	delay     time.Duration
	sleep     func(context.Context, time.Duration) error
}

// NewBatchWriter returns a writer that sends at most chunkSize data rows per
// call. A chunkSize of 0 sends all rows in a single call.
func NewBatchWriter(dest Destination, chunkSize int, delay time.Duration) *BatchWriter {
	return &BatchWriter{
		dest:      dest,
		chunkSize: chunkSize,
		delay:     delay,
		sleep:     sleepContext,
	}
}

func (w *BatchWriter) Clear(ctx context.Context, sheet string) error {
	log.Debug().Str("sheet", sheet).Msg("Clearing sheet")
	if err := w.dest.Clear(ctx, sheet); err != nil {
		return destinationError("clear", err)
	}
	return nil
}

// WriteAll writes the metadata line (if any) at row 1, the header on the next
// row and the data rows below it, in ascending row order.
func (w *BatchWriter) WriteAll(ctx context.Context, sheet string, table *Table) (Layout, error) {
	layout := Layout{Columns: table.Columns()}

	var top [][]any
	row := 1
	if table.Metadata != "" {
		layout.MetadataRow = row
		top = append(top, []any{table.Metadata})
		row++
	}
	layout.HeaderRow = row
	header := make([]any, len(table.Header))
	for i, h := range table.Header {
		header[i] = h
	}
	top = append(top, header)
	row++

	// The header block honours the chunk size too, so a chunk size of 1
	// splits metadata and header into separate calls.
	for _, c := range Chunks(len(top), w.chunkSize) {
		if err := w.dest.Write(ctx, sheet, 1+c.Start, top[c.Start:c.End]); err != nil {
			return layout, destinationError("write header", err)
		}
	}

	layout.FirstDataRow = row
	layout.LastRow = row - 1 + len(table.Rows)

	chunks := Chunks(len(table.Rows), w.chunkSize)
	for i, c := range chunks {
		log.Debug().
			Str("sheet", sheet).
			Int("chunk", i+1).
			Int("chunks", len(chunks)).
			Int("start_row", row+c.Start).
			Int("rows", c.End-c.Start).
			Msg("Writing chunk")

		if err := w.dest.Write(ctx, sheet, row+c.Start, table.Rows[c.Start:c.End]); err != nil {
			return layout, destinationError("write rows", err)
		}

		if i < len(chunks)-1 && w.delay > 0 {
			if err := w.sleep(ctx, w.delay); err != nil {
				return layout, err
			}
		}
	}

	return layout, nil
}

// Format applies style to region. Failures are logged and returned as a
// *FormattingError for the caller to record; they never abort a run.
func (w *BatchWriter) Format(ctx context.Context, sheet string, region Region, style Style) error {
	if err := w.dest.Format(ctx, sheet, region, style); err != nil {
		ferr := &FormattingError{Sheet: sheet, Region: region.A1(), Err: err}
		log.Warn().Err(err).Str("sheet", sheet).Str("region", region.A1()).Msg("Formatting failed; continuing")
		return ferr
	}
	return nil
}

// Chunk is a half-open range of row indexes.
type Chunk struct {
	Start int
	End   int
}

// Chunks splits n rows into contiguous ranges of at most size rows. A size
// of 0 or less yields a single chunk.
func Chunks(n, size int) []Chunk {
	if n == 0 {
		return nil
	}
	if size <= 0 || size >= n {
		return []Chunk{{Start: 0, End: n}}
	}

	chunks := make([]Chunk, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		chunks = append(chunks, Chunk{Start: start, End: min(start+size, n)})
	}
	return chunks
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
