package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"db_sheets_sync/internal/config"
	"db_sheets_sync/internal/normalize"
	"db_sheets_sync/internal/source"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Source runs a query and returns its typed rows.
type Source interface {
	Query(ctx context.Context, query string) (*source.Result, error)
}

type State int

const (
	StateIdle State = iota
	StateFetching
	StateNormalizing
	StateClearing
	StateWriting
	StateFormatting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateNormalizing:
		return "normalizing"
	case StateClearing:
		return "clearing"
	case StateWriting:
		return "writing"
	case StateFormatting:
		return "formatting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialFailure Status = "partial_failure"
	StatusFailure        Status = "failure"
)

// Outcome is the result of one target's run.
type Outcome struct {
	RunID     string        `json:"run_id"`
	Target    string        `json:"target"`
	Table     string        `json:"table"`
	Sheet     string        `json:"sheet"`
	Status    Status        `json:"status"`
	Rows      int           `json:"rows"`
	Duration  time.Duration `json:"-"`
	FailedIn  *State        `json:"failed_in,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
	Err       error         `json:"-"`
}

// Options controls one orchestrator run.
type Options struct {
	RowLimit   int
	ChunkSize  int
	ChunkDelay time.Duration
	Metadata   bool
}

// OptionsFrom extracts run options from the sync configuration.
func OptionsFrom(cfg config.SyncConfig) Options {
	return Options{
		RowLimit:   cfg.RowLimit,
		ChunkSize:  cfg.ChunkSize,
		ChunkDelay: cfg.ChunkDelay,
		Metadata:   cfg.Metadata,
	}
}

// Orchestrator synchronizes one target per call to Run:
// fetch, normalize, clear, write, format.
type Orchestrator struct {
	source Source
	dest   Destination
	writer *BatchWriter
	opts   Options
	now    func() time.Time
}

func NewOrchestrator(src Source, dest Destination, opts Options) *Orchestrator {
	return &Orchestrator{
		source: src,
		dest:   dest,
		writer: NewBatchWriter(dest, opts.ChunkSize, opts.ChunkDelay),
		opts:   opts,
		now:    time.Now,
	}
}

type run struct {
	id     string
	target config.Target
	state  State
}

func (r *run) enter(s State) {
	log.Debug().
		Str("run_id", r.id).
		Str("target", r.target.Name).
		Stringer("from", r.state).
		Stringer("to", s).
		Msg("Sync state change")
	r.state = s
}

// Run performs one full synchronization of target. It never panics and never
// returns an error; every failure is reported in the Outcome.
func (o *Orchestrator) Run(ctx context.Context, target config.Target) (outcome Outcome) {
	r := &run{id: uuid.NewString(), target: target, state: StateIdle}
	start := time.Now()

	outcome = Outcome{
		RunID:  r.id,
		Target: target.Name,
		Table:  target.Table,
		Sheet:  target.Sheet,
	}

	log.Info().
		Str("run_id", r.id).
		Str("target", target.Name).
		Str("table", target.Table).
		Str("sheet", target.Sheet).
		Msg("Starting sync")

	defer func() {
		if p := recover(); p != nil {
			o.fail(r, &outcome, &UnhandledError{Value: p})
		}
		outcome.Duration = time.Since(start)

		event := log.Info()
		if outcome.Status != StatusSuccess {
			event = log.Error().Err(outcome.Err)
		}
		event.
			Str("run_id", r.id).
			Str("target", target.Name).
			Str("status", string(outcome.Status)).
			Int("rows", outcome.Rows).
			Dur("duration", outcome.Duration).
			Msg("Sync finished")
	}()

	table, err := o.build(ctx, r)
	if err != nil {
		o.fail(r, &outcome, err)
		return outcome
	}
	outcome.Rows = len(table.Rows)

	r.enter(StateClearing)
	if err := o.writer.Clear(ctx, target.Sheet); err != nil {
		o.fail(r, &outcome, err)
		return outcome
	}

	r.enter(StateWriting)
	layout, err := o.writer.WriteAll(ctx, target.Sheet, table)
	if err != nil {
		o.fail(r, &outcome, err)
		return outcome
	}

	r.enter(StateFormatting)
	for _, w := range o.format(ctx, target, layout) {
		outcome.Warnings = append(outcome.Warnings, w.Error())
	}

	r.enter(StateDone)
	outcome.Status = StatusSuccess
	return outcome
}

// Build fetches and normalizes target without touching the destination.
func (o *Orchestrator) Build(ctx context.Context, target config.Target) (*Table, error) {
	r := &run{id: uuid.NewString(), target: target, state: StateIdle}
	return o.build(ctx, r)
}

func (o *Orchestrator) build(ctx context.Context, r *run) (*Table, error) {
	r.enter(StateFetching)
	query, err := source.SelectAll(r.target.Table, o.opts.RowLimit)
	if err != nil {
		return nil, err
	}

	res, err := o.source.Query(ctx, query)
	if err != nil {
		return nil, sourceError("query", err)
	}
	if len(res.Rows) >= o.opts.RowLimit {
		log.Warn().
			Str("run_id", r.id).
			Str("table", r.target.Table).
			Int("limit", o.opts.RowLimit).
			Msg("Row limit reached; sheet holds a truncated copy of the table")
	}

	r.enter(StateNormalizing)
	return BuildTable(r.target.Table, res, o.now(), o.opts.Metadata)
}

// format styles the metadata and header rows and adjusts the sheet layout.
// Every failure is returned as a warning.
func (o *Orchestrator) format(ctx context.Context, target config.Target, layout Layout) []error {
	theme, ok := ThemeFor(target.Theme)
	if !ok {
		log.Warn().Str("target", target.Name).Str("theme", target.Theme).Msg("Unknown theme, using blue")
	}

	var warnings []error
	if layout.MetadataRow > 0 {
		region := Region{StartRow: layout.MetadataRow, EndRow: layout.MetadataRow, StartCol: 1, EndCol: layout.Columns}
		if err := o.writer.Format(ctx, target.Sheet, region, theme.MetadataStyle()); err != nil {
			warnings = append(warnings, err)
		}
	}

	region := Region{StartRow: layout.HeaderRow, EndRow: layout.HeaderRow, StartCol: 1, EndCol: layout.Columns}
	if err := o.writer.Format(ctx, target.Sheet, region, theme.HeaderStyle()); err != nil {
		warnings = append(warnings, err)
	}

	if l, ok := o.dest.(Layouter); ok {
		if err := l.FreezeRows(ctx, target.Sheet, layout.HeaderRow); err != nil {
			log.Warn().Err(err).Str("sheet", target.Sheet).Msg("Freezing header failed; continuing")
			warnings = append(warnings, &FormattingError{Sheet: target.Sheet, Region: "freeze", Err: err})
		}
		if err := l.AutoResize(ctx, target.Sheet, layout.Columns); err != nil {
			log.Warn().Err(err).Str("sheet", target.Sheet).Msg("Resizing columns failed; continuing")
			warnings = append(warnings, &FormattingError{Sheet: target.Sheet, Region: "columns", Err: err})
		}
	}

	return warnings
}

func (o *Orchestrator) fail(r *run, outcome *Outcome, err error) {
	failedIn := r.state
	r.enter(StateFailed)

	outcome.Status = StatusFailure
	outcome.FailedIn = &failedIn
	outcome.Err = err
	outcome.Error = err.Error()
	outcome.ErrorKind = ErrorKind(err)
}

// ErrorKind names the category of err for reporting.
func ErrorKind(err error) string {
	var conn *ConnectionError
	var unhandled *UnhandledError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, normalize.ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &conn):
		return "connection"
	case errors.As(err, &unhandled):
		return "unhandled"
	default:
		return "unhandled"
	}
}
