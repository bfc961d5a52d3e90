package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"db_sheets_sync/internal/config"
	"db_sheets_sync/internal/normalize"
	"db_sheets_sync/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newTestOrchestrator(src Source, dest Destination, opts Options) *Orchestrator {
	o := NewOrchestrator(src, dest, opts)
	o.now = func() time.Time { return fixedNow }
	o.writer.sleep = func(context.Context, time.Duration) error { return nil }
	return o
}

func defaultOptions() Options {
	return Options{RowLimit: 1000, ChunkSize: 100, Metadata: true}
}

func campaignResult() *source.Result {
	return &source.Result{
		Columns: []string{"d", "n", "x"},
		Rows: [][]normalize.Cell{
			{normalize.Date(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), normalize.Float(10.5), normalize.Null()},
			{normalize.Text("2024-01-02"), normalize.Decimal("3.25"), normalize.Text("ok")},
		},
	}
}

var campaignTarget = config.Target{Name: "campaigns", Table: "campaign_summary", Sheet: "Campaigns", Theme: "green"}

func TestRunSuccess(t *testing.T) {
	src := &fakeSource{results: map[string]*source.Result{"campaign_summary": campaignResult()}}
	dest := &fakeDestination{}
	o := newTestOrchestrator(src, dest, defaultOptions())

	outcome := o.Run(context.Background(), campaignTarget)

	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, 2, outcome.Rows)
	assert.Nil(t, outcome.FailedIn)
	assert.Empty(t, outcome.Error)
	assert.NotEmpty(t, outcome.RunID)
	assert.Equal(t, []string{"SELECT * FROM campaign_summary LIMIT 1000"}, src.queries)

	assert.Equal(t, []string{"clear", "write", "write", "format", "format"}, dest.ops())

	writes := dest.writes()
	assert.Equal(t, [][]any{
		{"Source: campaign_summary | Updated: 2024-05-01 09:30:00 | Rows: 2 | Status: OK"},
		{"d", "n", "x"},
	}, writes[0].rows)
	assert.Equal(t, 3, writes[1].start)
	assert.Equal(t, [][]any{
		{"2024-01-01", 10.5, ""},
		{"2024-01-02", 3.25, "ok"},
	}, writes[1].rows)

	metadataFormat := dest.calls[3]
	assert.Equal(t, Region{StartRow: 1, EndRow: 1, StartCol: 1, EndCol: 3}, metadataFormat.region)
	headerFormat := dest.calls[4]
	assert.Equal(t, Region{StartRow: 2, EndRow: 2, StartCol: 1, EndCol: 3}, headerFormat.region)
	assert.True(t, headerFormat.style.Bold)
	theme, _ := ThemeFor("green")
	assert.Equal(t, theme.Header, *headerFormat.style.Background)
}

func TestRunUsesLayouter(t *testing.T) {
	src := &fakeSource{results: map[string]*source.Result{"campaign_summary": campaignResult()}}
	dest := &layoutDestination{}
	o := newTestOrchestrator(src, dest, defaultOptions())

	outcome := o.Run(context.Background(), campaignTarget)
	require.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, 2, dest.frozen)
	assert.Equal(t, 3, dest.resized)
}

func TestRunIsIdempotent(t *testing.T) {
	src := &fakeSource{results: map[string]*source.Result{"campaign_summary": campaignResult()}}

	first := &fakeDestination{}
	second := &fakeDestination{}

	o1 := newTestOrchestrator(src, first, defaultOptions())
	o2 := newTestOrchestrator(src, second, defaultOptions())

	t1, err := o1.Build(context.Background(), campaignTarget)
	require.NoError(t, err)
	t2, err := o1.Build(context.Background(), campaignTarget)
	require.NoError(t, err)
	assert.Equal(t, t1, t2)

	require.Equal(t, StatusSuccess, o1.Run(context.Background(), campaignTarget).Status)
	require.Equal(t, StatusSuccess, o2.Run(context.Background(), campaignTarget).Status)
	assert.Equal(t, first.calls, second.calls)
}

func TestRunFetchFailure(t *testing.T) {
	src := &fakeSource{errs: map[string]error{"campaign_summary": errors.New("connection refused")}}
	dest := &fakeDestination{}
	o := newTestOrchestrator(src, dest, defaultOptions())

	outcome := o.Run(context.Background(), campaignTarget)

	assert.Equal(t, StatusFailure, outcome.Status)
	require.NotNil(t, outcome.FailedIn)
	assert.Equal(t, StateFetching, *outcome.FailedIn)
	assert.Equal(t, "connection", outcome.ErrorKind)
	assert.Contains(t, outcome.Error, "connection refused")
	assert.Empty(t, dest.calls, "destination must not be touched when fetching fails")
}

func TestRunFetchTimeout(t *testing.T) {
	err := fmt.Errorf("failed to run query: %w", context.DeadlineExceeded)
	src := &fakeSource{errs: map[string]error{"campaign_summary": err}}
	o := newTestOrchestrator(src, &fakeDestination{}, defaultOptions())

	outcome := o.Run(context.Background(), campaignTarget)

	assert.Equal(t, StatusFailure, outcome.Status)
	assert.Equal(t, "timeout", outcome.ErrorKind)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"shape", &normalize.ShapeMismatchError{Row: 1, Columns: 2, Cells: 1}, "shape_mismatch"},
		{"connection", &ConnectionError{Collaborator: "source", Op: "query", Err: errors.New("refused")}, "connection"},
		{"cancelled query", &ConnectionError{Collaborator: "source", Op: "query", Err: context.Canceled}, "timeout"},
		{"deadline on write", &ConnectionError{Collaborator: "destination", Op: "write rows", Err: context.DeadlineExceeded}, "timeout"},
		{"unhandled", &UnhandledError{Value: "boom"}, "unhandled"},
		{"plain", errors.New("odd"), "unhandled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestRunShapeMismatch(t *testing.T) {
	res := campaignResult()
	res.Rows = append(res.Rows, []normalize.Cell{normalize.Text("short")})
	src := &fakeSource{results: map[string]*source.Result{"campaign_summary": res}}
	dest := &fakeDestination{}
	o := newTestOrchestrator(src, dest, defaultOptions())

	outcome := o.Run(context.Background(), campaignTarget)

	assert.Equal(t, StatusFailure, outcome.Status)
	assert.Equal(t, StateNormalizing, *outcome.FailedIn)
	assert.Equal(t, "shape_mismatch", outcome.ErrorKind)
	assert.ErrorIs(t, outcome.Err, normalize.ErrShapeMismatch)
	assert.Empty(t, dest.calls)
}

func TestRunClearFailure(t *testing.T) {
	src := &fakeSource{results: map[string]*source.Result{"campaign_summary": campaignResult()}}
	dest := &fakeDestination{clearErr: errors.New("403 forbidden")}
	o := newTestOrchestrator(src, dest, defaultOptions())

	outcome := o.Run(context.Background(), campaignTarget)

	assert.Equal(t, StatusFailure, outcome.Status)
	assert.Equal(t, StateClearing, *outcome.FailedIn)
	assert.Equal(t, []string{"clear"}, dest.ops())
}

func TestRunWriteFailure(t *testing.T) {
	src := &fakeSource{results: map[string]*source.Result{"campaign_summary": campaignResult()}}
	dest := &fakeDestination{writeErr: errors.New("payload too large")}
	o := newTestOrchestrator(src, dest, defaultOptions())

	outcome := o.Run(context.Background(), campaignTarget)

	assert.Equal(t, StatusFailure, outcome.Status)
	assert.Equal(t, StateWriting, *outcome.FailedIn)
	assert.Equal(t, "connection", outcome.ErrorKind)
}

func TestRunFormattingFailureStillSucceeds(t *testing.T) {
	src := &fakeSource{results: map[string]*source.Result{"campaign_summary": campaignResult()}}
	dest := &fakeDestination{formatErr: errors.New("invalid style")}
	o := newTestOrchestrator(src, dest, defaultOptions())

	outcome := o.Run(context.Background(), campaignTarget)

	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Len(t, outcome.Warnings, 2)
	assert.Empty(t, outcome.Error)
}

func TestRunRecoversPanic(t *testing.T) {
	src := &fakeSource{panics: true}
	o := newTestOrchestrator(src, &fakeDestination{}, defaultOptions())

	outcome := o.Run(context.Background(), campaignTarget)

	assert.Equal(t, StatusFailure, outcome.Status)
	assert.Equal(t, "unhandled", outcome.ErrorKind)
	assert.Equal(t, StateFetching, *outcome.FailedIn)
	assert.Contains(t, outcome.Error, "driver exploded")
}

func TestRunWithoutMetadata(t *testing.T) {
	src := &fakeSource{results: map[string]*source.Result{"campaign_summary": campaignResult()}}
	dest := &fakeDestination{}
	opts := defaultOptions()
	opts.Metadata = false
	o := newTestOrchestrator(src, dest, opts)

	outcome := o.Run(context.Background(), campaignTarget)
	require.Equal(t, StatusSuccess, outcome.Status)

	writes := dest.writes()
	assert.Equal(t, [][]any{{"d", "n", "x"}}, writes[0].rows)
	assert.Equal(t, 2, writes[1].start)
	assert.Equal(t, []string{"clear", "write", "write", "format"}, dest.ops())
}

func TestRunRejectsUnsafeTable(t *testing.T) {
	src := &fakeSource{}
	o := newTestOrchestrator(src, &fakeDestination{}, defaultOptions())

	outcome := o.Run(context.Background(), config.Target{Name: "bad", Table: "x; DROP TABLE y", Sheet: "s"})
	assert.Equal(t, StatusFailure, outcome.Status)
	assert.Empty(t, src.queries)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "formatting", StateFormatting.String())
	text, err := StateFailed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "failed", string(text))
}
