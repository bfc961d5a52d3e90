package server

import (
	"fmt"
	"time"

	"db_sheets_sync/internal/pipeline"
)

// SyncResponse is the JSON body of every sync endpoint.
type SyncResponse struct {
	Status    string           `json:"status"`
	Rows      int              `json:"rows"`
	Duration  string           `json:"duration,omitempty"`
	Succeeded int              `json:"succeeded,omitempty"`
	Failed    int              `json:"failed,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
	Targets   []TargetResponse `json:"targets,omitempty"`
}

type TargetResponse struct {
	RunID     string   `json:"run_id"`
	Target    string   `json:"target"`
	Table     string   `json:"table"`
	Sheet     string   `json:"sheet"`
	Status    string   `json:"status"`
	Rows      int      `json:"rows"`
	Duration  string   `json:"duration"`
	FailedIn  string   `json:"failed_in,omitempty"`
	ErrorKind string   `json:"error_kind,omitempty"`
	Error     string   `json:"error,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

func SummaryResponse(s pipeline.Summary) SyncResponse {
	resp := SyncResponse{
		Status:    string(s.Status),
		Rows:      s.Rows,
		Duration:  formatDuration(s.Duration),
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Targets:   make([]TargetResponse, 0, len(s.Outcomes)),
	}
	if s.Failed > 0 {
		resp.Error = fmt.Sprintf("%d of %d targets failed", s.Failed, s.Succeeded+s.Failed)
	}
	for _, o := range s.Outcomes {
		resp.Targets = append(resp.Targets, targetResponse(o))
	}
	return resp
}

func OutcomeResponse(o pipeline.Outcome) SyncResponse {
	resp := SyncResponse{
		Status:    string(o.Status),
		Rows:      o.Rows,
		Duration:  formatDuration(o.Duration),
		ErrorKind: o.ErrorKind,
		Error:     o.Error,
		Targets:   []TargetResponse{targetResponse(o)},
	}
	if o.Status == pipeline.StatusSuccess {
		resp.Succeeded = 1
	} else {
		resp.Failed = 1
	}
	return resp
}

func targetResponse(o pipeline.Outcome) TargetResponse {
	t := TargetResponse{
		RunID:     o.RunID,
		Target:    o.Target,
		Table:     o.Table,
		Sheet:     o.Sheet,
		Status:    string(o.Status),
		Rows:      o.Rows,
		Duration:  formatDuration(o.Duration),
		ErrorKind: o.ErrorKind,
		Error:     o.Error,
		Warnings:  o.Warnings,
	}
	if o.FailedIn != nil {
		t.FailedIn = o.FailedIn.String()
	}
	return t
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
