// Package runs describes the audit trail kept for bulk operations.
package runs

import (
	"context"
	"time"
)

// Operation names.
const (
	OperationIngest = "INGEST"
	OperationDelete = "DELETE"
)

// Status values.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusPartial = "PARTIAL"
	StatusFailed  = "FAILED"
)

// MaxRecordedErrors caps the error strings stored with a run.
const MaxRecordedErrors = 20

// Run is one recorded bulk operation.
type Run struct {
	RunID      string    `json:"run_id"`
	Operation  string    `json:"operation"`
	Strategy   string    `json:"strategy,omitempty"`
	Allocation string    `json:"allocation,omitempty"`
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	Errors     []string  `json:"errors,omitempty"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// StatusFor derives the final status from counts.
func StatusFor(success, failed int) string {
	switch {
	case failed == 0:
		return StatusSuccess
	case success == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Recorder persists runs. Failures to record never fail the operation.
type Recorder interface {
	StartRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// NopRecorder records nothing.
type NopRecorder struct{}

func (NopRecorder) StartRun(ctx context.Context, run Run) error  { return nil }
func (NopRecorder) FinishRun(ctx context.Context, run Run) error { return nil }
func (NopRecorder) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return nil, nil
}

var _ Recorder = NopRecorder{}

// TruncateErrors keeps at most MaxRecordedErrors entries.
func TruncateErrors(errs []string) []string {
	if len(errs) <= MaxRecordedErrors {
		return errs
	}
	return errs[:MaxRecordedErrors]
}
