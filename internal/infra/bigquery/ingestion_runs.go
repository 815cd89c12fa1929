package bigquery

import (
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-ingest/internal/runs"
)

type IngestionRunRow struct {
	RunID     string     `bigquery:"run_id"`    // REQUIRED
	Operation string     `bigquery:"operation"` // REQUIRED
	RunDate   civil.Date `bigquery:"run_date"`  // DATE, REQUIRED (partition column)

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Strategy   string `bigquery:"strategy"`   // NULLABLE
	Allocation string `bigquery:"allocation"` // NULLABLE

	TotalCount   int64 `bigquery:"total_count"`
	SuccessCount int64 `bigquery:"success_count"`
	FailedCount  int64 `bigquery:"failed_count"`

	Status       string `bigquery:"status"`        // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE, newline separated
}

const maxErrorMessageLen = 2000

func rowFromRun(run runs.Run) IngestionRunRow {
	row := IngestionRunRow{
		RunID:        run.RunID,
		Operation:    run.Operation,
		RunDate:      civil.DateOf(run.StartedAt.UTC()),
		StartedTS:    run.StartedAt,
		Strategy:     run.Strategy,
		Allocation:   run.Allocation,
		TotalCount:   int64(run.Total),
		SuccessCount: int64(run.Success),
		FailedCount:  int64(run.Failed),
		Status:       run.Status,
		ErrorMessage: joinErrors(run.Errors),
	}
	if !run.FinishedAt.IsZero() {
		row.FinishedTS = bigquery.NullTimestamp{Timestamp: run.FinishedAt, Valid: true}
	}
	return row
}

func (r IngestionRunRow) toRun() runs.Run {
	run := runs.Run{
		RunID:      r.RunID,
		Operation:  r.Operation,
		Strategy:   r.Strategy,
		Allocation: r.Allocation,
		Total:      int(r.TotalCount),
		Success:    int(r.SuccessCount),
		Failed:     int(r.FailedCount),
		Status:     r.Status,
		StartedAt:  r.StartedTS,
	}
	if r.FinishedTS.Valid {
		run.FinishedAt = r.FinishedTS.Timestamp
	}
	if r.ErrorMessage != "" {
		run.Errors = strings.Split(r.ErrorMessage, "\n")
	}
	return run
}

func joinErrors(errs []string) string {
	msg := strings.Join(runs.TruncateErrors(errs), "\n")
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}
