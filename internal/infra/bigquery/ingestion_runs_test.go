package bigquery

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-ingest/internal/runs"
)

func TestRowFromRun(t *testing.T) {
	started := time.Date(2025, 3, 31, 23, 30, 0, 0, time.UTC)
	run := runs.Run{
		RunID:     "r1",
		Operation: runs.OperationIngest,
		Strategy:  "chunked-atomic",
		Total:     120,
		Success:   100,
		Failed:    20,
		Errors:    []string{"chunk 1 failed", "chunk 2 failed"},
		Status:    runs.StatusPartial,
		StartedAt: started,
	}

	row := rowFromRun(run)
	if row.RunDate != (civil.Date{Year: 2025, Month: time.March, Day: 31}) {
		t.Errorf("RunDate = %v", row.RunDate)
	}
	if row.FinishedTS.Valid {
		t.Error("FinishedTS should be null for an unfinished run")
	}
	if row.ErrorMessage != "chunk 1 failed\nchunk 2 failed" {
		t.Errorf("ErrorMessage = %q", row.ErrorMessage)
	}

	back := row.toRun()
	if back.Success != 100 || back.Failed != 20 || len(back.Errors) != 2 {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestJoinErrors_Truncates(t *testing.T) {
	var errs []string
	for i := 0; i < 100; i++ {
		errs = append(errs, fmt.Sprintf("transaction %03d: %s", i, strings.Repeat("x", 100)))
	}
	msg := joinErrors(errs)
	if len(msg) > maxErrorMessageLen {
		t.Errorf("message length %d exceeds %d", len(msg), maxErrorMessageLen)
	}
	if strings.Contains(msg, "transaction 020") {
		t.Error("errors beyond MaxRecordedErrors should be dropped")
	}
}
