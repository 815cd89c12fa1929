package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/runs"
	"google.golang.org/api/iterator"
)

const ingestionRunsTable = "ingestion_runs"

// StartRunWithClient inserts a run row with status RUNNING.
func StartRunWithClient(ctx context.Context, client *bigquery.Client, datasetID string, run runs.Run) error {
	row := rowFromRun(run)

	q := client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			run_id,
			operation,
			run_date,
			started_ts,
			strategy,
			allocation,
			total_count,
			success_count,
			failed_count,
			status
		)
		VALUES (
			@run_id,
			@operation,
			@run_date,
			@started_ts,
			@strategy,
			@allocation,
			@total_count,
			0,
			0,
			@status
		)
	`, datasetID, ingestionRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: row.RunID},
		{Name: "operation", Value: row.Operation},
		{Name: "run_date", Value: row.RunDate},
		{Name: "started_ts", Value: row.StartedTS},
		{Name: "strategy", Value: row.Strategy},
		{Name: "allocation", Value: row.Allocation},
		{Name: "total_count", Value: row.TotalCount},
		{Name: "status", Value: runs.StatusRunning},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("StartRunWithClient: %w", err)
	}
	return nil
}

// FinishRunWithClient stores the final counts, status and errors of a run.
func FinishRunWithClient(ctx context.Context, client *bigquery.Client, datasetID string, run runs.Run) error {
	row := rowFromRun(run)

	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    success_count = @success_count,
		    failed_count = @failed_count,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, datasetID, ingestionRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: row.Status},
		{Name: "finished_ts", Value: row.FinishedTS},
		{Name: "success_count", Value: row.SuccessCount},
		{Name: "failed_count", Value: row.FailedCount},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "run_id", Value: row.RunID},
	}

	if err := runQuery(ctx, q); err != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("run_id", row.RunID).
			Msg("FinishRunWithClient: update failed")
		return fmt.Errorf("FinishRunWithClient: %w", err)
	}
	return nil
}

// ListRunsWithClient returns the most recent runs, newest first.
func ListRunsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, limit int) ([]runs.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	q := client.Query(fmt.Sprintf(`
		SELECT *
		FROM %s.%s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, datasetID, ingestionRunsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRunsWithClient: reading query: %w", err)
	}

	var out []runs.Run
	for {
		var row IngestionRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRunsWithClient: iter next: %w", err)
		}
		out = append(out, row.toRun())
	}
	return out, nil
}

func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
