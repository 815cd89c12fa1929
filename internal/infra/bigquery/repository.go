// Package bigquery keeps the audit trail of bulk ledger operations in
// BigQuery.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ledger-ingest/internal/runs"
)

// DefaultDataset holds the audit tables when none is configured.
const DefaultDataset = "ledger"

// RunRepository is the BigQuery implementation of runs.Recorder. It holds a
// shared client to avoid creating a connection for each operation.
type RunRepository struct {
	client    *bigquery.Client
	datasetID string
}

// NewRunRepository creates a RunRepository for projectID and datasetID.
func NewRunRepository(ctx context.Context, projectID, datasetID string) (*RunRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRunRepository: creating client: %w", err)
	}
	if datasetID == "" {
		datasetID = DefaultDataset
	}
	return &RunRepository{client: client, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (r *RunRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// StartRun delegates to StartRunWithClient with the shared client.
func (r *RunRepository) StartRun(ctx context.Context, run runs.Run) error {
	return StartRunWithClient(ctx, r.client, r.datasetID, run)
}

// FinishRun delegates to FinishRunWithClient with the shared client.
func (r *RunRepository) FinishRun(ctx context.Context, run runs.Run) error {
	return FinishRunWithClient(ctx, r.client, r.datasetID, run)
}

// ListRuns delegates to ListRunsWithClient with the shared client.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]runs.Run, error) {
	return ListRunsWithClient(ctx, r.client, r.datasetID, limit)
}

var _ runs.Recorder = (*RunRepository)(nil)
