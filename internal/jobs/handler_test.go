package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/cascade"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/ingest"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
	"github.com/dvloznov/ledger-ingest/internal/jobs/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockIngester struct {
	IngestFunc func(ctx context.Context, txs []domain.PendingTransaction, opts ingest.Options) (ingest.Report, error)
}

func (m *MockIngester) Ingest(ctx context.Context, txs []domain.PendingTransaction, opts ingest.Options) (ingest.Report, error) {
	return m.IngestFunc(ctx, txs, opts)
}

type MockDeleter struct {
	DeleteManyFunc func(ctx context.Context, ids []string, opts cascade.Options) domain.Result
}

func (m *MockDeleter) DeleteMany(ctx context.Context, ids []string, opts cascade.Options) domain.Result {
	return m.DeleteManyFunc(ctx, ids, opts)
}

func saved(t *testing.T, store jobs.JobStore, job *jobs.IngestJob) {
	t.Helper()
	require.NoError(t, store.SaveJob(context.Background(), job))
}

func TestHandler_IngestJob(t *testing.T) {
	store := inmemory.NewStore()
	ing := &MockIngester{
		IngestFunc: func(ctx context.Context, txs []domain.PendingTransaction, opts ingest.Options) (ingest.Report, error) {
			opts.OnProgress(domain.NewProgress(domain.PhaseIngest, 1, 2))
			opts.OnProgress(domain.NewProgress(domain.PhaseIngest, 2, 2))
			return ingest.Report{
				Result:           domain.Result{Success: 2},
				RunID:            "run-1",
				Strategy:         ingest.Serial,
				Allocation:       "allocated",
				ReferenceNumbers: []string{"TXN-2025-0012-0001", "TXN-2025-0012-0002"},
			}, nil
		},
	}

	job := &jobs.IngestJob{
		JobID:        "job-1",
		Type:         jobs.JobTypeIngestTransactions,
		Transactions: make([]domain.PendingTransaction, 2),
		CreatedAt:    time.Now(),
	}
	saved(t, store, job)

	handler := jobs.NewHandler(ing, nil, store)
	require.NoError(t, handler(context.Background(), job))

	require.NotNil(t, job.Result)
	assert.Equal(t, 2, job.Result.Success)
	assert.Equal(t, "run-1", job.Result.RunID)
	assert.Equal(t, ingest.Serial.String(), job.Result.Strategy)
	assert.Len(t, job.Result.ReferenceNumbers, 2)
	assert.Equal(t, 100, job.Progress.Percentage)

	stored, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Progress.Completed)
}

func TestHandler_IngestRejectedHasNoResult(t *testing.T) {
	ing := &MockIngester{
		IngestFunc: func(ctx context.Context, txs []domain.PendingTransaction, opts ingest.Options) (ingest.Report, error) {
			return ingest.Report{RunID: "run-x"}, domain.ErrInvalidTransaction
		},
	}
	job := &jobs.IngestJob{JobID: "job-2", Type: jobs.JobTypeIngestTransactions}

	err := jobs.NewHandler(ing, nil, nil)(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrInvalidTransaction)
	assert.Nil(t, job.Result)
}

func TestHandler_DeleteJob(t *testing.T) {
	var gotIDs []string
	del := &MockDeleter{
		DeleteManyFunc: func(ctx context.Context, ids []string, opts cascade.Options) domain.Result {
			gotIDs = ids
			opts.OnProgress(domain.NewProgress(domain.PhaseParentDeletion, len(ids), len(ids)))
			return domain.Result{Success: len(ids)}
		},
	}
	job := &jobs.IngestJob{JobID: "job-3", Type: jobs.JobTypeDeleteTransactions, TransactionIDs: []string{"a", "b"}}

	require.NoError(t, jobs.NewHandler(nil, del, nil)(context.Background(), job))
	assert.Equal(t, []string{"a", "b"}, gotIDs)
	assert.Equal(t, 2, job.Result.Success)
	assert.Equal(t, domain.PhaseParentDeletion, job.Progress.Phase)
}

func TestHandler_DeleteJobWithFailuresErrors(t *testing.T) {
	del := &MockDeleter{
		DeleteManyFunc: func(ctx context.Context, ids []string, opts cascade.Options) domain.Result {
			return domain.Result{Success: 1, Failed: 1, Errors: []string{"b: boom"}}
		},
	}
	job := &jobs.IngestJob{JobID: "job-4", Type: jobs.JobTypeDeleteTransactions, TransactionIDs: []string{"a", "b"}}

	err := jobs.NewHandler(nil, del, nil)(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Equal(t, 1, job.Result.Failed)
}

func TestHandler_UnknownType(t *testing.T) {
	err := jobs.NewHandler(nil, nil, nil)(context.Background(), &jobs.IngestJob{Type: "bogus"})
	assert.Error(t, err)
}

func TestIngestJob_SizeAndRetryable(t *testing.T) {
	ingestJob := &jobs.IngestJob{Type: jobs.JobTypeIngestTransactions, Transactions: make([]domain.PendingTransaction, 3)}
	deleteJob := &jobs.IngestJob{Type: jobs.JobTypeDeleteTransactions, TransactionIDs: []string{"x"}}

	assert.Equal(t, 3, ingestJob.Size())
	assert.Equal(t, 1, deleteJob.Size())
	assert.False(t, ingestJob.Retryable())
	assert.True(t, deleteJob.Retryable())
}
