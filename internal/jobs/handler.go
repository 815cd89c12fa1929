package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-ingest/internal/cascade"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/ingest"
	"github.com/dvloznov/ledger-ingest/internal/logger"
)

// Ingester runs bulk ingestion.
type Ingester interface {
	Ingest(ctx context.Context, txs []domain.PendingTransaction, opts ingest.Options) (ingest.Report, error)
}

// Deleter runs bulk deletion.
type Deleter interface {
	DeleteMany(ctx context.Context, ids []string, opts cascade.Options) domain.Result
}

// NewHandler returns a JobHandler that runs ingest and delete jobs and
// mirrors their progress into store.
func NewHandler(ingester Ingester, deleter Deleter, store JobStore) JobHandler {
	return func(ctx context.Context, job *IngestJob) error {
		log := logger.FromContext(ctx)

		var last domain.Progress
		onProgress := func(p domain.Progress) {
			last = p
			if store == nil {
				return
			}
			if err := store.UpdateProgress(ctx, job.JobID, p); err != nil {
				log.Debug().Err(err).Str("job_id", job.JobID).Msg("Failed to store job progress")
			}
		}
		defer func() {
			if last.Total > 0 {
				job.Progress = last
			}
		}()

		switch job.Type {
		case JobTypeIngestTransactions:
			report, err := ingester.Ingest(ctx, job.Transactions, ingest.Options{OnProgress: onProgress})
			// Requests rejected before any write carry no run.
			if report.Allocation != "" {
				job.Result = &JobResult{
					Result:           report.Result,
					RunID:            report.RunID,
					Strategy:         report.Strategy.String(),
					Allocation:       report.Allocation,
					ReferenceNumbers: report.ReferenceNumbers,
				}
			}
			if err != nil {
				return fmt.Errorf("ingest job %s: %w", job.JobID, err)
			}
			return nil

		case JobTypeDeleteTransactions:
			result := deleter.DeleteMany(ctx, job.TransactionIDs, cascade.Options{OnProgress: onProgress})
			job.Result = &JobResult{Result: result}
			if result.Failed > 0 {
				return fmt.Errorf("delete job %s: %d of %d deletions failed", job.JobID, result.Failed, result.Total())
			}
			return nil

		default:
			return fmt.Errorf("unknown job type %q", job.Type)
		}
	}
}
