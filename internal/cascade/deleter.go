// Package cascade deletes transactions together with the splits that
// belong to them.
package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/events"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/metrics"
	"github.com/dvloznov/ledger-ingest/internal/runs"
	"github.com/google/uuid"
)

const (
	// ChunkSize is the number of parent transactions deleted per commit.
	ChunkSize = docstore.MaxBatchWrites
	// LookupChunkSize is the number of ids per split lookup query.
	LookupChunkSize = docstore.MaxInValues
)

// Options configures one DeleteMany call.
type Options struct {
	OnProgress domain.ProgressFunc
}

// Deleter removes transactions and their splits.
type Deleter struct {
	store     docstore.Store
	recorder  runs.Recorder
	publisher events.Publisher
	now       func() time.Time
}

// Option configures a Deleter.
type Option func(*Deleter)

// WithRecorder records every delete run.
func WithRecorder(r runs.Recorder) Option {
	return func(d *Deleter) { d.recorder = r }
}

// WithPublisher publishes an event after every delete run.
func WithPublisher(p events.Publisher) Option {
	return func(d *Deleter) { d.publisher = p }
}

// NewDeleter creates a Deleter.
func NewDeleter(store docstore.Store, opts ...Option) *Deleter {
	d := &Deleter{
		store:     store,
		recorder:  runs.NopRecorder{},
		publisher: events.NopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeleteMany deletes ids in chunks. For every chunk the dependent splits are
// removed first; a failure there is reported but does not stop the parents
// from being deleted. A failed parent commit falls back to deleting each id
// on its own.
func (d *Deleter) DeleteMany(ctx context.Context, ids []string, opts Options) domain.Result {
	log := logger.FromContext(ctx)

	var result domain.Result
	if len(ids) == 0 {
		return result
	}

	run := runs.Run{
		RunID:     uuid.NewString(),
		Operation: runs.OperationDelete,
		Total:     len(ids),
		Status:    runs.StatusRunning,
		StartedAt: d.now(),
	}
	if err := d.recorder.StartRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("run_id", run.RunID).Msg("failed to record run start")
	}

	log.Info().Str("run_id", run.RunID).Int("transactions", len(ids)).Msg("deleting transactions")

	total := len(ids)
	splitsDone, parentsDone := 0, 0
	for i, chunk := range docstore.Chunk(ids, ChunkSize) {
		splitErrs := d.deleteSplits(ctx, chunk)
		result.Errors = append(result.Errors, splitErrs...)
		splitsDone += len(chunk)
		opts.OnProgress.Emit(domain.NewProgress(domain.PhaseSplitCleanup, splitsDone, total))

		result.Merge(d.deleteParents(ctx, i, chunk))
		parentsDone += len(chunk)
		opts.OnProgress.Emit(domain.NewProgress(domain.PhaseParentDeletion, parentsDone, total))
	}

	run.FinishedAt = d.now()
	run.Success = result.Success
	run.Failed = result.Failed
	run.Errors = runs.TruncateErrors(result.Errors)
	run.Status = runs.StatusFor(result.Success, result.Failed)
	if err := d.recorder.FinishRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("run_id", run.RunID).Msg("failed to record run result")
	}

	metrics.RecordsProcessed("delete", result.Success, result.Failed)

	if err := d.publisher.Publish(ctx, run.RunID, events.TransactionsDeleted{
		Type:       events.TypeTransactionsDeleted,
		RunID:      run.RunID,
		Success:    result.Success,
		Failed:     result.Failed,
		OccurredAt: run.FinishedAt,
	}); err != nil {
		log.Warn().Err(err).Str("run_id", run.RunID).Msg("failed to publish deletion event")
	}

	log.Info().
		Str("run_id", run.RunID).
		Int("success", result.Success).
		Int("failed", result.Failed).
		Msg("deletion finished")

	return result
}

// deleteSplits removes the splits of ids and returns error strings for the
// lookups or commits that failed.
func (d *Deleter) deleteSplits(ctx context.Context, ids []string) []string {
	log := logger.FromContext(ctx)

	var errs []string
	for _, sub := range docstore.Chunk(ids, LookupChunkSize) {
		docs, err := d.store.Query(ctx, domain.TransactionSplitsCollection, []docstore.Filter{
			docstore.Where(domain.FieldTransactionID, docstore.OpIn, sub),
		})
		if err != nil {
			log.Warn().Err(err).Strs("transaction_ids", sub).Msg("failed to look up splits")
			errs = append(errs, fmt.Sprintf("split lookup for %d transactions: %v", len(sub), err))
			continue
		}
		if len(docs) == 0 {
			continue
		}

		for _, batch := range docstore.Chunk(docs, docstore.MaxBatchWrites) {
			writes := make([]docstore.Write, len(batch))
			for j, doc := range batch {
				writes[j] = docstore.Write{Op: docstore.OpDelete, Collection: domain.TransactionSplitsCollection, ID: doc.ID}
			}
			if err := d.store.Commit(ctx, writes); err != nil {
				log.Warn().Err(err).Int("splits", len(writes)).Msg("failed to delete splits")
				errs = append(errs, fmt.Sprintf("split cleanup (%d splits): %v", len(writes), err))
			}
		}
	}
	return errs
}

func (d *Deleter) deleteParents(ctx context.Context, chunkIndex int, ids []string) domain.Result {
	log := logger.FromContext(ctx)

	writes := make([]docstore.Write, len(ids))
	for i, id := range ids {
		writes[i] = docstore.Write{Op: docstore.OpDelete, Collection: domain.TransactionsCollection, ID: id}
	}

	var result domain.Result
	err := d.store.Commit(ctx, writes)
	if err == nil {
		result.Success = len(ids)
		return result
	}

	log.Warn().Err(err).Int("chunk", chunkIndex+1).Msg("batch delete failed, deleting individually")
	for _, id := range ids {
		if err := d.store.Delete(ctx, domain.TransactionsCollection, id); err != nil {
			result.Fail(1, fmt.Sprintf("transaction %s: %v", id, err))
			continue
		}
		result.Success++
	}
	return result
}
