package ingest

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/metrics"
	"github.com/google/uuid"
)

// ChunkSize is the number of records committed atomically.
const ChunkSize = docstore.MaxBatchWrites

// WriteOptions configures one write pass.
type WriteOptions struct {
	// MaxRetries is the number of commit attempts per chunk. Zero means
	// DefaultMaxRetries.
	MaxRetries int
	OnProgress domain.ProgressFunc
}

func (o WriteOptions) attempts() int {
	if o.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return o.MaxRetries
}

// Writer commits transactions in atomic chunks with per-chunk retries.
type Writer struct {
	store docstore.Store
	delay DelayFunc
}

// NewWriter creates a Writer. A nil delay uses ExponentialBackoff.
func NewWriter(store docstore.Store, delay DelayFunc) *Writer {
	if delay == nil {
		delay = ExponentialBackoff
	}
	return &Writer{store: store, delay: delay}
}

// Write commits txs chunk by chunk. A chunk that exhausts its retries is
// counted as failed and the next chunk is still attempted. Progress is
// reported after every chunk.
func (w *Writer) Write(ctx context.Context, txs []domain.Transaction, opts WriteOptions) domain.Result {
	log := logger.FromContext(ctx)

	var result domain.Result
	total := len(txs)
	completed := 0

	for i, chunk := range docstore.Chunk(assignIDs(txs), ChunkSize) {
		writes := make([]docstore.Write, len(chunk))
		for j, tx := range chunk {
			writes[j] = docstore.Write{
				Op:         docstore.OpInsert,
				Collection: domain.TransactionsCollection,
				ID:         tx.ID,
				Data:       tx.ToDocument(),
			}
		}

		attempts, err := withRetry(ctx, w.delay, opts.attempts(), func(ctx context.Context) error {
			return w.store.Commit(ctx, writes)
		})
		if err != nil {
			log.Error().Err(err).Int("chunk", i+1).Int("size", len(chunk)).Int("attempts", attempts).Msg("chunk commit failed")
			result.Fail(len(chunk), fmt.Sprintf("chunk %d (%d transactions) failed after %d attempts: %v", i+1, len(chunk), attempts, err))
			metrics.ChunkCommitted(false)
		} else {
			log.Debug().Int("chunk", i+1).Int("size", len(chunk)).Int("attempts", attempts).Msg("chunk committed")
			result.Success += len(chunk)
			metrics.ChunkCommitted(true)
		}

		completed += len(chunk)
		opts.OnProgress.Emit(domain.NewProgress(domain.PhaseIngest, completed, total))
	}

	return result
}

// assignIDs gives every transaction a document id before the first commit
// attempt, so a retried chunk overwrites rather than duplicates.
func assignIDs(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		out[i] = tx
	}
	return out
}
