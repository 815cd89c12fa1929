package ingest

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/logger"
)

// SerialWriter writes one record at a time. It is the last resort when a
// batched strategy fails.
type SerialWriter struct {
	store docstore.Store
	delay DelayFunc
}

// NewSerialWriter creates a SerialWriter. A nil delay uses ExponentialBackoff.
func NewSerialWriter(store docstore.Store, delay DelayFunc) *SerialWriter {
	if delay == nil {
		delay = ExponentialBackoff
	}
	return &SerialWriter{store: store, delay: delay}
}

// Write sets each transaction under its id, retrying each record on its own.
func (s *SerialWriter) Write(ctx context.Context, txs []domain.Transaction, opts WriteOptions) domain.Result {
	log := logger.FromContext(ctx)

	var result domain.Result
	txs = assignIDs(txs)
	for i, tx := range txs {
		data := tx.ToDocument()
		_, err := withRetry(ctx, s.delay, opts.attempts(), func(ctx context.Context) error {
			return s.store.Set(ctx, domain.TransactionsCollection, tx.ID, data)
		})
		if err != nil {
			log.Warn().Err(err).Str("reference_number", tx.ReferenceNumber).Msg("failed to write transaction")
			result.Fail(1, fmt.Sprintf("transaction %s (%s): %v", tx.ID, tx.ReferenceNumber, err))
		} else {
			result.Success++
		}
		opts.OnProgress.Emit(domain.NewProgress(domain.PhaseIngest, i+1, len(txs)))
	}
	return result
}
