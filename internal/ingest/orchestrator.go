package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultWavePause separates consecutive waves of sub-batches.
const DefaultWavePause = 100 * time.Millisecond

// SubBatchSize is clamp(20, total/20, 100).
func SubBatchSize(total int) int {
	return clamp(20, total/20, 100)
}

// Concurrency is clamp(3, total/200, 8).
func Concurrency(total int) int {
	return clamp(3, total/200, 8)
}

func clamp(lo, v, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Orchestrator runs chunked writers over sub-batches in bounded waves.
type Orchestrator struct {
	writer    *Writer
	wavePause time.Duration
}

// NewOrchestrator creates an Orchestrator using writer for every sub-batch.
func NewOrchestrator(writer *Writer, wavePause time.Duration) *Orchestrator {
	return &Orchestrator{writer: writer, wavePause: wavePause}
}

// Write partitions txs into sub-batches and writes them at most
// Concurrency(len(txs)) at a time. A sub-batch whose worker fails or panics
// is counted as fully failed; the others are unaffected.
func (o *Orchestrator) Write(ctx context.Context, txs []domain.Transaction, opts WriteOptions) domain.Result {
	log := logger.FromContext(ctx)

	total := len(txs)
	txs = assignIDs(txs)
	batches := docstore.Chunk(txs, SubBatchSize(total))
	width := Concurrency(total)

	log.Info().
		Int("transactions", total).
		Int("sub_batches", len(batches)).
		Int("concurrency", width).
		Msg("starting bounded parallel ingestion")

	var (
		progressMu sync.Mutex
		completed  int
		reported   = make([]int, len(batches))
	)
	// advance moves sub-batch i to done records and emits the global total.
	advance := func(i, done int) {
		progressMu.Lock()
		defer progressMu.Unlock()
		if done <= reported[i] {
			return
		}
		completed += done - reported[i]
		reported[i] = done
		opts.OnProgress.Emit(domain.NewProgress(domain.PhaseIngest, completed, total))
	}

	results := make([]domain.Result, len(batches))
	for wave, start := 0, 0; start < len(batches); wave, start = wave+1, start+width {
		if wave > 0 && o.wavePause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.wavePause):
			}
		}

		end := start + width
		if end > len(batches) {
			end = len(batches)
		}

		// The wave bounds the fan-out; a failed sub-batch does not cancel its siblings.
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				res, err := o.runSubBatch(ctx, batches[i], opts.MaxRetries, func(p domain.Progress) {
					advance(i, p.Completed)
				})
				if err != nil {
					res = domain.Result{}
					res.Fail(len(batches[i]), fmt.Sprintf("sub-batch %d (%d transactions): %v", i+1, len(batches[i]), err))
					err = fmt.Errorf("sub-batch %d: %w", i+1, err)
				}
				results[i] = res
				advance(i, len(batches[i]))
				return err
			})
		}
		if err := g.Wait(); err != nil {
			log.Error().Err(err).Int("wave", wave+1).Msg("sub-batch worker failed")
		}
	}

	var result domain.Result
	for _, r := range results {
		result.Merge(r)
	}
	return result
}

func (o *Orchestrator) runSubBatch(ctx context.Context, batch []domain.Transaction, maxRetries int, onProgress domain.ProgressFunc) (res domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return o.writer.Write(ctx, batch, WriteOptions{MaxRetries: maxRetries, OnProgress: onProgress}), nil
}
