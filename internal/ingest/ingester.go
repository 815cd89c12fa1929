// Package ingest writes batches of pending transactions to the ledger,
// choosing a write strategy by batch size.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/events"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/metrics"
	"github.com/dvloznov/ledger-ingest/internal/runs"
	"github.com/dvloznov/ledger-ingest/internal/sequence"
	"github.com/google/uuid"
)

// ErrStrategiesExhausted is returned when both the selected strategy and the
// serial fallback fail outright.
var ErrStrategiesExhausted = errors.New("all ingestion strategies failed")

// Options configures one Ingest call.
type Options struct {
	OnProgress domain.ProgressFunc
	// MaxRetries overrides the ingester default when positive.
	MaxRetries int
}

// Report is the outcome of an Ingest call.
type Report struct {
	domain.Result
	RunID            string        `json:"run_id"`
	Strategy         Strategy      `json:"strategy"`
	SerialFallback   bool          `json:"serial_fallback,omitempty"`
	Allocation       string        `json:"allocation"`
	AllocationReason string        `json:"allocation_reason,omitempty"`
	ReferenceNumbers []string      `json:"reference_numbers"`
	Duration         time.Duration `json:"duration"`
}

// Allocator numbers pending transactions.
type Allocator interface {
	AllocateOrFallback(ctx context.Context, txs []domain.PendingTransaction) (sequence.Allocation, error)
}

// Ingester is the entry point for bulk ingestion.
type Ingester struct {
	allocator  Allocator
	locker     *sequence.ScopeLocker
	recorder   runs.Recorder
	publisher  events.Publisher
	delay      DelayFunc
	wavePause  time.Duration
	maxRetries int
	now        func() time.Time

	chunked  *Writer
	parallel *Orchestrator
	serial   *SerialWriter
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithRecorder records every run.
func WithRecorder(r runs.Recorder) Option {
	return func(in *Ingester) { in.recorder = r }
}

// WithPublisher publishes an event after every run.
func WithPublisher(p events.Publisher) Option {
	return func(in *Ingester) { in.publisher = p }
}

// WithDelay overrides ExponentialBackoff between retries.
func WithDelay(d DelayFunc) Option {
	return func(in *Ingester) { in.delay = d }
}

// WithWavePause overrides DefaultWavePause.
func WithWavePause(d time.Duration) Option {
	return func(in *Ingester) { in.wavePause = d }
}

// WithMaxRetries sets the default attempts per chunk or record.
func WithMaxRetries(n int) Option {
	return func(in *Ingester) {
		if n > 0 {
			in.maxRetries = n
		}
	}
}

// WithScopeLocker shares a locker between ingesters of one process.
func WithScopeLocker(l *sequence.ScopeLocker) Option {
	return func(in *Ingester) { in.locker = l }
}

// New creates an Ingester writing to store.
func New(store docstore.Store, allocator Allocator, opts ...Option) *Ingester {
	in := &Ingester{
		allocator:  allocator,
		locker:     sequence.NewScopeLocker(),
		recorder:   runs.NopRecorder{},
		publisher:  events.NopPublisher{},
		delay:      ExponentialBackoff,
		wavePause:  DefaultWavePause,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	in.chunked = NewWriter(store, in.delay)
	in.parallel = NewOrchestrator(in.chunked, in.wavePause)
	in.serial = NewSerialWriter(store, in.delay)
	return in
}

// Ingest validates, numbers and writes txs. Partial failures are reported in
// the Report; an error is returned only for invalid input, unresolvable bank
// accounts, or when every strategy failed.
func (in *Ingester) Ingest(ctx context.Context, txs []domain.PendingTransaction, opts Options) (Report, error) {
	log := logger.FromContext(ctx)
	started := in.now()

	report := Report{RunID: uuid.NewString()}
	if len(txs) == 0 {
		report.Strategy = SelectStrategy(0)
		report.Allocation = sequence.Allocated.String()
		return report, nil
	}

	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return report, fmt.Errorf("Ingest: transaction %d: %w", i, err)
		}
		if !tx.HasSingleAmount() {
			log.Warn().Int("index", i).Str("bank_account_id", tx.BankAccountID).Msg("transaction should have exactly one of income or expense")
		}
	}

	unlock := in.locker.Lock(sequence.ScopesOf(txs))
	defer unlock()

	alloc, err := in.allocator.AllocateOrFallback(ctx, txs)
	if err != nil {
		return report, fmt.Errorf("Ingest: allocating reference numbers: %w", err)
	}
	report.Allocation = alloc.Kind.String()
	report.AllocationReason = alloc.Reason
	report.ReferenceNumbers = alloc.Numbers

	built := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		built[i] = domain.NewTransaction(uuid.NewString(), tx, alloc.Numbers[i])
		if alloc.IsFallback() {
			built[i].NeedsReview = true
			built[i].ReviewReason = "fallback reference number: " + alloc.Reason
		}
	}

	strategy := SelectStrategy(len(built))
	report.Strategy = strategy
	metrics.StrategySelected(strategy.String())

	run := runs.Run{
		RunID:      report.RunID,
		Operation:  runs.OperationIngest,
		Strategy:   strategy.String(),
		Allocation: report.Allocation,
		Total:      len(built),
		Status:     runs.StatusRunning,
		StartedAt:  started,
	}
	if err := in.recorder.StartRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("run_id", run.RunID).Msg("failed to record run start")
	}

	wopts := WriteOptions{MaxRetries: in.maxRetries, OnProgress: monotonic(opts.OnProgress)}
	if opts.MaxRetries > 0 {
		wopts.MaxRetries = opts.MaxRetries
	}

	log.Info().
		Str("run_id", report.RunID).
		Int("transactions", len(built)).
		Str("strategy", strategy.String()).
		Str("allocation", report.Allocation).
		Msg("ingesting transactions")

	result, err := in.run(ctx, strategy, built, wopts)
	if err != nil && strategy != Serial {
		log.Warn().Err(err).Str("strategy", strategy.String()).Msg("strategy failed, falling back to serial writes")
		report.SerialFallback = true
		result, err = in.run(ctx, Serial, built, wopts)
	}

	report.Duration = in.now().Sub(started)
	run.FinishedAt = in.now()

	if err != nil {
		report.Result = domain.Result{}
		report.Fail(len(built), err.Error())
		run.Success, run.Failed, run.Errors, run.Status = 0, len(built), report.Errors, runs.StatusFailed
		in.finish(ctx, run)
		return report, fmt.Errorf("Ingest: %w: %v", ErrStrategiesExhausted, err)
	}

	report.Result = result
	run.Success = result.Success
	run.Failed = result.Failed
	run.Errors = runs.TruncateErrors(result.Errors)
	run.Status = runs.StatusFor(result.Success, result.Failed)
	in.finish(ctx, run)

	metrics.RecordsProcessed("ingest", result.Success, result.Failed)
	metrics.ObserveIngest(report.Duration.Seconds())

	if err := in.publisher.Publish(ctx, report.RunID, events.TransactionsIngested{
		Type:         events.TypeTransactionsIngested,
		RunID:        report.RunID,
		Strategy:     strategy.String(),
		Allocation:   report.Allocation,
		Success:      result.Success,
		Failed:       result.Failed,
		AccountIDs:   accountIDs(txs),
		NeedsReview:  alloc.IsFallback(),
		OccurredAt:   run.FinishedAt,
		DurationMsec: report.Duration.Milliseconds(),
	}); err != nil {
		log.Warn().Err(err).Str("run_id", report.RunID).Msg("failed to publish ingestion event")
	}

	log.Info().
		Str("run_id", report.RunID).
		Int("success", result.Success).
		Int("failed", result.Failed).
		Dur("duration", report.Duration).
		Msg("ingestion finished")

	return report, nil
}

func (in *Ingester) finish(ctx context.Context, run runs.Run) {
	if err := in.recorder.FinishRun(ctx, run); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("run_id", run.RunID).Msg("failed to record run result")
	}
}

// run executes one strategy, turning a panic into an error.
func (in *Ingester) run(ctx context.Context, strategy Strategy, txs []domain.Transaction, opts WriteOptions) (result domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s strategy panicked: %v", strategy, r)
		}
	}()

	switch strategy {
	case Serial:
		return in.serial.Write(ctx, txs, opts), nil
	case ChunkedAtomic:
		return in.chunked.Write(ctx, txs, opts), nil
	case BoundedParallel:
		return in.parallel.Write(ctx, txs, opts), nil
	}
	return domain.Result{}, fmt.Errorf("unknown strategy %d", int(strategy))
}

// monotonic drops events that would move progress backwards, which happens
// when a failed strategy is replaced by the serial writer.
func monotonic(fn domain.ProgressFunc) domain.ProgressFunc {
	if fn == nil {
		return nil
	}
	var (
		mu   sync.Mutex
		last = -1
	)
	return func(p domain.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.Completed <= last {
			return
		}
		last = p.Completed
		fn(p)
	}
}

func accountIDs(txs []domain.PendingTransaction) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, tx := range txs {
		if !seen[tx.BankAccountID] {
			seen[tx.BankAccountID] = true
			ids = append(ids, tx.BankAccountID)
		}
	}
	sort.Strings(ids)
	return ids
}
