// Package app wires the engine and its backends from a Config.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/ledger-ingest/internal/accounts"
	"github.com/dvloznov/ledger-ingest/internal/cascade"
	"github.com/dvloznov/ledger-ingest/internal/config"
	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/dvloznov/ledger-ingest/internal/docstore/firestore"
	"github.com/dvloznov/ledger-ingest/internal/docstore/memory"
	"github.com/dvloznov/ledger-ingest/internal/events"
	"github.com/dvloznov/ledger-ingest/internal/events/kafka"
	infraBQ "github.com/dvloznov/ledger-ingest/internal/infra/bigquery"
	"github.com/dvloznov/ledger-ingest/internal/importer"
	"github.com/dvloznov/ledger-ingest/internal/ingest"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/runs"
	"github.com/dvloznov/ledger-ingest/internal/sequence"
)

// App holds the wired components. Close releases every backend client.
type App struct {
	Config    config.Config
	Store     docstore.Store
	Accounts  *accounts.Repository
	Cache     *accounts.Cache
	Allocator *sequence.Allocator
	Ingester  *ingest.Ingester
	Deleter   *cascade.Deleter
	Recorder  runs.Recorder
	Publisher events.Publisher
	Importer  *importer.Importer
	Storage   *importer.GCSFetcher

	closers []func() error
}

// New connects to the backends named by cfg.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log := logger.FromContext(ctx)
	a := &App{Config: cfg}

	switch cfg.Store {
	case config.StoreMemory:
		log.Warn().Msg("Using in-memory document store, data is lost on exit")
		a.Store = memory.NewStore()
	default:
		store, err := firestore.NewStore(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
		if err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Store = store
	}
	a.closers = append(a.closers, a.Store.Close)

	a.Recorder = runs.NopRecorder{}
	if cfg.BigQueryDataset != "" && cfg.ProjectID != "" {
		repo, err := infraBQ.NewRunRepository(ctx, cfg.ProjectID, cfg.BigQueryDataset)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Recorder = repo
		a.closers = append(a.closers, repo.Close)
	} else {
		log.Info().Msg("BIGQUERY_DATASET not set, ingestion runs are not recorded")
	}

	a.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		pub := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.Publisher = pub
		a.closers = append(a.closers, pub.Close)
	}

	if cfg.Store == config.StoreFirestore || cfg.GCSBucket != "" {
		storage, err := importer.NewGCSFetcher(ctx)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Storage = storage
		a.closers = append(a.closers, storage.Close)
	}

	a.wire()
	return a, nil
}

// NewWithStore wires the engine over an existing store with no-op audit and
// event backends.
func NewWithStore(cfg config.Config, store docstore.Store) *App {
	a := &App{
		Config:    cfg,
		Store:     store,
		Recorder:  runs.NopRecorder{},
		Publisher: events.NopPublisher{},
	}
	a.wire()
	return a
}

func (a *App) wire() {
	cfg := a.Config
	a.Accounts = accounts.NewRepository(a.Store)

	var cacheOpts []accounts.CacheOption
	if cfg.AccountCacheTTL > 0 {
		cacheOpts = append(cacheOpts, accounts.WithTTL(cfg.AccountCacheTTL))
	}
	a.Cache = accounts.NewCache(a.Accounts, cacheOpts...)

	a.Allocator = sequence.NewAllocator(a.Store, a.Cache, sequence.WithPrefix(cfg.ReferencePrefix))

	a.Ingester = ingest.New(a.Store, a.Allocator,
		ingest.WithRecorder(a.Recorder),
		ingest.WithPublisher(a.Publisher),
		ingest.WithMaxRetries(cfg.MaxRetries),
	)
	a.Deleter = cascade.NewDeleter(a.Store,
		cascade.WithRecorder(a.Recorder),
		cascade.WithPublisher(a.Publisher),
	)

	var objects importer.ObjectFetcher
	if a.Storage != nil {
		objects = a.Storage
	}
	a.Importer = importer.New(objects)
}

// Close releases backends in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
