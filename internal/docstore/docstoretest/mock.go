// Package docstoretest provides a docstore.Store with per-method overrides
// for failure injection in tests.
package docstoretest

import (
	"context"
	"sync"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/dvloznov/ledger-ingest/internal/docstore/memory"
)

// MockStore delegates to an in-memory store unless a func field is set.
type MockStore struct {
	Inner *memory.Store

	GetFunc    func(ctx context.Context, collection, id string) (docstore.Document, error)
	QueryFunc  func(ctx context.Context, collection string, filters []docstore.Filter, opts ...docstore.QueryOption) ([]docstore.Document, error)
	SetFunc    func(ctx context.Context, collection, id string, data map[string]interface{}) error
	DeleteFunc func(ctx context.Context, collection, id string) error
	CommitFunc func(ctx context.Context, writes []docstore.Write) error

	mu      sync.Mutex
	commits int
	sets    int
	deletes int
}

// NewMockStore wraps a fresh in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{Inner: memory.NewStore()}
}

func (m *MockStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, collection, id)
	}
	return m.Inner.Get(ctx, collection, id)
}

func (m *MockStore) Query(ctx context.Context, collection string, filters []docstore.Filter, opts ...docstore.QueryOption) ([]docstore.Document, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, collection, filters, opts...)
	}
	return m.Inner.Query(ctx, collection, filters, opts...)
}

func (m *MockStore) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	return m.Inner.Add(ctx, collection, data)
}

func (m *MockStore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	m.mu.Lock()
	m.sets++
	m.mu.Unlock()
	if m.SetFunc != nil {
		return m.SetFunc(ctx, collection, id, data)
	}
	return m.Inner.Set(ctx, collection, id, data)
}

func (m *MockStore) Update(ctx context.Context, collection, id string, data map[string]interface{}) error {
	return m.Inner.Update(ctx, collection, id, data)
}

func (m *MockStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	m.deletes++
	m.mu.Unlock()
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, collection, id)
	}
	return m.Inner.Delete(ctx, collection, id)
}

func (m *MockStore) Commit(ctx context.Context, writes []docstore.Write) error {
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, writes)
	}
	return m.Inner.Commit(ctx, writes)
}

func (m *MockStore) Close() error {
	return nil
}

// Commits returns the number of Commit calls.
func (m *MockStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Sets returns the number of Set calls.
func (m *MockStore) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// Deletes returns the number of Delete calls.
func (m *MockStore) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

var _ docstore.Store = (*MockStore)(nil)
