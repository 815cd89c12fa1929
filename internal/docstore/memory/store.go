package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of docstore.Store.
// It is safe for concurrent use. Data is lost when the process exits.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}
	now         func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]map[string]interface{}),
		now:         time.Now,
	}
}

// WithClock overrides the clock used to resolve docstore.ServerTimestamp.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Data: copyData(data)}, nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, collection string, filters []docstore.Filter, opts ...docstore.QueryOption) ([]docstore.Document, error) {
	if err := docstore.ValidateFilters(filters); err != nil {
		return nil, err
	}
	o := docstore.ApplyQueryOptions(opts)

	s.mu.RLock()
	var docs []docstore.Document
	for id, data := range s.collections[collection] {
		if matchesAll(data, filters) {
			docs = append(docs, docstore.Document{ID: id, Data: copyData(data)})
		}
	}
	s.mu.RUnlock()

	// Map iteration order is random; sort by ID so results are deterministic.
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	if o.OrderField != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			c := compare(docs[i].Data[o.OrderField], docs[j].Data[o.OrderField])
			if o.OrderDir == docstore.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if o.Limit > 0 && len(docs) > o.Limit {
		docs = docs[:o.Limit]
	}
	return docs, nil
}

// Add implements docstore.Store.
func (s *Store) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	id := uuid.NewString()
	return id, s.Set(ctx, collection, id, data)
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("memory.Set: document id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collection(collection)[id] = s.resolve(data)
	return nil
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, collection, id string, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("memory.Update: %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	for k, v := range s.resolve(data) {
		existing[k] = v
	}
	return nil
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], id)
	return nil
}

// Commit implements docstore.Store. Writes are validated first and applied
// under a single lock so the batch is all-or-nothing.
func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	if len(writes) > docstore.MaxBatchWrites {
		return docstore.ErrBatchTooLarge
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range writes {
		switch w.Op {
		case docstore.OpInsert, docstore.OpDelete:
		case docstore.OpUpdate:
			if _, ok := s.collections[w.Collection][w.ID]; !ok {
				return fmt.Errorf("memory.Commit: write %d: %s/%s: %w", i, w.Collection, w.ID, docstore.ErrNotFound)
			}
		default:
			return fmt.Errorf("memory.Commit: write %d: unknown op %q", i, w.Op)
		}
	}

	for _, w := range writes {
		switch w.Op {
		case docstore.OpInsert:
			id := w.ID
			if id == "" {
				id = uuid.NewString()
			}
			s.collection(w.Collection)[id] = s.resolve(w.Data)
		case docstore.OpUpdate:
			existing := s.collections[w.Collection][w.ID]
			for k, v := range s.resolve(w.Data) {
				existing[k] = v
			}
		case docstore.OpDelete:
			delete(s.collections[w.Collection], w.ID)
		}
	}
	return nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Close implements docstore.Store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) collection(name string) map[string]map[string]interface{} {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]map[string]interface{})
		s.collections[name] = c
	}
	return c
}

func (s *Store) resolve(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	now := s.now()
	for k, v := range data {
		if v == docstore.ServerTimestamp {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}

func copyData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func matchesAll(data map[string]interface{}, filters []docstore.Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok {
			return false
		}
		if !matches(v, f) {
			return false
		}
	}
	return true
}

func matches(v interface{}, f docstore.Filter) bool {
	switch f.Op {
	case docstore.OpIn:
		values, _ := f.Value.([]string)
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, candidate := range values {
			if candidate == s {
				return true
			}
		}
		return false
	case docstore.OpEqual:
		return compare(v, f.Value) == 0 && sameKind(v, f.Value)
	case docstore.OpLess:
		return sameKind(v, f.Value) && compare(v, f.Value) < 0
	case docstore.OpLessOrEqual:
		return sameKind(v, f.Value) && compare(v, f.Value) <= 0
	case docstore.OpGreater:
		return sameKind(v, f.Value) && compare(v, f.Value) > 0
	case docstore.OpGreaterOrEqual:
		return sameKind(v, f.Value) && compare(v, f.Value) >= 0
	}
	return false
}

func sameKind(a, b interface{}) bool {
	switch a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case time.Time:
		_, ok := b.(time.Time)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	}
	_, aok := toFloat(a)
	_, bok := toFloat(b)
	return aok && bok
}

// compare orders values of the same kind. Mismatched kinds compare equal and
// are filtered out by sameKind.
func compare(a, b interface{}) int {
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Compare(bv)
	case bool:
		bv, _ := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	}
	af, _ := toFloat(a)
	bf, _ := toFloat(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Ensure Store implements docstore.Store.
var _ docstore.Store = (*Store)(nil)
