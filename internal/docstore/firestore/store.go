// Package firestore adapts Cloud Firestore to docstore.Store.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store is the Firestore-backed implementation of docstore.Store.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore client for projectID. An empty databaseID uses
// the default database.
func NewStore(ctx context.Context, projectID, databaseID string) (*Store, error) {
	var (
		client *firestore.Client
		err    error
	)
	if databaseID == "" {
		client, err = firestore.NewClient(ctx, projectID)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	}
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// Close closes the Firestore client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, fmt.Errorf("Get: %s/%s: %w", collection, id, err)
	}
	return docstore.Document{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, collection string, filters []docstore.Filter, opts ...docstore.QueryOption) ([]docstore.Document, error) {
	if err := docstore.ValidateFilters(filters); err != nil {
		return nil, err
	}
	o := docstore.ApplyQueryOptions(opts)

	q := s.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Field, string(f.Op), f.Value)
	}
	if o.OrderField != "" {
		dir := firestore.Asc
		if o.OrderDir == docstore.Desc {
			dir = firestore.Desc
		}
		q = q.OrderBy(o.OrderField, dir)
	}
	if o.Limit > 0 {
		q = q.Limit(o.Limit)
	}

	it := q.Documents(ctx)
	defer it.Stop()

	var docs []docstore.Document
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Query: %s: iter next: %w", collection, err)
		}
		docs = append(docs, docstore.Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return docs, nil
}

// Add implements docstore.Store.
func (s *Store) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestore(data))
	if err != nil {
		return "", fmt.Errorf("Add: %s: %w", collection, err)
	}
	return ref.ID, nil
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, toFirestore(data)); err != nil {
		return fmt.Errorf("Set: %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update implements docstore.Store.
func (s *Store) Update(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, toUpdates(data)); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("Update: %s/%s: %w", collection, id, docstore.ErrNotFound)
		}
		return fmt.Errorf("Update: %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete implements docstore.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("Delete: %s/%s: %w", collection, id, err)
	}
	return nil
}

// Commit implements docstore.Store using a single WriteBatch.
func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > docstore.MaxBatchWrites {
		return docstore.ErrBatchTooLarge
	}

	batch := s.client.Batch()
	for i, w := range writes {
		coll := s.client.Collection(w.Collection)
		switch w.Op {
		case docstore.OpInsert:
			ref := coll.NewDoc()
			if w.ID != "" {
				ref = coll.Doc(w.ID)
			}
			batch.Set(ref, toFirestore(w.Data))
		case docstore.OpUpdate:
			batch.Update(coll.Doc(w.ID), toUpdates(w.Data))
		case docstore.OpDelete:
			batch.Delete(coll.Doc(w.ID))
		default:
			return fmt.Errorf("Commit: write %d: unknown op %q", i, w.Op)
		}
	}

	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("Commit: %d writes: %w", len(writes), err)
	}
	return nil
}

func toFirestore(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if v == docstore.ServerTimestamp {
			out[k] = firestore.ServerTimestamp
			continue
		}
		out[k] = v
	}
	return out
}

func toUpdates(data map[string]interface{}) []firestore.Update {
	updates := make([]firestore.Update, 0, len(data))
	for k, v := range toFirestore(data) {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	return updates
}

// Ensure Store implements docstore.Store.
var _ docstore.Store = (*Store)(nil)
