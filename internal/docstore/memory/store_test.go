package memory

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetMissing(t *testing.T) {
	s := NewStore()
	_, err := s.Get(context.Background(), "transactions", "nope")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestStore_QueryFilters(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Set(ctx, "transactions", "t1", map[string]interface{}{"bankAccountId": "a", "referenceNumber": "TXN-2025-0012-0001"}))
	require.NoError(t, s.Set(ctx, "transactions", "t2", map[string]interface{}{"bankAccountId": "a", "referenceNumber": "TXN-2025-0012-0002"}))
	require.NoError(t, s.Set(ctx, "transactions", "t3", map[string]interface{}{"bankAccountId": "b", "referenceNumber": "TXN-2024-0099-0001"}))

	tests := []struct {
		name    string
		filters []docstore.Filter
		want    []string
	}{
		{
			name:    "equality",
			filters: []docstore.Filter{docstore.Where("bankAccountId", docstore.OpEqual, "a")},
			want:    []string{"t1", "t2"},
		},
		{
			name: "range on string",
			filters: []docstore.Filter{
				docstore.Where("referenceNumber", docstore.OpGreaterOrEqual, "TXN-2025-"),
				docstore.Where("referenceNumber", docstore.OpLessOrEqual, "TXN-2025-\uf8ff"),
			},
			want: []string{"t1", "t2"},
		},
		{
			name:    "in",
			filters: []docstore.Filter{docstore.Where("bankAccountId", docstore.OpIn, []string{"b", "c"})},
			want:    []string{"t3"},
		},
		{
			name:    "missing field never matches",
			filters: []docstore.Filter{docstore.Where("payee", docstore.OpEqual, "x")},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Query(ctx, "transactions", tt.filters)
			require.NoError(t, err)
			var ids []string
			for _, d := range docs {
				ids = append(ids, d.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_QueryTooManyInValues(t *testing.T) {
	s := NewStore()
	values := make([]string, docstore.MaxInValues+1)
	_, err := s.Query(context.Background(), "transactionSplits", []docstore.Filter{
		docstore.Where("transactionId", docstore.OpIn, values),
	})
	assert.ErrorIs(t, err, docstore.ErrTooManyInValues)
}

func TestStore_QueryOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for id, n := range map[string]int{"x": 3, "y": 1, "z": 2} {
		require.NoError(t, s.Set(ctx, "c", id, map[string]interface{}{"n": n}))
	}

	docs, err := s.Query(ctx, "c", nil, docstore.OrderBy("n", docstore.Desc), docstore.Limit(2))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "x", docs[0].ID)
	assert.Equal(t, "z", docs[1].ID)
}

func TestStore_CommitAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Set(ctx, "c", "keep", map[string]interface{}{"v": 1}))

	// The update targets a missing document, so nothing in the batch applies.
	err := s.Commit(ctx, []docstore.Write{
		{Op: docstore.OpInsert, Collection: "c", ID: "new", Data: map[string]interface{}{"v": 2}},
		{Op: docstore.OpDelete, Collection: "c", ID: "keep"},
		{Op: docstore.OpUpdate, Collection: "c", ID: "missing", Data: map[string]interface{}{"v": 3}},
	})
	require.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Equal(t, 1, s.Count("c"))

	_, err = s.Get(ctx, "c", "new")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestStore_CommitTooLarge(t *testing.T) {
	s := NewStore()
	writes := make([]docstore.Write, docstore.MaxBatchWrites+1)
	assert.ErrorIs(t, s.Commit(context.Background(), writes), docstore.ErrBatchTooLarge)
}

func TestStore_ServerTimestamp(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore().WithClock(func() time.Time { return fixed })

	require.NoError(t, s.Commit(ctx, []docstore.Write{
		{Op: docstore.OpInsert, Collection: "c", ID: "a", Data: map[string]interface{}{"createdAt": docstore.ServerTimestamp}},
	}))

	doc, err := s.Get(ctx, "c", "a")
	require.NoError(t, err)
	assert.Equal(t, fixed, doc.Time("createdAt"))
}

func TestChunk(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	chunks := docstore.Chunk(ids, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, chunks)
	assert.Nil(t, docstore.Chunk([]string{}, 10))
}
