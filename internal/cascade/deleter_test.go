package cascade

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/dvloznov/ledger-ingest/internal/docstore/docstoretest"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store *docstoretest.MockStore, n, splitsEach int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("tx-%04d", i)
		ids[i] = id
		tx := domain.Transaction{ID: id, BankAccountID: "acc-1", ReferenceNumber: fmt.Sprintf("TXN-2025-0012-%04d", i+1)}
		require.NoError(t, store.Inner.Set(ctx, domain.TransactionsCollection, id, tx.ToDocument()))
		for j := 0; j < splitsEach; j++ {
			split := domain.TransactionSplit{TransactionID: id, Index: j, Amount: decimal.NewFromInt(1), Category: "general"}
			require.NoError(t, store.Inner.Set(ctx, domain.TransactionSplitsCollection, fmt.Sprintf("%s-s%d", id, j), split.ToDocument()))
		}
	}
	return ids
}

func TestDeleteMany_RemovesSplitsAndParent(t *testing.T) {
	store := docstoretest.NewMockStore()
	ids := seed(t, store, 1, 3)

	result := NewDeleter(store).DeleteMany(context.Background(), ids, Options{})

	assert.Equal(t, 1, result.Success)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 0, store.Inner.Count(domain.TransactionsCollection))
	assert.Equal(t, 0, store.Inner.Count(domain.TransactionSplitsCollection))
}

func TestDeleteMany_SplitFailureDoesNotBlockParent(t *testing.T) {
	store := docstoretest.NewMockStore()
	ids := seed(t, store, 2, 3)
	store.CommitFunc = func(ctx context.Context, writes []docstore.Write) error {
		if writes[0].Collection == domain.TransactionSplitsCollection {
			return errors.New("split commit rejected")
		}
		return store.Inner.Commit(ctx, writes)
	}

	result := NewDeleter(store).DeleteMany(context.Background(), ids, Options{})

	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "split cleanup")
	assert.Equal(t, 0, store.Inner.Count(domain.TransactionsCollection))
	assert.Equal(t, 6, store.Inner.Count(domain.TransactionSplitsCollection))
}

func TestDeleteMany_SplitLookupIsSubChunked(t *testing.T) {
	store := docstoretest.NewMockStore()
	ids := seed(t, store, 25, 1)
	var lookups []int
	store.QueryFunc = func(ctx context.Context, collection string, filters []docstore.Filter, opts ...docstore.QueryOption) ([]docstore.Document, error) {
		lookups = append(lookups, len(filters[0].Value.([]string)))
		return store.Inner.Query(ctx, collection, filters, opts...)
	}

	result := NewDeleter(store).DeleteMany(context.Background(), ids, Options{})

	assert.Equal(t, 25, result.Success)
	assert.Equal(t, []int{10, 10, 5}, lookups)
	assert.Equal(t, 0, store.Inner.Count(domain.TransactionSplitsCollection))
}

func TestDeleteMany_ParentCommitFallsBackToSingleDeletes(t *testing.T) {
	store := docstoretest.NewMockStore()
	ids := seed(t, store, 4, 0)
	store.CommitFunc = func(ctx context.Context, writes []docstore.Write) error {
		return errors.New("transaction too big")
	}
	store.DeleteFunc = func(ctx context.Context, collection, id string) error {
		if id == "tx-0002" {
			return errors.New("permission denied")
		}
		return store.Inner.Delete(ctx, collection, id)
	}

	result := NewDeleter(store).DeleteMany(context.Background(), ids, Options{})

	assert.Equal(t, 3, result.Success)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "tx-0002")
	assert.Equal(t, 4, store.Deletes())
	assert.Equal(t, 1, store.Inner.Count(domain.TransactionsCollection))
}

func TestDeleteMany_ProgressPerPhase(t *testing.T) {
	store := docstoretest.NewMockStore()
	ids := seed(t, store, 700, 0)
	var got []domain.Progress

	NewDeleter(store).DeleteMany(context.Background(), ids, Options{OnProgress: func(p domain.Progress) {
		got = append(got, p)
	}})

	require.Len(t, got, 4)
	assert.Equal(t, domain.Progress{Completed: 500, Total: 700, Percentage: 71, Phase: domain.PhaseSplitCleanup}, got[0])
	assert.Equal(t, domain.Progress{Completed: 500, Total: 700, Percentage: 71, Phase: domain.PhaseParentDeletion}, got[1])
	assert.Equal(t, domain.PhaseSplitCleanup, got[2].Phase)
	assert.Equal(t, 700, got[3].Completed)
	assert.Equal(t, 100, got[3].Percentage)
}

func TestDeleteMany_Empty(t *testing.T) {
	result := NewDeleter(docstoretest.NewMockStore()).DeleteMany(context.Background(), nil, Options{})
	assert.Equal(t, 0, result.Total())
}
