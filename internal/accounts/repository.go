// Package accounts loads bank account metadata and caches it for the
// duration of bulk operations.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// ErrNotFound is returned when a bank account does not exist.
var ErrNotFound = errors.New("bank account not found")

// Repository reads and writes bank accounts in the document store.
type Repository struct {
	store docstore.Store
}

// NewRepository creates a Repository backed by store.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// GetBankAccount fetches one account by id.
func (r *Repository) GetBankAccount(ctx context.Context, id string) (*domain.BankAccount, error) {
	doc, err := r.store.Get(ctx, domain.BankAccountsCollection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("GetBankAccount: %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("GetBankAccount: fetching %s: %w", id, err)
	}
	return domain.BankAccountFromDocument(doc), nil
}

// ListBankAccounts returns every account ordered by name.
func (r *Repository) ListBankAccounts(ctx context.Context) ([]*domain.BankAccount, error) {
	docs, err := r.store.Query(ctx, domain.BankAccountsCollection, nil, docstore.OrderBy("name", docstore.Asc))
	if err != nil {
		return nil, fmt.Errorf("ListBankAccounts: querying: %w", err)
	}
	out := make([]*domain.BankAccount, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.BankAccountFromDocument(doc))
	}
	return out, nil
}

// SaveBankAccount writes the account. An empty ID allocates one, which is
// returned.
func (r *Repository) SaveBankAccount(ctx context.Context, account *domain.BankAccount) (string, error) {
	if account.ID == "" {
		id, err := r.store.Add(ctx, domain.BankAccountsCollection, account.ToDocument())
		if err != nil {
			return "", fmt.Errorf("SaveBankAccount: adding: %w", err)
		}
		account.ID = id
		return id, nil
	}
	if err := r.store.Set(ctx, domain.BankAccountsCollection, account.ID, account.ToDocument()); err != nil {
		return "", fmt.Errorf("SaveBankAccount: setting %s: %w", account.ID, err)
	}
	return account.ID, nil
}
