// Package sequence allocates per-account, per-year reference numbers for
// transactions before they are written.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/docstore"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/metrics"
)

// rangeSentinel sorts after every character used in reference numbers.
const rangeSentinel = "\uf8ff"

// ErrBankAccountNotFound is wrapped by ResolutionError.
var ErrBankAccountNotFound = errors.New("bank account not found")

// ResolutionError reports the bank accounts that could not be resolved.
// It fails the whole allocation.
type ResolutionError struct {
	MissingIDs []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot allocate reference numbers: bank accounts not found: %s", strings.Join(e.MissingIDs, ", "))
}

func (e *ResolutionError) Unwrap() error {
	return ErrBankAccountNotFound
}

// Kind tells a real allocation from a degraded one.
type Kind int

const (
	Allocated Kind = iota
	Fallback
)

func (k Kind) String() string {
	if k == Fallback {
		return "fallback"
	}
	return "allocated"
}

// Allocation holds one reference number per pending transaction, in input order.
type Allocation struct {
	Kind    Kind
	Numbers []string
	// Reason is set for Fallback allocations.
	Reason string
}

// IsFallback reports whether the numbers came from fallback numbering.
func (a Allocation) IsFallback() bool {
	return a.Kind == Fallback
}

// AccountResolver resolves many bank accounts at once. Unresolvable ids are
// omitted from the result.
type AccountResolver interface {
	GetBatch(ctx context.Context, ids []string) map[string]*domain.BankAccount
}

// Allocator assigns reference numbers.
type Allocator struct {
	store    docstore.Store
	accounts AccountResolver
	prefix   string
	now      func() time.Time
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithPrefix overrides domain.DefaultReferencePrefix.
func WithPrefix(prefix string) Option {
	return func(a *Allocator) {
		if prefix != "" {
			a.prefix = prefix
		}
	}
}

// WithClock overrides the clock used for fallback numbers.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) {
		a.now = now
	}
}

// NewAllocator creates an Allocator.
func NewAllocator(store docstore.Store, accounts AccountResolver, opts ...Option) *Allocator {
	a := &Allocator{
		store:    store,
		accounts: accounts,
		prefix:   domain.DefaultReferencePrefix,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prefix returns the configured reference prefix.
func (a *Allocator) Prefix() string {
	return a.prefix
}

// Allocate assigns numbers continuing from the highest existing sequence in
// each (bank account, year) scope. Numbers within a scope follow input order.
func (a *Allocator) Allocate(ctx context.Context, txs []domain.PendingTransaction) (Allocation, error) {
	log := logger.FromContext(ctx)
	if len(txs) == 0 {
		return Allocation{Kind: Allocated}, nil
	}

	scopes := ScopesOf(txs)

	accountIDs := make([]string, 0, len(scopes))
	seen := make(map[string]bool)
	for _, s := range scopes {
		if !seen[s.BankAccountID] {
			seen[s.BankAccountID] = true
			accountIDs = append(accountIDs, s.BankAccountID)
		}
	}

	resolved := a.accounts.GetBatch(ctx, accountIDs)
	if len(resolved) != len(accountIDs) {
		var missing []string
		for _, id := range accountIDs {
			if _, ok := resolved[id]; !ok {
				missing = append(missing, id)
			}
		}
		return Allocation{}, &ResolutionError{MissingIDs: missing}
	}

	next := make(map[Scope]int, len(scopes))
	for _, s := range scopes {
		token := resolved[s.BankAccountID].Token()
		max, err := a.maxSequence(ctx, s.BankAccountID, s.Year, token)
		if err != nil {
			return Allocation{}, fmt.Errorf("Allocate: %s: %w", s, err)
		}
		next[s] = max + 1
	}

	numbers := make([]string, len(txs))
	for i, tx := range txs {
		s := ScopeOf(tx)
		seq := next[s]
		if seq > maxSequenceValue {
			return Allocation{}, fmt.Errorf("Allocate: %s: sequence space exhausted", s)
		}
		next[s] = seq + 1
		numbers[i] = domain.ReferenceNumber{
			Prefix:   a.prefix,
			Year:     s.Year,
			Token:    resolved[s.BankAccountID].Token(),
			Sequence: seq,
		}.String()
	}

	log.Debug().Int("transactions", len(txs)).Int("scopes", len(scopes)).Msg("allocated reference numbers")
	return Allocation{Kind: Allocated, Numbers: numbers}, nil
}

const maxSequenceValue = 9999

func (a *Allocator) maxSequence(ctx context.Context, bankAccountID string, year int, token string) (int, error) {
	refs, err := a.queryReferenceNumbers(ctx, bankAccountID, domain.ScopePrefix(a.prefix, year, token))
	if err != nil {
		return 0, err
	}
	max := 0
	for _, ref := range refs {
		parsed, err := domain.ParseReferenceNumber(ref, a.prefix, year, token)
		if err != nil {
			continue
		}
		if parsed.Sequence > max {
			max = parsed.Sequence
		}
	}
	return max, nil
}

func (a *Allocator) queryReferenceNumbers(ctx context.Context, bankAccountID, prefix string) ([]string, error) {
	docs, err := a.store.Query(ctx, domain.TransactionsCollection, []docstore.Filter{
		docstore.Where(domain.FieldBankAccountID, docstore.OpEqual, bankAccountID),
		docstore.Where(domain.FieldReferenceNumber, docstore.OpGreaterOrEqual, prefix),
		docstore.Where(domain.FieldReferenceNumber, docstore.OpLessOrEqual, prefix+rangeSentinel),
	})
	if err != nil {
		return nil, fmt.Errorf("querying reference numbers: %w", err)
	}
	refs := make([]string, 0, len(docs))
	for _, doc := range docs {
		if ref := doc.String(domain.FieldReferenceNumber); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// AllocateOrFallback allocates numbers and degrades to fallback numbering on
// any failure other than a ResolutionError, which is returned as is.
func (a *Allocator) AllocateOrFallback(ctx context.Context, txs []domain.PendingTransaction) (Allocation, error) {
	alloc, err := a.Allocate(ctx, txs)
	if err == nil {
		return alloc, nil
	}
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return Allocation{}, err
	}

	log := logger.FromContext(ctx)
	log.Warn().Err(err).Int("transactions", len(txs)).Msg("reference number allocation failed, using fallback numbering")
	metrics.FallbackAllocated()
	return a.Fallback(txs, err.Error()), nil
}

// Fallback numbers txs as PREFIX-YYYY-XXXX-<unix millis + index>. The numbers
// are unique within one call but carry no per-account sequence.
func (a *Allocator) Fallback(txs []domain.PendingTransaction, reason string) Allocation {
	base := a.now().UnixMilli()
	numbers := make([]string, len(txs))
	for i, tx := range txs {
		numbers[i] = fmt.Sprintf("%s%d", domain.ScopePrefix(a.prefix, tx.Year(), domain.FallbackToken), base+int64(i))
	}
	return Allocation{Kind: Fallback, Numbers: numbers, Reason: reason}
}

// ListReferenceNumbers returns every reference number of the account in year,
// sorted ascending. Fallback numbers of the account are included.
func (a *Allocator) ListReferenceNumbers(ctx context.Context, bankAccountID string, year int) ([]string, error) {
	refs, err := a.queryReferenceNumbers(ctx, bankAccountID, fmt.Sprintf("%s-%04d-", a.prefix, year))
	if err != nil {
		return nil, fmt.Errorf("ListReferenceNumbers: %w", err)
	}
	sort.Strings(refs)
	return refs, nil
}
