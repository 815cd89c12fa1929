package accounts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/metrics"
)

// DefaultTTL is how long a cached account stays fresh.
const DefaultTTL = 5 * time.Minute

// Fetcher loads an account from the backing store.
type Fetcher interface {
	GetBankAccount(ctx context.Context, id string) (*domain.BankAccount, error)
}

type entry struct {
	account   *domain.BankAccount
	fetchedAt time.Time
}

// Cache is a time-bounded, process-local cache of bank accounts.
// Not-found results are never cached.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a Cache in front of fetcher.
func NewCache(fetcher Fetcher, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) lookup(id string) (*domain.BankAccount, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return e.account, true
}

func (c *Cache) store(id string, account *domain.BankAccount) {
	c.mu.Lock()
	c.entries[id] = entry{account: account, fetchedAt: c.now()}
	c.mu.Unlock()
}

// Get returns the account, fetching it when absent or expired.
func (c *Cache) Get(ctx context.Context, id string) (*domain.BankAccount, error) {
	if account, ok := c.lookup(id); ok {
		metrics.CacheLookup(true)
		return account, nil
	}
	metrics.CacheLookup(false)

	account, err := c.fetcher.GetBankAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNotFound
	}
	c.store(id, account)
	return account, nil
}

// GetBatch resolves many ids at once. Only missing or expired ids are
// fetched. Ids that cannot be resolved are absent from the result.
func (c *Cache) GetBatch(ctx context.Context, ids []string) map[string]*domain.BankAccount {
	log := logger.FromContext(ctx)

	out := make(map[string]*domain.BankAccount, len(ids))
	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if account, ok := c.lookup(id); ok {
			metrics.CacheLookup(true)
			out[id] = account
			continue
		}
		metrics.CacheLookup(false)
		missing = append(missing, id)
	}

	for _, id := range missing {
		account, err := c.fetcher.GetBankAccount(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				log.Warn().Err(err).Str("bank_account_id", id).Msg("failed to fetch bank account")
			}
			continue
		}
		if account == nil {
			continue
		}
		c.store(id, account)
		out[id] = account
	}

	return out
}

// Invalidate drops one entry.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of entries, including expired ones not yet refreshed.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
