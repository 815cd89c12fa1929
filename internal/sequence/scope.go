package sequence

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// Scope is the unit of reference number uniqueness.
type Scope struct {
	BankAccountID string
	Year          int
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%04d", s.BankAccountID, s.Year)
}

// ScopeOf returns the scope a pending transaction is numbered in.
func ScopeOf(tx domain.PendingTransaction) Scope {
	return Scope{BankAccountID: tx.BankAccountID, Year: tx.Year()}
}

// ScopesOf returns the distinct scopes of txs in first-seen order.
func ScopesOf(txs []domain.PendingTransaction) []Scope {
	seen := make(map[Scope]bool)
	var scopes []Scope
	for _, tx := range txs {
		s := ScopeOf(tx)
		if !seen[s] {
			seen[s] = true
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// ScopeLocker serialises allocate-then-write sections per scope within this
// process. Callers in other processes are not coordinated. An entry lives only
// while some caller holds or waits for its scope.
type ScopeLocker struct {
	mapMu   sync.Mutex
	entries map[string]*scopeEntry
}

type scopeEntry struct {
	mu   sync.Mutex
	refs int
}

// NewScopeLocker creates an empty ScopeLocker.
func NewScopeLocker() *ScopeLocker {
	return &ScopeLocker{entries: make(map[string]*scopeEntry)}
}

func (l *ScopeLocker) acquire(key string) *scopeEntry {
	l.mapMu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &scopeEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mapMu.Unlock()

	e.mu.Lock()
	return e
}

func (l *ScopeLocker) release(key string, e *scopeEntry) {
	e.mu.Unlock()

	l.mapMu.Lock()
	defer l.mapMu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock acquires every scope and returns the function releasing them.
// Locks are taken in sorted key order so overlapping callers cannot deadlock.
func (l *ScopeLocker) Lock(scopes []Scope) (unlock func()) {
	keys := make([]string, 0, len(scopes))
	seen := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		k := s.String()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	held := make([]*scopeEntry, 0, len(keys))
	for _, k := range keys {
		held = append(held, l.acquire(k))
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(keys[i], held[i])
		}
	}
}

func (l *ScopeLocker) size() int {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()
	return len(l.entries)
}
