// Package memory is a process-local storage backend for development runs and
// service tests. Transactions are serialized: Begin takes a store-wide lock and
// a snapshot that Rollback restores, so FOR UPDATE semantics hold trivially.
package memory

import (
	"context"
	"errors"
	"sync"

	"microcredit-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// Store holds accounts, holds and ledger entries.
type Store struct {
	txMu sync.Mutex   // held for the lifetime of a transaction
	mu   sync.RWMutex // guards the maps below

	accounts map[int64]domain.Account
	holds    map[int64]domain.Hold
	entries  []domain.LedgerEntry

	nextAccountID int64
	nextHoldID    int64
	nextEntryID   int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[int64]domain.Account),
		holds:    make(map[int64]domain.Hold),
	}
}

type snapshot struct {
	accounts      map[int64]domain.Account
	holds         map[int64]domain.Hold
	entries       []domain.LedgerEntry
	nextAccountID int64
	nextHoldID    int64
	nextEntryID   int64
}

func (s *Store) snapshot() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &snapshot{
		accounts:      make(map[int64]domain.Account, len(s.accounts)),
		holds:         make(map[int64]domain.Hold, len(s.holds)),
		entries:       append([]domain.LedgerEntry(nil), s.entries...),
		nextAccountID: s.nextAccountID,
		nextHoldID:    s.nextHoldID,
		nextEntryID:   s.nextEntryID,
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.holds {
		snap.holds[k] = v
	}
	return snap
}

func (s *Store) restore(snap *snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = snap.accounts
	s.holds = snap.holds
	s.entries = snap.entries
	s.nextAccountID = snap.nextAccountID
	s.nextHoldID = snap.nextHoldID
	s.nextEntryID = snap.nextEntryID
}

// Begin implements ports.DBTransactor.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.txMu.Lock()
	return &memTx{store: s, snap: s.snapshot()}, nil
}

// memTx satisfies pgx.Tx for the repositories in this package. Only Commit
// and Rollback are meaningful; the embedded interface is nil.
type memTx struct {
	pgx.Tx
	store *Store
	snap  *snapshot
	done  bool
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.restore(t.snap)
	t.store.txMu.Unlock()
	return nil
}

var errForeignTx = errors.New("memory store: transaction not opened by this store")

func (s *Store) checkTx(tx pgx.Tx) error {
	mt, ok := tx.(*memTx)
	if !ok || mt.store != s {
		return errForeignTx
	}
	if mt.done {
		return pgx.ErrTxClosed
	}
	return nil
}

// Accounts returns the account repository view of the store.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

// Holds returns the hold repository view of the store.
func (s *Store) Holds() *HoldRepo { return &HoldRepo{s: s} }

// Entries returns the ledger entry repository view of the store.
func (s *Store) Entries() *LedgerEntryRepo { return &LedgerEntryRepo{s: s} }

// Ping implements ports.HealthChecker.
func (s *Store) Ping(_ context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }
