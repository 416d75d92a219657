package memory

import (
	"context"
	"fmt"

	"microcredit-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// LedgerEntryRepo implements ports.LedgerEntryRepository.
type LedgerEntryRepo struct {
	s *Store
}

func (r *LedgerEntryRepo) Append(_ context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	if err := r.s.checkTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if e.ExternalRef != nil {
		for _, existing := range r.s.entries {
			if existing.ExternalRef != nil && *existing.ExternalRef == *e.ExternalRef {
				return fmt.Errorf("insert ledger entry: %w", domain.ErrUniqueViolation)
			}
		}
	}
	r.s.nextEntryID++
	e.ID = r.s.nextEntryID
	r.s.entries = append(r.s.entries, *e)
	return nil
}

func (r *LedgerEntryRepo) AccountIDByExternalRef(_ context.Context, ref string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, e := range r.s.entries {
		if e.ExternalRef != nil && *e.ExternalRef == ref {
			return e.AccountID, nil
		}
	}
	return 0, nil
}

func (r *LedgerEntryRepo) AccountIDByExternalRefTx(ctx context.Context, tx pgx.Tx, ref string) (int64, error) {
	if err := r.s.checkTx(tx); err != nil {
		return 0, err
	}
	return r.AccountIDByExternalRef(ctx, ref)
}

// ListByAccount returns entries newest first.
func (r *LedgerEntryRepo) ListByAccount(_ context.Context, accountID int64, limit int) ([]domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.LedgerEntry
	for i := len(r.s.entries) - 1; i >= 0; i-- {
		if r.s.entries[i].AccountID != accountID {
			continue
		}
		out = append(out, r.s.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// All returns every entry in insertion order.
func (r *LedgerEntryRepo) All() []domain.LedgerEntry {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.LedgerEntry(nil), r.s.entries...)
}
