package memory

import (
	"context"
	"fmt"

	"microcredit-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	s *Store
}

func (r *AccountRepo) Create(_ context.Context, a *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if a.Subject != nil {
		for _, existing := range r.s.accounts {
			if existing.Subject != nil && *existing.Subject == *a.Subject {
				return fmt.Errorf("insert account: %w", domain.ErrUniqueViolation)
			}
		}
	}
	r.s.nextAccountID++
	a.ID = r.s.nextAccountID
	r.s.accounts[a.ID] = *a
	return nil
}

func (r *AccountRepo) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.byID(id), nil
}

func (r *AccountRepo) GetBySubject(_ context.Context, subject string) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.bySubject(subject), nil
}

func (r *AccountRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id int64) (*domain.Account, error) {
	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.byID(id), nil
}

func (r *AccountRepo) GetBySubjectForUpdate(_ context.Context, tx pgx.Tx, subject string) (*domain.Account, error) {
	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.bySubject(subject), nil
}

func (r *AccountRepo) UpdateBalances(_ context.Context, tx pgx.Tx, id int64, balanceMicro, reservedMicro int64) error {
	if err := r.s.checkTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return fmt.Errorf("account not found: %d", id)
	}
	if balanceMicro < 0 || reservedMicro < 0 || reservedMicro > balanceMicro {
		return fmt.Errorf("account %d: balance check violated (balance=%d reserved=%d)", id, balanceMicro, reservedMicro)
	}
	a.BalanceMicro = balanceMicro
	a.ReservedMicro = reservedMicro
	r.s.accounts[id] = a
	return nil
}

func (r *AccountRepo) byID(id int64) *domain.Account {
	a, ok := r.s.accounts[id]
	if !ok {
		return nil
	}
	return &a
}

func (r *AccountRepo) bySubject(subject string) *domain.Account {
	for _, a := range r.s.accounts {
		if a.Subject != nil && *a.Subject == subject {
			return &a
		}
	}
	return nil
}
