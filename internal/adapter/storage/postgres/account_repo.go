package postgres

import (
	"context"
	"errors"
	"fmt"

	"microcredit-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, subject, balance_micro, reserved_micro, created_at, updated_at`

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create inserts a new account and fills in its generated ID.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (subject, balance_micro, reserved_micro, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		a.Subject, a.BalanceMicro, a.ReservedMicro, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert account: %w", classify(err))
	}
	return nil
}

// GetByID fetches an account by ID (without locking).
func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id), "get account by id")
}

// GetBySubject fetches an account by its external subject (without locking).
func (r *AccountRepo) GetBySubject(ctx context.Context, subject string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE subject = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, subject), "get account by subject")
}

// GetByIDForUpdate fetches an account by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(tx.QueryRow(ctx, query, id), "get account for update by id")
}

// GetBySubjectForUpdate fetches an account by subject with pessimistic locking.
// This MUST be called within a transaction.
func (r *AccountRepo) GetBySubjectForUpdate(ctx context.Context, tx pgx.Tx, subject string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE subject = $1 FOR UPDATE`
	return scanAccount(tx.QueryRow(ctx, query, subject), "get account for update by subject")
}

// UpdateBalances writes both balance columns within a transaction.
func (r *AccountRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, id int64, balanceMicro, reservedMicro int64) error {
	query := `UPDATE accounts SET balance_micro = $1, reserved_micro = $2, updated_at = NOW() WHERE id = $3`

	tag, err := tx.Exec(ctx, query, balanceMicro, reservedMicro, id)
	if err != nil {
		return fmt.Errorf("update account balances: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %d", id)
	}
	return nil
}

func scanAccount(row pgx.Row, op string) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(&a.ID, &a.Subject, &a.BalanceMicro, &a.ReservedMicro, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return a, nil
}
