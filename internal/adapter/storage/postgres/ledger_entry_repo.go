package postgres

import (
	"context"
	"errors"
	"fmt"

	"microcredit-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// LedgerEntryRepo implements ports.LedgerEntryRepository. Entries are append-only.
type LedgerEntryRepo struct {
	pool Pool
}

// NewLedgerEntryRepo creates a new LedgerEntryRepo.
func NewLedgerEntryRepo(pool Pool) *LedgerEntryRepo {
	return &LedgerEntryRepo{pool: pool}
}

// Append inserts an entry within a transaction.
func (r *LedgerEntryRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (account_id, hold_id, entry_type, delta_micro, external_ref, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	err := tx.QueryRow(ctx, query,
		e.AccountID, e.HoldID, e.Type, e.DeltaMicro, e.ExternalRef, e.Metadata, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", classify(err))
	}
	return nil
}

const accountByExternalRefQuery = `SELECT account_id FROM ledger_entries WHERE external_ref = $1`

// AccountIDByExternalRef returns the account whose entry carries ref, or 0.
func (r *LedgerEntryRepo) AccountIDByExternalRef(ctx context.Context, ref string) (int64, error) {
	return scanAccountID(r.pool.QueryRow(ctx, accountByExternalRefQuery, ref))
}

// AccountIDByExternalRefTx is AccountIDByExternalRef inside a transaction.
func (r *LedgerEntryRepo) AccountIDByExternalRefTx(ctx context.Context, tx pgx.Tx, ref string) (int64, error) {
	return scanAccountID(tx.QueryRow(ctx, accountByExternalRefQuery, ref))
}

func scanAccountID(row pgx.Row) (int64, error) {
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("lookup external ref: %w", classify(err))
	}
	return id, nil
}

// ListByAccount returns the most recent entries for an account, newest first.
func (r *LedgerEntryRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.LedgerEntry, error) {
	query := `SELECT id, account_id, hold_id, entry_type, delta_micro, external_ref, metadata, created_at
		FROM ledger_entries WHERE account_id = $1 ORDER BY id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e := domain.LedgerEntry{}
		err := rows.Scan(&e.ID, &e.AccountID, &e.HoldID, &e.Type, &e.DeltaMicro, &e.ExternalRef, &e.Metadata, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entry rows: %w", err)
	}
	return entries, nil
}
