package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"microcredit-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const holdColumns = `id, account_id, amount_micro, captured_micro, status, idempotency_key,
	capture_key, provider_ref, expires_at, metadata, created_at, updated_at`

// HoldRepo implements ports.HoldRepository.
type HoldRepo struct {
	pool Pool
}

// NewHoldRepo creates a new HoldRepo.
func NewHoldRepo(pool Pool) *HoldRepo {
	return &HoldRepo{pool: pool}
}

// Create inserts a hold within a transaction. A duplicate idempotency key
// surfaces as domain.ErrUniqueViolation.
func (r *HoldRepo) Create(ctx context.Context, tx pgx.Tx, h *domain.Hold) error {
	query := `INSERT INTO holds (account_id, amount_micro, captured_micro, status, idempotency_key,
		capture_key, provider_ref, expires_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`

	err := tx.QueryRow(ctx, query,
		h.AccountID, h.AmountMicro, h.CapturedMicro, h.Status, h.IdempotencyKey,
		h.CaptureKey, h.ProviderRef, h.ExpiresAt, h.Metadata, h.CreatedAt, h.UpdatedAt,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("insert hold: %w", classify(err))
	}
	return nil
}

// GetByID fetches a hold by ID (without locking).
func (r *HoldRepo) GetByID(ctx context.Context, id int64) (*domain.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE id = $1`
	return scanHold(r.pool.QueryRow(ctx, query, id), "get hold by id")
}

// GetByIDForUpdate fetches a hold by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *HoldRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE id = $1 FOR UPDATE`
	return scanHold(tx.QueryRow(ctx, query, id), "get hold for update")
}

// GetByIdempotencyKey fetches a hold by idempotency key outside any transaction.
func (r *HoldRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE idempotency_key = $1`
	return scanHold(r.pool.QueryRow(ctx, query, key), "get hold by idempotency key")
}

// GetByIdempotencyKeyTx fetches a hold by idempotency key inside a transaction.
func (r *HoldRepo) GetByIdempotencyKeyTx(ctx context.Context, tx pgx.Tx, key string) (*domain.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE idempotency_key = $1`
	return scanHold(tx.QueryRow(ctx, query, key), "get hold by idempotency key")
}

// Update persists the mutable hold fields.
func (r *HoldRepo) Update(ctx context.Context, tx pgx.Tx, h *domain.Hold) error {
	query := `UPDATE holds SET captured_micro = $1, status = $2, capture_key = $3, updated_at = $4 WHERE id = $5`

	tag, err := tx.Exec(ctx, query, h.CapturedMicro, h.Status, h.CaptureKey, h.UpdatedAt, h.ID)
	if err != nil {
		return fmt.Errorf("update hold: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("hold not found: %d", h.ID)
	}
	return nil
}

// ListExpiredIDs returns HELD holds whose expiry has passed, oldest first.
func (r *HoldRepo) ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	query := `SELECT id FROM holds WHERE status = $1 AND expires_at <= $2 ORDER BY expires_at, id LIMIT $3`

	rows, err := r.pool.Query(ctx, query, domain.HoldStatusHeld, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired hold id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired holds: %w", err)
	}
	return ids, nil
}

func scanHold(row pgx.Row, op string) (*domain.Hold, error) {
	h := &domain.Hold{}
	err := row.Scan(
		&h.ID, &h.AccountID, &h.AmountMicro, &h.CapturedMicro, &h.Status, &h.IdempotencyKey,
		&h.CaptureKey, &h.ProviderRef, &h.ExpiresAt, &h.Metadata, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return h, nil
}
