package postgres

import (
	"context"
	"fmt"
	"time"

	"microcredit-gateway/internal/core/domain"
)

// NonceRepo implements ports.NonceStore and ports.NoncePurger on the nonces table.
// The primary key on nonce makes the insert the atomic check-and-set.
type NonceRepo struct {
	pool Pool
}

// NewNonceRepo creates a new NonceRepo.
func NewNonceRepo(pool Pool) *NonceRepo {
	return &NonceRepo{pool: pool}
}

// Record inserts the nonce unless it exists. Returns true if this call stored it.
func (r *NonceRepo) Record(ctx context.Context, rec domain.NonceRecord) (bool, error) {
	query := `INSERT INTO nonces (nonce, iat, exp, issuer, created_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (nonce) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, rec.Nonce, rec.IssuedAt, rec.ExpiresAt, rec.Issuer, rec.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert nonce: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeExpired deletes nonces whose token expired before the cutoff.
func (r *NonceRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM nonces WHERE exp < $1`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge nonces: %w", err)
	}
	return tag.RowsAffected(), nil
}
