package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Transactor implements ports.DBTransactor using pgxpool.Pool.
// Every transaction it opens runs at the configured isolation level.
type Transactor struct {
	pool Pool
	iso  pgx.TxIsoLevel
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool, iso pgx.TxIsoLevel) *Transactor {
	return &Transactor{pool: pool, iso: iso}
}

// Begin starts a new database transaction.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: t.iso})
	if err != nil {
		return nil, classify(err)
	}
	return &classifiedTx{Tx: tx}, nil
}

// classifiedTx maps unique and serialization failures raised at commit time
// onto the domain sentinels.
type classifiedTx struct {
	pgx.Tx
}

func (c *classifiedTx) Commit(ctx context.Context) error {
	return classify(c.Tx.Commit(ctx))
}
