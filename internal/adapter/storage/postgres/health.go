package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const healthTimeout = 2 * time.Second

// errSchemaMissing means the database answers but the ledger tables were never migrated.
var errSchemaMissing = errors.New("ledger schema not migrated")

// HealthCheck reports whether PostgreSQL is reachable and carries the ledger schema.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

// Ping looks up the holds table; a bare connection to an empty database is unhealthy.
func (h *HealthCheck) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var present bool
	if err := h.pool.QueryRow(ctx, `SELECT to_regclass('holds') IS NOT NULL`).Scan(&present); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	if !present {
		return errSchemaMissing
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
