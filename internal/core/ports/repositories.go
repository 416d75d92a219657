package ports

import (
	"context"
	"time"

	"microcredit-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

// AccountRepository defines persistence operations for accounts.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetBySubject(ctx context.Context, subject string) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Account, error)
	GetBySubjectForUpdate(ctx context.Context, tx pgx.Tx, subject string) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx pgx.Tx, id int64, balanceMicro, reservedMicro int64) error
}

// HoldRepository defines persistence operations for holds.
type HoldRepository interface {
	// Create inserts the hold and fills in its generated ID.
	Create(ctx context.Context, tx pgx.Tx, hold *domain.Hold) error
	GetByID(ctx context.Context, id int64) (*domain.Hold, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Hold, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Hold, error)
	GetByIdempotencyKeyTx(ctx context.Context, tx pgx.Tx, key string) (*domain.Hold, error)
	// Update persists captured amount, status and capture key.
	Update(ctx context.Context, tx pgx.Tx, hold *domain.Hold) error
	// ListExpiredIDs returns HELD holds whose expiry is at or before now, oldest first.
	ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

// LedgerEntryRepository appends and lists immutable ledger entries.
type LedgerEntryRepository interface {
	// Append inserts the entry and fills in its generated ID.
	Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	// AccountIDByExternalRef returns the account that recorded ref, or 0 if none did.
	AccountIDByExternalRef(ctx context.Context, ref string) (int64, error)
	AccountIDByExternalRefTx(ctx context.Context, tx pgx.Tx, ref string) (int64, error)
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.LedgerEntry, error)
}

// NonceStore records consumed token nonces for replay prevention.
type NonceStore interface {
	// Record atomically inserts the nonce if absent.
	// Returns true if the nonce is new (valid), false if already used.
	Record(ctx context.Context, rec domain.NonceRecord) (bool, error)
}

// NoncePurger removes nonce records that expired before the cutoff.
type NoncePurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
