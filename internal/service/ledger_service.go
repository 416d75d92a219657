package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"microcredit-gateway/internal/clock"
	"microcredit-gateway/internal/core/domain"
	"microcredit-gateway/internal/core/ports"
	"microcredit-gateway/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	defaultEntryListLimit = 50
	maxEntryListLimit     = 500
)

// LedgerOptions bounds hold lifetimes and sweep batches.
type LedgerOptions struct {
	DefaultHoldTTL time.Duration
	MinHoldTTL     time.Duration
	MaxHoldTTL     time.Duration
	SweepBatchSize int
}

// LedgerServiceImpl implements ports.LedgerService.
// Every mutation runs in one short transaction; rows are locked hold first, then account.
type LedgerServiceImpl struct {
	accounts   ports.AccountRepository
	holds      ports.HoldRepository
	entries    ports.LedgerEntryRepository
	transactor ports.DBTransactor
	clock      clock.Clock
	opts       LedgerOptions
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	accounts ports.AccountRepository,
	holds ports.HoldRepository,
	entries ports.LedgerEntryRepository,
	transactor ports.DBTransactor,
	clk clock.Clock,
	opts LedgerOptions,
	log zerolog.Logger,
) *LedgerServiceImpl {
	if opts.SweepBatchSize <= 0 {
		opts.SweepBatchSize = 500
	}
	return &LedgerServiceImpl{
		accounts:   accounts,
		holds:      holds,
		entries:    entries,
		transactor: transactor,
		clock:      clk,
		opts:       opts,
		log:        log,
	}
}

// OpenAccount creates an empty account, optionally bound to an external subject.
func (s *LedgerServiceImpl) OpenAccount(ctx context.Context, subject *string) (*domain.Account, error) {
	if subject != nil && strings.TrimSpace(*subject) == "" {
		return nil, apperror.Validation("subject must not be blank")
	}
	now := s.clock.Now()
	account := &domain.Account{Subject: subject, CreatedAt: now, UpdatedAt: now}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrUniqueViolation) {
			return nil, apperror.ErrAccountExists()
		}
		return nil, apperror.InternalError(fmt.Errorf("create account: %w", err))
	}

	s.log.Info().Int64("account_id", account.ID).Msg("account opened")
	return account, nil
}

// CreateHold reserves funds against the available balance.
// Repeating a request with the same idempotency key returns the original hold.
func (s *LedgerServiceImpl) CreateHold(ctx context.Context, req ports.CreateHoldRequest) (*domain.Hold, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if req.AmountMicro <= 0 {
		return nil, apperror.ValidationFields(map[string]string{"amount_micro": "must be greater than 0"})
	}
	if key == "" {
		return nil, apperror.ValidationFields(map[string]string{"idempotencyKey": "is required"})
	}
	if req.Account.IsZero() {
		return nil, apperror.ErrUserNotResolved()
	}
	ttl, err := s.holdTTL(req.TTL)
	if err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	account, err := s.lockAccount(ctx, dbTx, req.Account)
	if err != nil {
		return s.recoverHoldTwin(ctx, dbTx, key, req.Account, err)
	}

	existing, err := s.holds.GetByIdempotencyKeyTx(ctx, dbTx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency lookup: %w", err))
	}
	if existing != nil {
		if existing.AccountID != account.ID {
			return nil, apperror.ErrIdempotencyConflict()
		}
		return existing, nil
	}

	if req.AmountMicro > account.AvailableMicro() {
		return nil, apperror.ErrInsufficientFunds()
	}

	now := s.clock.Now()
	metadata := req.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	hold := &domain.Hold{
		AccountID:      account.ID,
		AmountMicro:    req.AmountMicro,
		Status:         domain.HoldStatusHeld,
		IdempotencyKey: key,
		ProviderRef:    req.ProviderRef,
		ExpiresAt:      now.Add(ttl),
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.accounts.UpdateBalances(ctx, dbTx, account.ID, account.BalanceMicro, account.ReservedMicro+req.AmountMicro); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reserve funds: %w", err))
	}
	if err := s.holds.Create(ctx, dbTx, hold); err != nil {
		return s.recoverHoldTwin(ctx, dbTx, key, account.Ref(), fmt.Errorf("create hold: %w", err))
	}
	holdID := hold.ID
	entry := &domain.LedgerEntry{
		AccountID:  account.ID,
		HoldID:     &holdID,
		Type:       domain.EntryTypeHold,
		DeltaMicro: 0,
		Metadata:   domain.NewEntryMetadata(map[string]interface{}{"amount_micro": req.AmountMicro}),
		CreatedAt:  now,
	}
	if err := s.entries.Append(ctx, dbTx, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append hold entry: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return s.recoverHoldTwin(ctx, dbTx, key, account.Ref(), fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Int64("hold_id", hold.ID).
		Int64("account_id", account.ID).
		Int64("amount_micro", hold.AmountMicro).
		Time("expires_at", hold.ExpiresAt).
		Msg("hold created")

	return hold, nil
}

// recoverHoldTwin handles a concurrent CreateHold with the same key winning the race,
// whether it surfaced while locking the account, inserting, or committing.
// The losing transaction is abandoned and the winner's hold is returned.
func (s *LedgerServiceImpl) recoverHoldTwin(ctx context.Context, dbTx pgx.Tx, key string, owner domain.AccountRef, cause error) (*domain.Hold, error) {
	if !isRaceError(cause) {
		return nil, asAppError(cause)
	}
	_ = dbTx.Rollback(ctx)

	twin, err := s.holds.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("re-read hold after conflict: %w", err))
	}
	if twin == nil {
		return nil, asAppError(cause)
	}
	owns, err := s.owns(ctx, owner, twin.AccountID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, apperror.ErrIdempotencyConflict()
	}

	s.log.Debug().Str("idempotency_key", key).Int64("hold_id", twin.ID).Msg("concurrent hold creation resolved to existing hold")
	return twin, nil
}

// Capture settles a hold for the actual cost and returns any surplus to the
// available balance. A repeated capture key, or a hold no longer HELD, is a no-op.
func (s *LedgerServiceImpl) Capture(ctx context.Context, req ports.CaptureRequest) (*domain.Hold, error) {
	captureKey := strings.TrimSpace(req.CaptureKey)
	fields := map[string]string{}
	if req.HoldID <= 0 {
		fields["holdId"] = "must be a positive integer"
	}
	if req.ActualCostMicro < 0 {
		fields["actualCostMicro"] = "must not be negative"
	}
	if captureKey == "" {
		fields["captureKey"] = "is required"
	}
	if len(fields) > 0 {
		return nil, apperror.ValidationFields(fields)
	}
	if req.Account.IsZero() {
		return nil, apperror.ErrUserNotResolved()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	hold, err := s.holds.GetByIDForUpdate(ctx, dbTx, req.HoldID)
	if err != nil {
		return s.recoverSettledHold(ctx, dbTx, req.HoldID, captureKey, &req.Account, fmt.Errorf("lock hold: %w", err))
	}
	if hold == nil {
		return nil, apperror.ErrHoldNotFound()
	}
	account, err := s.lockAccount(ctx, dbTx, req.Account)
	if err != nil {
		return s.recoverSettledHold(ctx, dbTx, req.HoldID, captureKey, &req.Account, err)
	}
	if hold.AccountID != account.ID {
		return nil, apperror.ErrForbidden()
	}
	owner := account.Ref()

	if hold.HasCaptureKey(captureKey) || !hold.IsHeld() {
		return hold, nil
	}

	now := s.clock.Now()
	holdID := hold.ID
	balance, reserved := account.BalanceMicro, account.ReservedMicro

	toCapture := min(req.ActualCostMicro, hold.RemainingMicro())
	if toCapture > 0 {
		if toCapture > balance {
			return nil, apperror.ErrInsufficientFundsAtCapture()
		}
		balance -= toCapture
		reserved -= toCapture
		hold.CapturedMicro += toCapture
		if err := s.entries.Append(ctx, dbTx, &domain.LedgerEntry{
			AccountID:  account.ID,
			HoldID:     &holdID,
			Type:       domain.EntryTypeCapture,
			DeltaMicro: -toCapture,
			Metadata:   domain.NewEntryMetadata(map[string]interface{}{"actual_cost_micro": req.ActualCostMicro}),
			CreatedAt:  now,
		}); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("append capture entry: %w", err))
		}
	}

	surplus := hold.AmountMicro - hold.CapturedMicro
	if surplus > 0 {
		reserved = max(0, reserved-surplus)
		if err := s.entries.Append(ctx, dbTx, &domain.LedgerEntry{
			AccountID:  account.ID,
			HoldID:     &holdID,
			Type:       domain.EntryTypeRelease,
			DeltaMicro: 0,
			Metadata:   domain.NewEntryMetadata(map[string]interface{}{"released_micro": surplus}),
			CreatedAt:  now,
		}); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("append release entry: %w", err))
		}
	}
	hold.Status = domain.HoldStatusCaptured
	hold.CaptureKey = &captureKey
	hold.UpdatedAt = now

	if err := s.accounts.UpdateBalances(ctx, dbTx, account.ID, balance, reserved); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("settle balances: %w", err))
	}
	if err := s.holds.Update(ctx, dbTx, hold); err != nil {
		return s.recoverSettledHold(ctx, dbTx, hold.ID, captureKey, &owner, fmt.Errorf("update hold: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return s.recoverSettledHold(ctx, dbTx, hold.ID, captureKey, &owner, fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Int64("hold_id", hold.ID).
		Int64("account_id", account.ID).
		Int64("captured_micro", hold.CapturedMicro).
		Int64("released_micro", surplus).
		Msg("hold captured")

	return hold, nil
}

// recoverSettledHold re-reads a hold after losing a capture or release race.
// If the winner already moved it out of HELD, its final state is the answer.
// A non-nil owner must own the hold.
func (s *LedgerServiceImpl) recoverSettledHold(ctx context.Context, dbTx pgx.Tx, holdID int64, captureKey string, owner *domain.AccountRef, cause error) (*domain.Hold, error) {
	if !isRaceError(cause) {
		return nil, asAppError(cause)
	}
	_ = dbTx.Rollback(ctx)

	current, err := s.holds.GetByID(ctx, holdID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("re-read hold after conflict: %w", err))
	}
	if current == nil {
		return nil, asAppError(cause)
	}
	if owner != nil {
		owns, err := s.owns(ctx, *owner, current.AccountID)
		if err != nil {
			return nil, err
		}
		if !owns {
			return nil, apperror.ErrForbidden()
		}
	}
	if captureKey != "" && current.HasCaptureKey(captureKey) {
		return current, nil
	}
	if !current.IsHeld() {
		return current, nil
	}
	if errors.Is(cause, domain.ErrUniqueViolation) {
		// Capture key already spent on a different hold.
		return nil, apperror.ErrIdempotencyConflict()
	}
	return nil, asAppError(cause)
}

// ReleaseHold returns a HELD hold's remaining reservation. Holds in any other
// state are returned unchanged.
func (s *LedgerServiceImpl) ReleaseHold(ctx context.Context, holdID int64, reason domain.ReleaseReason) (*domain.Hold, error) {
	hold, _, err := s.release(ctx, holdID, reason, nil)
	return hold, err
}

// CancelHold is an owner-initiated release.
func (s *LedgerServiceImpl) CancelHold(ctx context.Context, ref domain.AccountRef, holdID int64) (*domain.Hold, error) {
	if ref.IsZero() {
		return nil, apperror.ErrUserNotResolved()
	}
	hold, _, err := s.release(ctx, holdID, domain.ReleaseReasonCancel, &ref)
	return hold, err
}

func (s *LedgerServiceImpl) release(ctx context.Context, holdID int64, reason domain.ReleaseReason, owner *domain.AccountRef) (*domain.Hold, bool, error) {
	if holdID <= 0 {
		return nil, false, apperror.ValidationFields(map[string]string{"holdId": "must be a positive integer"})
	}
	if reason != domain.ReleaseReasonExpire && reason != domain.ReleaseReasonCancel {
		return nil, false, apperror.Validation("unknown release reason")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	hold, err := s.holds.GetByIDForUpdate(ctx, dbTx, holdID)
	if err != nil {
		h, rerr := s.recoverSettledHold(ctx, dbTx, holdID, "", owner, fmt.Errorf("lock hold: %w", err))
		return h, false, rerr
	}
	if hold == nil {
		return nil, false, apperror.ErrHoldNotFound()
	}

	var account *domain.Account
	if owner != nil {
		account, err = s.lockAccount(ctx, dbTx, *owner)
		if err != nil {
			h, rerr := s.recoverSettledHold(ctx, dbTx, holdID, "", owner, err)
			return h, false, rerr
		}
		if account.ID != hold.AccountID {
			return nil, false, apperror.ErrForbidden()
		}
	}
	if !hold.IsHeld() {
		return hold, false, nil
	}
	if account == nil {
		account, err = s.accounts.GetByIDForUpdate(ctx, dbTx, hold.AccountID)
		if err != nil {
			h, rerr := s.recoverSettledHold(ctx, dbTx, holdID, "", nil, fmt.Errorf("lock account: %w", err))
			return h, false, rerr
		}
		if account == nil {
			return nil, false, apperror.InternalError(fmt.Errorf("hold %d references missing account %d", hold.ID, hold.AccountID))
		}
	}

	now := s.clock.Now()
	remaining := hold.RemainingMicro()
	if remaining > 0 {
		holdRef := hold.ID
		if err := s.entries.Append(ctx, dbTx, &domain.LedgerEntry{
			AccountID:  account.ID,
			HoldID:     &holdRef,
			Type:       reason.EntryType(),
			DeltaMicro: 0,
			Metadata:   domain.NewEntryMetadata(map[string]interface{}{"released_micro": remaining, "reason": string(reason)}),
			CreatedAt:  now,
		}); err != nil {
			return nil, false, apperror.InternalError(fmt.Errorf("append release entry: %w", err))
		}
	}
	hold.Status = reason.StatusFor()
	hold.UpdatedAt = now

	if err := s.accounts.UpdateBalances(ctx, dbTx, account.ID, account.BalanceMicro, max(0, account.ReservedMicro-remaining)); err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("release reservation: %w", err))
	}
	if err := s.holds.Update(ctx, dbTx, hold); err != nil {
		h, rerr := s.recoverSettledHold(ctx, dbTx, hold.ID, "", owner, fmt.Errorf("update hold: %w", err))
		return h, false, rerr
	}
	if err := dbTx.Commit(ctx); err != nil {
		h, rerr := s.recoverSettledHold(ctx, dbTx, hold.ID, "", owner, fmt.Errorf("commit tx: %w", err))
		return h, false, rerr
	}

	s.log.Info().
		Int64("hold_id", hold.ID).
		Int64("account_id", account.ID).
		Int64("released_micro", remaining).
		Str("reason", string(reason)).
		Msg("hold released")

	return hold, true, nil
}

// ReleaseExpired expires every HELD hold past its deadline, one transaction per
// hold. Failures are logged and skipped. Returns how many holds were expired.
func (s *LedgerServiceImpl) ReleaseExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	released := 0
	for {
		ids, err := s.holds.ListExpiredIDs(ctx, now, s.opts.SweepBatchSize)
		if err != nil {
			return released, apperror.InternalError(fmt.Errorf("list expired holds: %w", err))
		}

		progressed := 0
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return released, err
			}
			_, changed, err := s.release(ctx, id, domain.ReleaseReasonExpire, nil)
			if err != nil {
				s.log.Error().Err(err).Int64("hold_id", id).Msg("failed to expire hold")
				continue
			}
			if changed {
				progressed++
			}
		}
		released += progressed

		// Stop when the batch was short or nothing moved; failing rows would
		// otherwise be listed again forever.
		if len(ids) < s.opts.SweepBatchSize || progressed == 0 {
			break
		}
	}

	if released > 0 {
		s.log.Info().Int("released", released).Msg("expired holds released")
	}
	return released, nil
}

// Adjust credits or debits an account outside the hold flow. The balance may
// never drop below what is currently reserved.
func (s *LedgerServiceImpl) Adjust(ctx context.Context, req ports.AdjustRequest) (*domain.Account, error) {
	externalRef := strings.TrimSpace(req.ExternalRef)
	if req.AccountID <= 0 {
		return nil, apperror.ErrUserNotResolved()
	}
	if req.DeltaMicro == 0 {
		return nil, apperror.ValidationFields(map[string]string{"delta_micro": "must not be zero"})
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	account, err := s.lockAccount(ctx, dbTx, domain.AccountRef{ID: req.AccountID})
	if err != nil {
		return s.recoverAdjustTwin(ctx, dbTx, req.AccountID, externalRef, err)
	}

	var refPtr *string
	if externalRef != "" {
		ownerID, err := s.entries.AccountIDByExternalRefTx(ctx, dbTx, externalRef)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("external ref lookup: %w", err))
		}
		if ownerID != 0 {
			if ownerID != account.ID {
				return nil, apperror.ErrIdempotencyConflict()
			}
			return account, nil
		}
		refPtr = &externalRef
	}

	newBalance := account.BalanceMicro + req.DeltaMicro
	if newBalance < account.ReservedMicro {
		return nil, apperror.ErrInsufficientFunds()
	}

	now := s.clock.Now()
	metadata := req.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	if err := s.accounts.UpdateBalances(ctx, dbTx, account.ID, newBalance, account.ReservedMicro); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("adjust balance: %w", err))
	}
	if err := s.entries.Append(ctx, dbTx, &domain.LedgerEntry{
		AccountID:   account.ID,
		Type:        domain.EntryTypeAdjust,
		DeltaMicro:  req.DeltaMicro,
		ExternalRef: refPtr,
		Metadata:    metadata,
		CreatedAt:   now,
	}); err != nil {
		return s.recoverAdjustTwin(ctx, dbTx, account.ID, externalRef, fmt.Errorf("append adjust entry: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return s.recoverAdjustTwin(ctx, dbTx, account.ID, externalRef, fmt.Errorf("commit tx: %w", err))
	}

	account.BalanceMicro = newBalance
	account.UpdatedAt = now

	s.log.Info().
		Int64("account_id", account.ID).
		Int64("delta_micro", req.DeltaMicro).
		Str("external_ref", externalRef).
		Msg("account adjusted")

	return account, nil
}

// recoverAdjustTwin answers a lost Adjust race. Only a committed entry carrying
// the same external ref on the same account counts as the twin.
func (s *LedgerServiceImpl) recoverAdjustTwin(ctx context.Context, dbTx pgx.Tx, accountID int64, ref string, cause error) (*domain.Account, error) {
	if ref == "" || !isRaceError(cause) {
		return nil, asAppError(cause)
	}
	_ = dbTx.Rollback(ctx)

	ownerID, err := s.entries.AccountIDByExternalRef(ctx, ref)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("re-read external ref after conflict: %w", err))
	}
	if ownerID == 0 {
		return nil, asAppError(cause)
	}
	if ownerID != accountID {
		return nil, apperror.ErrIdempotencyConflict()
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil || account == nil {
		return nil, apperror.InternalError(cause)
	}
	return account, nil
}

// GetAccount is a non-locking balance read.
func (s *LedgerServiceImpl) GetAccount(ctx context.Context, ref domain.AccountRef) (*domain.Account, error) {
	if ref.IsZero() {
		return nil, apperror.ErrUserNotResolved()
	}
	var (
		account *domain.Account
		err     error
	)
	if ref.Subject != "" {
		account, err = s.accounts.GetBySubject(ctx, ref.Subject)
	} else {
		account, err = s.accounts.GetByID(ctx, ref.ID)
	}
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrUserNotResolved()
	}
	return account, nil
}

// ListEntries returns the account's most recent ledger entries, newest first.
func (s *LedgerServiceImpl) ListEntries(ctx context.Context, ref domain.AccountRef, limit int) ([]domain.LedgerEntry, error) {
	account, err := s.GetAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultEntryListLimit
	}
	if limit > maxEntryListLimit {
		limit = maxEntryListLimit
	}

	entries, err := s.entries.ListByAccount(ctx, account.ID, limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list entries: %w", err))
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return entries, nil
}

func (s *LedgerServiceImpl) lockAccount(ctx context.Context, dbTx pgx.Tx, ref domain.AccountRef) (*domain.Account, error) {
	var (
		account *domain.Account
		err     error
	)
	if ref.Subject != "" {
		account, err = s.accounts.GetBySubjectForUpdate(ctx, dbTx, ref.Subject)
	} else {
		account, err = s.accounts.GetByIDForUpdate(ctx, dbTx, ref.ID)
	}
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrUserNotResolved()
	}
	return account, nil
}

func (s *LedgerServiceImpl) holdTTL(requested time.Duration) (time.Duration, error) {
	if requested == 0 {
		return s.opts.DefaultHoldTTL, nil
	}
	if requested < s.opts.MinHoldTTL || (s.opts.MaxHoldTTL > 0 && requested > s.opts.MaxHoldTTL) {
		return 0, apperror.ValidationFields(map[string]string{
			"ttlSeconds": fmt.Sprintf("must be between %d and %d", int(s.opts.MinHoldTTL.Seconds()), int(s.opts.MaxHoldTTL.Seconds())),
		})
	}
	return requested, nil
}

// owns reports whether ref names the account with the given ID, resolving
// subject refs with a plain read.
func (s *LedgerServiceImpl) owns(ctx context.Context, ref domain.AccountRef, accountID int64) (bool, error) {
	if ref.Subject == "" {
		return ref.ID == accountID, nil
	}
	account, err := s.accounts.GetBySubject(ctx, ref.Subject)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("resolve owner: %w", err))
	}
	return account != nil && account.ID == accountID, nil
}

// asAppError keeps AppErrors as they are and hides anything else behind INTERNAL_ERROR.
func asAppError(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.InternalError(err)
}

// isRaceError reports whether err means a concurrent transaction won.
func isRaceError(err error) bool {
	return errors.Is(err, domain.ErrUniqueViolation) || errors.Is(err, domain.ErrSerializationFailure)
}
