package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"microcredit-gateway/internal/adapter/storage/memory"
	"microcredit-gateway/internal/clock"
	"microcredit-gateway/internal/core/domain"
	"microcredit-gateway/internal/core/ports"
	"microcredit-gateway/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ledgerEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type ledgerFixture struct {
	svc   *LedgerServiceImpl
	store *memory.Store
	clock *clock.Manual
}

func setupLedger(t *testing.T) *ledgerFixture {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewManual(ledgerEpoch)
	svc := NewLedgerService(store.Accounts(), store.Holds(), store.Entries(), store, clk, LedgerOptions{
		DefaultHoldTTL: 15 * time.Minute,
		MinHoldTTL:     10 * time.Second,
		MaxHoldTTL:     24 * time.Hour,
		SweepBatchSize: 100,
	}, zerolog.Nop())
	return &ledgerFixture{svc: svc, store: store, clock: clk}
}

// fund opens an account and tops it up to balance.
func (f *ledgerFixture) fund(t *testing.T, balance int64) *domain.Account {
	t.Helper()
	ctx := context.Background()
	a, err := f.svc.OpenAccount(ctx, nil)
	require.NoError(t, err)
	if balance > 0 {
		a, err = f.svc.Adjust(ctx, ports.AdjustRequest{AccountID: a.ID, DeltaMicro: balance})
		require.NoError(t, err)
	}
	return a
}

func (f *ledgerFixture) account(t *testing.T, id int64) *domain.Account {
	t.Helper()
	a, err := f.store.Accounts().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

// assertReservedMatchesHolds checks reserved == sum of remaining over HELD holds.
func (f *ledgerFixture) assertReservedMatchesHolds(t *testing.T, accountID int64) {
	t.Helper()
	ctx := context.Background()
	ids, err := f.store.Holds().ListExpiredIDs(ctx, ledgerEpoch.Add(100*365*24*time.Hour), 0)
	require.NoError(t, err)

	var sum int64
	for _, id := range ids {
		h, err := f.store.Holds().GetByID(ctx, id)
		require.NoError(t, err)
		if h.AccountID == accountID {
			sum += h.RemainingMicro()
		}
	}
	a := f.account(t, accountID)
	assert.Equal(t, sum, a.ReservedMicro, "reserved must equal remaining of HELD holds")
	assert.GreaterOrEqual(t, a.AvailableMicro(), int64(0))
}

func (f *ledgerFixture) entriesOfType(t *testing.T, accountID int64, typ domain.EntryType) []domain.LedgerEntry {
	t.Helper()
	all, err := f.store.Entries().ListByAccount(context.Background(), accountID, 0)
	require.NoError(t, err)
	var out []domain.LedgerEntry
	for _, e := range all {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func holdReq(accountID, amount int64, key string) ports.CreateHoldRequest {
	return ports.CreateHoldRequest{
		Account:        domain.AccountRef{ID: accountID},
		AmountMicro:    amount,
		IdempotencyKey: key,
	}
}

// ==================== Scenarios ====================

func TestLedger_HoldThenCaptureReleasesSurplus(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)

	hold, err := f.svc.CreateHold(ctx, holdReq(a.ID, 500, "h-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusHeld, hold.Status)
	assert.Equal(t, ledgerEpoch.Add(15*time.Minute), hold.ExpiresAt)

	acc := f.account(t, a.ID)
	assert.Equal(t, int64(1000), acc.BalanceMicro)
	assert.Equal(t, int64(500), acc.ReservedMicro)

	captured, err := f.svc.Capture(ctx, ports.CaptureRequest{
		Account:         domain.AccountRef{ID: a.ID},
		HoldID:          hold.ID,
		ActualCostMicro: 300,
		CaptureKey:      "c-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), captured.CapturedMicro)
	assert.Equal(t, domain.HoldStatusCaptured, captured.Status)

	acc = f.account(t, a.ID)
	assert.Equal(t, int64(700), acc.BalanceMicro)
	assert.Equal(t, int64(0), acc.ReservedMicro)

	captures := f.entriesOfType(t, a.ID, domain.EntryTypeCapture)
	require.Len(t, captures, 1)
	assert.Equal(t, int64(-300), captures[0].DeltaMicro)
	releases := f.entriesOfType(t, a.ID, domain.EntryTypeRelease)
	require.Len(t, releases, 1)
	assert.JSONEq(t, `{"released_micro":200}`, string(releases[0].Metadata))
	f.assertReservedMatchesHolds(t, a.ID)
}

func TestLedger_ConcurrentCreateHoldSameKeyReservesOnce(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 100)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*domain.Hold, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.CreateHold(ctx, holdReq(a.ID, 100, "same-key"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	assert.Equal(t, int64(100), f.account(t, a.ID).ReservedMicro)
	assert.Len(t, f.entriesOfType(t, a.ID, domain.EntryTypeHold), 1)
	f.assertReservedMatchesHolds(t, a.ID)
}

// ==================== CreateHold ====================

func TestCreateHold_InsufficientFundsLeavesAccountUntouched(t *testing.T) {
	f := setupLedger(t)
	a := f.fund(t, 100)

	_, err := f.svc.CreateHold(context.Background(), holdReq(a.ID, 101, "too-much"))
	assert.Equal(t, "INSUFFICIENT_FUNDS", apperror.CodeOf(err))

	acc := f.account(t, a.ID)
	assert.Equal(t, int64(100), acc.BalanceMicro)
	assert.Equal(t, int64(0), acc.ReservedMicro)
	assert.Empty(t, f.entriesOfType(t, a.ID, domain.EntryTypeHold))
}

func TestCreateHold_CountsExistingReservations(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 100)

	_, err := f.svc.CreateHold(ctx, holdReq(a.ID, 60, "first"))
	require.NoError(t, err)

	_, err = f.svc.CreateHold(ctx, holdReq(a.ID, 50, "second"))
	assert.Equal(t, "INSUFFICIENT_FUNDS", apperror.CodeOf(err))

	_, err = f.svc.CreateHold(ctx, holdReq(a.ID, 40, "third"))
	assert.NoError(t, err)
	assert.Equal(t, int64(0), f.account(t, a.ID).AvailableMicro())
}

func TestCreateHold_ReplayReturnsOriginal(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)

	first, err := f.svc.CreateHold(ctx, holdReq(a.ID, 200, "idem"))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	second, err := f.svc.CreateHold(ctx, holdReq(a.ID, 999, "idem"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(200), second.AmountMicro)
	assert.Equal(t, int64(200), f.account(t, a.ID).ReservedMicro)
}

func TestCreateHold_KeyOwnedByAnotherAccount(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)
	b := f.fund(t, 1000)

	_, err := f.svc.CreateHold(ctx, holdReq(a.ID, 100, "shared"))
	require.NoError(t, err)

	_, err = f.svc.CreateHold(ctx, holdReq(b.ID, 100, "shared"))
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", apperror.CodeOf(err))
	assert.Equal(t, int64(0), f.account(t, b.ID).ReservedMicro)
}

func TestCreateHold_Validation(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)

	tests := []struct {
		name  string
		req   ports.CreateHoldRequest
		code  string
		field string
	}{
		{"zero amount", holdReq(a.ID, 0, "k"), "VALIDATION_ERROR", "amount_micro"},
		{"negative amount", holdReq(a.ID, -5, "k"), "VALIDATION_ERROR", "amount_micro"},
		{"blank key", holdReq(a.ID, 5, "   "), "VALIDATION_ERROR", "idempotencyKey"},
		{"ttl too short", func() ports.CreateHoldRequest {
			r := holdReq(a.ID, 5, "k")
			r.TTL = 5 * time.Second
			return r
		}(), "VALIDATION_ERROR", "ttlSeconds"},
		{"ttl too long", func() ports.CreateHoldRequest {
			r := holdReq(a.ID, 5, "k")
			r.TTL = 48 * time.Hour
			return r
		}(), "VALIDATION_ERROR", "ttlSeconds"},
		{"unknown account", holdReq(a.ID+100, 5, "k"), "USER_NOT_RESOLVED", ""},
		{"empty ref", ports.CreateHoldRequest{AmountMicro: 5, IdempotencyKey: "k"}, "USER_NOT_RESOLVED", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateHold(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperror.CodeOf(err))
			if tt.field != "" {
				appErr := err.(*apperror.AppError)
				assert.Contains(t, appErr.Fields, tt.field)
			}
		})
	}
	assert.Equal(t, int64(0), f.account(t, a.ID).ReservedMicro)
}

func TestCreateHold_BySubject(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	subject := "wallet:ALGOADDR"
	a, err := f.svc.OpenAccount(ctx, &subject)
	require.NoError(t, err)
	_, err = f.svc.Adjust(ctx, ports.AdjustRequest{AccountID: a.ID, DeltaMicro: 50})
	require.NoError(t, err)

	hold, err := f.svc.CreateHold(ctx, ports.CreateHoldRequest{
		Account:        domain.AccountRef{Subject: subject},
		AmountMicro:    50,
		IdempotencyKey: "s-1",
		Metadata:       json.RawMessage(`{"job":"render"}`),
		TTL:            30 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, a.ID, hold.AccountID)
	assert.Equal(t, ledgerEpoch.Add(30*time.Second), hold.ExpiresAt)
	assert.JSONEq(t, `{"job":"render"}`, string(hold.Metadata))
}

// ==================== Capture ====================

func TestCapture_SameKeyIsIdempotent(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)
	hold, err := f.svc.CreateHold(ctx, holdReq(a.ID, 500, "h"))
	require.NoError(t, err)

	req := ports.CaptureRequest{Account: domain.AccountRef{ID: a.ID}, HoldID: hold.ID, ActualCostMicro: 120, CaptureKey: "cap"}
	first, err := f.svc.Capture(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Capture(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.CapturedMicro, second.CapturedMicro)
	assert.Equal(t, int64(880), f.account(t, a.ID).BalanceMicro)
	assert.Len(t, f.entriesOfType(t, a.ID, domain.EntryTypeCapture), 1)
}

func TestCapture_DifferentKeyAfterSettleIsNoop(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)
	hold, err := f.svc.CreateHold(ctx, holdReq(a.ID, 500, "h"))
	require.NoError(t, err)

	_, err = f.svc.Capture(ctx, ports.CaptureRequest{Account: domain.AccountRef{ID: a.ID}, HoldID: hold.ID, ActualCostMicro: 100, CaptureKey: "k1"})
	require.NoError(t, err)

	again, err := f.svc.Capture(ctx, ports.CaptureRequest{Account: domain.AccountRef{ID: a.ID}, HoldID: hold.ID, ActualCostMicro: 400, CaptureKey: "k2"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), again.CapturedMicro)
	assert.Equal(t, "k1", *again.CaptureKey)
	assert.Equal(t, int64(900), f.account(t, a.ID).BalanceMicro)
}

func TestCapture_CostAboveHoldIsCappedAtAmount(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)
	hold, err := f.svc.CreateHold(ctx, holdReq(a.ID, 500, "h"))
	require.NoError(t, err)

	captured, err := f.svc.Capture(ctx, ports.CaptureRequest{Account: domain.AccountRef{ID: a.ID}, HoldID: hold.ID, ActualCostMicro: 800, CaptureKey: "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(500), captured.CapturedMicro)
	assert.Equal(t, domain.HoldStatusCaptured, captured.Status)
	assert.Empty(t, f.entriesOfType(t, a.ID, domain.EntryTypeRelease))

	acc := f.account(t, a.ID)
	assert.Equal(t, int64(500), acc.BalanceMicro)
	assert.Equal(t, int64(0), acc.ReservedMicro)
}

func TestCapture_ZeroCostReleasesEverything(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)
	hold, err := f.svc.CreateHold(ctx, holdReq(a.ID, 500, "h"))
	require.NoError(t, err)

	captured, err := f.svc.Capture(ctx, ports.CaptureRequest{Account: domain.AccountRef{ID: a.ID}, HoldID: hold.ID, ActualCostMicro: 0, CaptureKey: "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), captured.CapturedMicro)
	assert.Equal(t, domain.HoldStatusCaptured, captured.Status)
	assert.Empty(t, f.entriesOfType(t, a.ID, domain.EntryTypeCapture))

	acc := f.account(t, a.ID)
	assert.Equal(t, int64(1000), acc.BalanceMicro)
	assert.Equal(t, int64(0), acc.ReservedMicro)
}

func TestCapture_Errors(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)
	b := f.fund(t, 1000)
	hold, err := f.svc.CreateHold(ctx, holdReq(a.ID, 500, "h"))
	require.NoError(t, err)

	_, err = f.svc.Capture(ctx, ports.CaptureRequest{Account: domain.AccountRef{ID: b.ID}, HoldID: hold.ID, ActualCostMicro: 1, CaptureKey: "c"})
	assert.Equal(t, "FORBIDDEN", apperror.CodeOf(err))

	_, err = f.svc.Capture(ctx, ports.CaptureRequest{Account: domain.AccountRef{ID: a.ID}, HoldID: 9999, ActualCostMicro: 1, CaptureKey: "c"})
	assert.Equal(t, "HOLD_NOT_FOUND", apperror.CodeOf(err))

	_, err = f.svc.Capture(ctx, ports.CaptureRequest{Account: domain.AccountRef{ID: a.ID}, HoldID: hold.ID, ActualCostMicro: -1, CaptureKey: ""})
	require.Error(t, err)
	appErr := err.(*apperror.AppError)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Contains(t, appErr.Fields, "actualCostMicro")
	assert.Contains(t, appErr.Fields, "captureKey")

	// Nothing moved.
	acc := f.account(t, a.ID)
	assert.Equal(t, int64(1000), acc.BalanceMicro)
	assert.Equal(t, int64(500), acc.ReservedMicro)
}

// ==================== Release / Cancel / Expire ====================

func TestReleaseHold_ExpireThenNoop(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)
	hold, err := f.svc.CreateHold(ctx, holdReq(a.ID, 400, "h"))
	require.NoError(t, err)

	released, err := f.svc.ReleaseHold(ctx, hold.ID, domain.ReleaseReasonExpire)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusExpired, released.Status)
	assert.Equal(t, int64(0), f.account(t, a.ID).ReservedMicro)

	expires := f.entriesOfType(t, a.ID, domain.EntryTypeExpire)
	require.Len(t, expires, 1)
	assert.Equal(t, int64(0), expires[0].DeltaMicro)
	assert.JSONEq(t, `{"released_micro":400,"reason":"EXPIRE"}`, string(expires[0].Metadata))

	again, err := f.svc.ReleaseHold(ctx, hold.ID, domain.ReleaseReasonCancel)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusExpired, again.Status)
	assert.Len(t, f.entriesOfType(t, a.ID, domain.EntryTypeRelease), 0)
}

func TestReleaseHold_CapturedHoldUnchanged(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)
	hold, err := f.svc.CreateHold(ctx, holdReq(a.ID, 400, "h"))
	require.NoError(t, err)
	_, err = f.svc.Capture(ctx, ports.CaptureRequest{Account: domain.AccountRef{ID: a.ID}, HoldID: hold.ID, ActualCostMicro: 400, CaptureKey: "c"})
	require.NoError(t, err)

	got, err := f.svc.ReleaseHold(ctx, hold.ID, domain.ReleaseReasonExpire)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusCaptured, got.Status)
	assert.Equal(t, int64(600), f.account(t, a.ID).BalanceMicro)
}

func TestReleaseHold_NotFound(t *testing.T) {
	f := setupLedger(t)
	_, err := f.svc.ReleaseHold(context.Background(), 12345, domain.ReleaseReasonExpire)
	assert.Equal(t, "HOLD_NOT_FOUND", apperror.CodeOf(err))
}

func TestCancelHold(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)
	b := f.fund(t, 1000)
	hold, err := f.svc.CreateHold(ctx, holdReq(a.ID, 250, "h"))
	require.NoError(t, err)

	_, err = f.svc.CancelHold(ctx, domain.AccountRef{ID: b.ID}, hold.ID)
	assert.Equal(t, "FORBIDDEN", apperror.CodeOf(err))
	assert.Equal(t, int64(250), f.account(t, a.ID).ReservedMicro)

	cancelled, err := f.svc.CancelHold(ctx, domain.AccountRef{ID: a.ID}, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusReleased, cancelled.Status)
	assert.Equal(t, int64(0), f.account(t, a.ID).ReservedMicro)
	assert.Len(t, f.entriesOfType(t, a.ID, domain.EntryTypeRelease), 1)
}

func TestReleaseExpired(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)

	short := holdReq(a.ID, 100, "short")
	short.TTL = 10 * time.Second
	_, err := f.svc.CreateHold(ctx, short)
	require.NoError(t, err)
	medium := holdReq(a.ID, 200, "medium")
	medium.TTL = time.Minute
	_, err = f.svc.CreateHold(ctx, medium)
	require.NoError(t, err)
	long, err := f.svc.CreateHold(ctx, holdReq(a.ID, 300, "long"))
	require.NoError(t, err)

	n, err := f.svc.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(2 * time.Minute)
	n, err = f.svc.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	acc := f.account(t, a.ID)
	assert.Equal(t, int64(300), acc.ReservedMicro)
	assert.Equal(t, int64(1000), acc.BalanceMicro)

	got, err := f.store.Holds().GetByID(ctx, long.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldStatusHeld, got.Status)
	f.assertReservedMatchesHolds(t, a.ID)
}

func TestReleaseExpired_WalksAllBatches(t *testing.T) {
	f := setupLedger(t)
	f.svc.opts.SweepBatchSize = 2
	ctx := context.Background()
	a := f.fund(t, 1000)

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		r := holdReq(a.ID, 10, key)
		r.TTL = 10 * time.Second
		_, err := f.svc.CreateHold(ctx, r)
		require.NoError(t, err)
	}
	f.clock.Advance(11 * time.Second)

	n, err := f.svc.ReleaseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(0), f.account(t, a.ID).ReservedMicro)
}

// ==================== Adjust / reads ====================

func TestAdjust(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 0)

	acc, err := f.svc.Adjust(ctx, ports.AdjustRequest{AccountID: a.ID, DeltaMicro: 500, ExternalRef: "topup-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(500), acc.BalanceMicro)

	acc, err = f.svc.Adjust(ctx, ports.AdjustRequest{AccountID: a.ID, DeltaMicro: 500, ExternalRef: "topup-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(500), acc.BalanceMicro, "repeated external ref is a no-op")

	_, err = f.svc.CreateHold(ctx, holdReq(a.ID, 400, "h"))
	require.NoError(t, err)

	_, err = f.svc.Adjust(ctx, ports.AdjustRequest{AccountID: a.ID, DeltaMicro: -200})
	assert.Equal(t, "INSUFFICIENT_FUNDS", apperror.CodeOf(err), "balance may not drop below reserved")

	acc, err = f.svc.Adjust(ctx, ports.AdjustRequest{AccountID: a.ID, DeltaMicro: -100})
	require.NoError(t, err)
	assert.Equal(t, int64(400), acc.BalanceMicro)
	assert.Equal(t, int64(0), acc.AvailableMicro())

	adjusts := f.entriesOfType(t, a.ID, domain.EntryTypeAdjust)
	assert.Len(t, adjusts, 2)
}

func TestAdjust_ExternalRefOwnedByAnotherAccount(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 0)
	b := f.fund(t, 0)

	_, err := f.svc.Adjust(ctx, ports.AdjustRequest{AccountID: a.ID, DeltaMicro: 500, ExternalRef: "topup-1"})
	require.NoError(t, err)

	_, err = f.svc.Adjust(ctx, ports.AdjustRequest{AccountID: b.ID, DeltaMicro: 500, ExternalRef: "topup-1"})
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", apperror.CodeOf(err))
	assert.Equal(t, int64(0), f.account(t, b.ID).BalanceMicro)
	assert.Empty(t, f.entriesOfType(t, b.ID, domain.EntryTypeAdjust))
}

func TestAdjust_Validation(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 0)

	_, err := f.svc.Adjust(ctx, ports.AdjustRequest{AccountID: a.ID})
	assert.Equal(t, "VALIDATION_ERROR", apperror.CodeOf(err))

	_, err = f.svc.Adjust(ctx, ports.AdjustRequest{AccountID: 777, DeltaMicro: 1})
	assert.Equal(t, "USER_NOT_RESOLVED", apperror.CodeOf(err))
}

func TestOpenAccount_DuplicateSubject(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	subject := "user:abc"

	_, err := f.svc.OpenAccount(ctx, &subject)
	require.NoError(t, err)
	_, err = f.svc.OpenAccount(ctx, &subject)
	assert.Equal(t, "ACCOUNT_EXISTS", apperror.CodeOf(err))
}

func TestGetAccountAndListEntries(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 1000)
	_, err := f.svc.CreateHold(ctx, holdReq(a.ID, 100, "h"))
	require.NoError(t, err)

	acc, err := f.svc.GetAccount(ctx, domain.AccountRef{ID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(900), acc.AvailableMicro())

	entries, err := f.svc.ListEntries(ctx, domain.AccountRef{ID: a.ID}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryTypeHold, entries[0].Type)
	assert.Equal(t, domain.EntryTypeAdjust, entries[1].Type)

	entries, err = f.svc.ListEntries(ctx, domain.AccountRef{ID: a.ID}, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = f.svc.GetAccount(ctx, domain.AccountRef{ID: 4040})
	assert.Equal(t, "USER_NOT_RESOLVED", apperror.CodeOf(err))
}

func TestLedger_InvariantHoldsAcrossMixedOperations(t *testing.T) {
	f := setupLedger(t)
	ctx := context.Background()
	a := f.fund(t, 10_000)
	ref := domain.AccountRef{ID: a.ID}

	var holds []*domain.Hold
	for i, amount := range []int64{1000, 2500, 700, 3000, 1200} {
		r := holdReq(a.ID, amount, "mix-"+string(rune('a'+i)))
		r.TTL = time.Duration(10*(i+1)) * time.Second
		h, err := f.svc.CreateHold(ctx, r)
		require.NoError(t, err)
		holds = append(holds, h)
		f.assertReservedMatchesHolds(t, a.ID)
	}

	_, err := f.svc.Capture(ctx, ports.CaptureRequest{Account: ref, HoldID: holds[1].ID, ActualCostMicro: 1800, CaptureKey: "cap-b"})
	require.NoError(t, err)
	f.assertReservedMatchesHolds(t, a.ID)

	_, err = f.svc.CancelHold(ctx, ref, holds[3].ID)
	require.NoError(t, err)
	f.assertReservedMatchesHolds(t, a.ID)

	f.clock.Advance(35 * time.Second)
	_, err = f.svc.ReleaseExpired(ctx)
	require.NoError(t, err)
	f.assertReservedMatchesHolds(t, a.ID)

	_, err = f.svc.Capture(ctx, ports.CaptureRequest{Account: ref, HoldID: holds[4].ID, ActualCostMicro: 5000, CaptureKey: "cap-e"})
	require.NoError(t, err)
	f.assertReservedMatchesHolds(t, a.ID)

	acc := f.account(t, a.ID)
	assert.Equal(t, int64(10_000-1800-1200), acc.BalanceMicro)
	assert.Equal(t, int64(0), acc.ReservedMicro)

	// Sum of entry deltas equals the balance.
	all, err := f.store.Entries().ListByAccount(ctx, a.ID, 0)
	require.NoError(t, err)
	var sum int64
	for _, e := range all {
		sum += e.DeltaMicro
	}
	assert.Equal(t, acc.BalanceMicro, sum)
}
