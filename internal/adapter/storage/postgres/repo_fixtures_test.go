package postgres

import (
	"encoding/json"
	"time"

	"microcredit-gateway/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
)

func fixedTime() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestAccount() *domain.Account {
	subject := "user:42"
	return &domain.Account{
		ID:            42,
		Subject:       &subject,
		BalanceMicro:  10_000_000,
		ReservedMicro: 2_000_000,
		CreatedAt:     fixedTime(),
		UpdatedAt:     fixedTime(),
	}
}

func accountRow(a *domain.Account) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "subject", "balance_micro", "reserved_micro", "created_at", "updated_at"}).
		AddRow(a.ID, a.Subject, a.BalanceMicro, a.ReservedMicro, a.CreatedAt, a.UpdatedAt)
}

func newTestHold() *domain.Hold {
	now := fixedTime()
	return &domain.Hold{
		ID:             7,
		AccountID:      42,
		AmountMicro:    1_500_000,
		CapturedMicro:  0,
		Status:         domain.HoldStatusHeld,
		IdempotencyKey: "idem-7",
		CaptureKey:     nil,
		ProviderRef:    nil,
		ExpiresAt:      now.Add(15 * time.Minute),
		Metadata:       json.RawMessage(`{"model":"gpt"}`),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func holdColumnNames() []string {
	return []string{"id", "account_id", "amount_micro", "captured_micro", "status", "idempotency_key",
		"capture_key", "provider_ref", "expires_at", "metadata", "created_at", "updated_at"}
}

func holdRow(h *domain.Hold) *pgxmock.Rows {
	return pgxmock.NewRows(holdColumnNames()).AddRow(
		h.ID, h.AccountID, h.AmountMicro, h.CapturedMicro, h.Status, h.IdempotencyKey,
		h.CaptureKey, h.ProviderRef, h.ExpiresAt, h.Metadata, h.CreatedAt, h.UpdatedAt,
	)
}
