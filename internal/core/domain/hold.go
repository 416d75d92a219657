package domain

import (
	"encoding/json"
	"time"
)

// HoldStatus represents the lifecycle state of a hold.
type HoldStatus string

const (
	HoldStatusHeld      HoldStatus = "HELD"
	HoldStatusCaptured  HoldStatus = "CAPTURED"
	HoldStatusReleased  HoldStatus = "RELEASED"
	HoldStatusExpired   HoldStatus = "EXPIRED"
	HoldStatusCancelled HoldStatus = "CANCELLED"
)

// ReleaseReason is why a held reservation is given back.
type ReleaseReason string

const (
	ReleaseReasonExpire ReleaseReason = "EXPIRE"
	ReleaseReasonCancel ReleaseReason = "CANCEL"
)

// Hold is a reservation of funds against an account's available balance.
// Holds are never deleted; they keep the audit trail of every settlement.
type Hold struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"account_id"`
	AmountMicro    int64           `json:"amount_micro"`
	CapturedMicro  int64           `json:"captured_micro"`
	Status         HoldStatus      `json:"status"`
	IdempotencyKey string          `json:"idempotency_key"`
	CaptureKey     *string         `json:"capture_key,omitempty"`
	ProviderRef    *string         `json:"provider_ref,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RemainingMicro is the part of the hold not yet captured.
func (h *Hold) RemainingMicro() int64 {
	return h.AmountMicro - h.CapturedMicro
}

// IsHeld reports whether the hold still reserves funds.
func (h *Hold) IsHeld() bool {
	return h.Status == HoldStatusHeld
}

// HasCaptureKey reports whether key was the one used to settle this hold.
func (h *Hold) HasCaptureKey(key string) bool {
	return h.CaptureKey != nil && *h.CaptureKey == key
}

// StatusFor maps a release reason to the terminal status it produces.
func (r ReleaseReason) StatusFor() HoldStatus {
	if r == ReleaseReasonExpire {
		return HoldStatusExpired
	}
	return HoldStatusReleased
}

// EntryType maps a release reason to the ledger entry it records.
func (r ReleaseReason) EntryType() EntryType {
	if r == ReleaseReasonExpire {
		return EntryTypeExpire
	}
	return EntryTypeRelease
}
