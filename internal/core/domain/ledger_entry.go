package domain

import (
	"encoding/json"
	"time"
)

// EntryType is the kind of state transition a ledger entry records.
type EntryType string

const (
	EntryTypeHold    EntryType = "HOLD"
	EntryTypeCapture EntryType = "CAPTURE"
	EntryTypeRelease EntryType = "RELEASE"
	EntryTypeExpire  EntryType = "EXPIRE"
	EntryTypeAdjust  EntryType = "ADJUST"
)

// LedgerEntry is an immutable, append-only record of one account state transition.
// HOLD, RELEASE and EXPIRE entries carry a zero delta: they only move the reservation.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	HoldID      *int64          `json:"hold_id,omitempty"`
	Type        EntryType       `json:"type"`
	DeltaMicro  int64           `json:"delta_micro"`
	ExternalRef *string         `json:"external_ref,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewEntryMetadata marshals a small metadata map. Values are plain scalars, so
// marshalling cannot fail in practice.
func NewEntryMetadata(kv map[string]interface{}) json.RawMessage {
	b, err := json.Marshal(kv)
	if err != nil {
		return nil
	}
	return b
}
