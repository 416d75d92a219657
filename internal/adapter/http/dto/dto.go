package dto

import (
	"encoding/json"
	"time"

	"microcredit-gateway/internal/core/domain"
)

// ---- Token issuance ----

// IssueTokenRequest is the request body for POST /api/v1/token/issue.
// Exactly one of BodyHash and Body may be set; neither means an empty body.
type IssueTokenRequest struct {
	Sub        string          `json:"sub" binding:"required,max=191"`
	Method     string          `json:"method" binding:"required,http_method"`
	Path       string          `json:"path" binding:"required,max=255,req_path"`
	BodyHash   *string         `json:"bodyHash,omitempty" binding:"omitempty,min=10,max=128"`
	Body       json.RawMessage `json:"body,omitempty"` // JSON value, or a string holding the raw body
	TTLSeconds *int            `json:"ttlSeconds,omitempty" binding:"omitempty,min=10,max=300"`
}

// IssueTokenResponse is the response body for token issuance.
type IssueTokenResponse struct {
	Token     string `json:"token"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	KeyID     string `json:"kid"`
	Algorithm string `json:"alg"`
	BodyHash  string `json:"bodyHash"`
}

// ---- Credits ----

// HoldRequest is the request body for POST /api/v1/credits/hold.
type HoldRequest struct {
	AccountRef     *string         `json:"accountRef,omitempty"`
	AmountMicro    int64           `json:"amount_micro" binding:"required,gt=0"`
	IdempotencyKey string          `json:"idempotencyKey" binding:"required,max=100,safe_id"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	ProviderRef    *string         `json:"providerRef,omitempty" binding:"omitempty,max=191"`
	TTLSeconds     *int            `json:"ttlSeconds,omitempty" binding:"omitempty,gt=0"`
}

// CaptureRequest is the request body for POST /api/v1/credits/capture.
type CaptureRequest struct {
	AccountRef      *string `json:"accountRef,omitempty"`
	HoldID          int64   `json:"holdId" binding:"required,gt=0"`
	ActualCostMicro *int64  `json:"actualCostMicro" binding:"required,gte=0"`
	CaptureKey      string  `json:"captureKey" binding:"required,max=100,safe_id"`
}

// ReleaseRequest is the request body for POST /api/v1/credits/release.
type ReleaseRequest struct {
	AccountRef *string `json:"accountRef,omitempty"`
	HoldID     int64   `json:"holdId" binding:"required,gt=0"`
}

// HoldResponse is the public view of a hold.
type HoldResponse struct {
	ID            int64   `json:"id"`
	Status        string  `json:"status"`
	AmountMicro   int64   `json:"amount_micro"`
	CapturedMicro int64   `json:"captured_micro"`
	ExpiresAt     *string `json:"expires_at,omitempty"`
}

// BalanceResponse is the response for GET /api/v1/credits/balance.
type BalanceResponse struct {
	AccountID      int64 `json:"account_id"`
	BalanceMicro   int64 `json:"balance_micro"`
	ReservedMicro  int64 `json:"reserved_micro"`
	AvailableMicro int64 `json:"available_micro"`
}

// ---- Admin ----

// OpenAccountRequest is the request body for POST /api/v1/admin/accounts.
type OpenAccountRequest struct {
	Subject *string `json:"subject,omitempty" binding:"omitempty,min=1,max=191"`
}

// AdjustRequest is the request body for POST /api/v1/admin/accounts/:id/adjust.
type AdjustRequest struct {
	DeltaMicro  int64           `json:"delta_micro" binding:"required"`
	ExternalRef string          `json:"externalRef,omitempty" binding:"omitempty,max=191,safe_id"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// AccountResponse is the operator view of an account.
type AccountResponse struct {
	ID             int64   `json:"id"`
	Subject        *string `json:"subject,omitempty"`
	BalanceMicro   int64   `json:"balance_micro"`
	ReservedMicro  int64   `json:"reserved_micro"`
	AvailableMicro int64   `json:"available_micro"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// LedgerEntryResponse is one line of an account's ledger.
type LedgerEntryResponse struct {
	ID          int64           `json:"id"`
	HoldID      *int64          `json:"hold_id,omitempty"`
	Type        string          `json:"type"`
	DeltaMicro  int64           `json:"delta_micro"`
	ExternalRef *string         `json:"external_ref,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

// LedgerEntryListResponse wraps an account's recent entries.
type LedgerEntryListResponse struct {
	AccountID int64                 `json:"account_id"`
	Items     []LedgerEntryResponse `json:"items"`
}

// ReleaseExpiredResponse is the response for the expiry sweep trigger.
type ReleaseExpiredResponse struct {
	Released int `json:"released"`
}

// ---- Mapping ----

// NewHoldResponse converts a domain hold.
func NewHoldResponse(h *domain.Hold) HoldResponse {
	resp := HoldResponse{
		ID:            h.ID,
		Status:        string(h.Status),
		AmountMicro:   h.AmountMicro,
		CapturedMicro: h.CapturedMicro,
	}
	if !h.ExpiresAt.IsZero() {
		s := h.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	return resp
}

// NewAccountResponse converts a domain account.
func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:             a.ID,
		Subject:        a.Subject,
		BalanceMicro:   a.BalanceMicro,
		ReservedMicro:  a.ReservedMicro,
		AvailableMicro: a.AvailableMicro(),
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// NewBalanceResponse converts a domain account into the holder's balance view.
func NewBalanceResponse(a *domain.Account) BalanceResponse {
	return BalanceResponse{
		AccountID:      a.ID,
		BalanceMicro:   a.BalanceMicro,
		ReservedMicro:  a.ReservedMicro,
		AvailableMicro: a.AvailableMicro(),
	}
}

// NewLedgerEntryListResponse converts ledger entries, newest first as given.
func NewLedgerEntryListResponse(accountID int64, entries []domain.LedgerEntry) LedgerEntryListResponse {
	items := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, LedgerEntryResponse{
			ID:          e.ID,
			HoldID:      e.HoldID,
			Type:        string(e.Type),
			DeltaMicro:  e.DeltaMicro,
			ExternalRef: e.ExternalRef,
			Metadata:    e.Metadata,
			CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return LedgerEntryListResponse{AccountID: accountID, Items: items}
}
