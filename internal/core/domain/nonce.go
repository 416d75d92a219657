package domain

import "time"

// NonceRecord marks a token nonce as consumed.
// Records are never updated and may be purged once Exp has passed.
type NonceRecord struct {
	Nonce     string    `json:"nonce"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
	Issuer    string    `json:"issuer"`
	CreatedAt time.Time `json:"created_at"`
}
