package ports

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"time"

	"microcredit-gateway/internal/core/domain"
)

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// --- Service Ports (Business Logic) ---

// LedgerService owns the hold/capture/release state machine.
type LedgerService interface {
	OpenAccount(ctx context.Context, subject *string) (*domain.Account, error)
	CreateHold(ctx context.Context, req CreateHoldRequest) (*domain.Hold, error)
	Capture(ctx context.Context, req CaptureRequest) (*domain.Hold, error)
	ReleaseHold(ctx context.Context, holdID int64, reason domain.ReleaseReason) (*domain.Hold, error)
	CancelHold(ctx context.Context, ref domain.AccountRef, holdID int64) (*domain.Hold, error)
	ReleaseExpired(ctx context.Context) (int, error)
	Adjust(ctx context.Context, req AdjustRequest) (*domain.Account, error)
	GetAccount(ctx context.Context, ref domain.AccountRef) (*domain.Account, error)
	ListEntries(ctx context.Context, ref domain.AccountRef, limit int) ([]domain.LedgerEntry, error)
}

// CreateHoldRequest holds validated input for reserving funds.
type CreateHoldRequest struct {
	Account        domain.AccountRef
	AmountMicro    int64
	IdempotencyKey string
	Metadata       json.RawMessage
	ProviderRef    *string
	TTL            time.Duration // zero = configured default
}

// CaptureRequest holds validated input for settling a hold.
type CaptureRequest struct {
	Account         domain.AccountRef
	HoldID          int64
	ActualCostMicro int64
	CaptureKey      string
}

// AdjustRequest credits or debits an account outside the hold flow (top-ups, corrections).
type AdjustRequest struct {
	AccountID   int64
	DeltaMicro  int64
	ExternalRef string // optional; a repeated ref is a no-op
	Metadata    json.RawMessage
}

// AccountResolver turns a verified token subject into an AccountRef using the
// strategy fixed at startup.
type AccountResolver interface {
	Resolve(subject string) (domain.AccountRef, error)
}

// TokenIssuer mints request-bound capability tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, req IssueTokenRequest) (*IssuedToken, error)
	PublicKeyDocument() PublicKeyDocument
}

// IssueTokenRequest describes the single call a token will authorize.
type IssueTokenRequest struct {
	Subject  string
	Method   string
	Path     string
	BodyHash string
	TTL      time.Duration // zero = configured default
}

// IssuedToken is the compact token plus its timing metadata.
type IssuedToken struct {
	Token     string `json:"token"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	KeyID     string `json:"kid"`
	Algorithm string `json:"alg"`
}

// TokenVerifier validates a token against the live request.
type TokenVerifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*domain.EphemeralClaims, error)
}

// VerifyRequest is the live request a token is checked against.
type VerifyRequest struct {
	Token  string
	Method string
	Path   string
	Body   []byte
}

// PublicKeyDocument is the key-service response describing the issuer key.
type PublicKeyDocument struct {
	Address         string `json:"address"`
	PublicKeyBase64 string `json:"publicKeyBase64"`
	PublicKeyHex    string `json:"publicKeyHex"`
	JWK             *JWK   `json:"jwk,omitempty"`
}

// JWK is the OKP/Ed25519 JSON Web Key form of the issuer key.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Kid string `json:"kid"`
}

// PublicKeySource fetches the issuer key document (HTTP key service or local issuer).
type PublicKeySource interface {
	FetchPublicKey(ctx context.Context) (*PublicKeyDocument, error)
}

// KeyProvider resolves the issuer's current verification key.
type KeyProvider interface {
	PublicKey(ctx context.Context) (ed25519.PublicKey, error)
}

// Cache is a shared byte cache (Redis) for values that are expensive to fetch.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns nil, nil on miss
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// HashService handles secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// AuditService records audit entries.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
