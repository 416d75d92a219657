package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"microcredit-gateway/internal/clock"
	"microcredit-gateway/internal/core/domain"
	"microcredit-gateway/internal/core/ports"
	"microcredit-gateway/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const nonceBytes = 16

// TokenIssuerOptions configures issued token lifetimes and identity.
type TokenIssuerOptions struct {
	Address    string // empty = derived from the public key
	Network    string
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
}

// EphemeralTokenIssuer implements ports.TokenIssuer with EdDSA (Ed25519) JWS.
// It also serves as a ports.PublicKeySource when no external key service is configured.
type EphemeralTokenIssuer struct {
	key   ed25519.PrivateKey
	pub   ed25519.PublicKey
	opts  TokenIssuerOptions
	clock clock.Clock
	log   zerolog.Logger
}

// NewTokenIssuer creates a new EphemeralTokenIssuer from a private key.
func NewTokenIssuer(key ed25519.PrivateKey, opts TokenIssuerOptions, clk clock.Clock, log zerolog.Logger) *EphemeralTokenIssuer {
	pub := key.Public().(ed25519.PublicKey)
	if opts.Address == "" {
		opts.Address = EncodeAddress(pub)
	}
	return &EphemeralTokenIssuer{key: key, pub: pub, opts: opts, clock: clk, log: log}
}

// Address is the issuer identity used as iss and kid.
func (s *EphemeralTokenIssuer) Address() string {
	return s.opts.Address
}

// Issue signs a token authorizing exactly the described request.
func (s *EphemeralTokenIssuer) Issue(ctx context.Context, req ports.IssueTokenRequest) (*ports.IssuedToken, error) {
	ttl, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	now := s.clock.Now().Truncate(time.Second)
	exp := now.Add(ttl)
	claims := &domain.EphemeralClaims{
		Method:   strings.ToUpper(req.Method),
		Path:     req.Path,
		BodyHash: req.BodyHash,
		Nonce:    nonce,
		Net:      s.opts.Network,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.opts.Address,
			Subject:   req.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = s.opts.Address

	signed, err := token.SignedString(s.key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("signing token: %w", err))
	}

	s.log.Info().
		Str("sub", req.Subject).
		Str("method", claims.Method).
		Str("path", req.Path).
		Int64("exp", exp.Unix()).
		Msg("ephemeral token issued")

	return &ports.IssuedToken{
		Token:     signed,
		IssuedAt:  now.Unix(),
		ExpiresAt: exp.Unix(),
		KeyID:     s.opts.Address,
		Algorithm: jwt.SigningMethodEdDSA.Alg(),
	}, nil
}

func (s *EphemeralTokenIssuer) validate(req ports.IssueTokenRequest) (time.Duration, error) {
	fields := map[string]string{}
	if strings.TrimSpace(req.Subject) == "" {
		fields["sub"] = "required"
	}
	if strings.TrimSpace(req.Method) == "" {
		fields["method"] = "required"
	}
	if !strings.HasPrefix(req.Path, "/") {
		fields["path"] = "must start with '/'"
	}
	if req.BodyHash == "" {
		fields["bodyHash"] = "required"
	}

	ttl := req.TTL
	if ttl == 0 {
		ttl = s.opts.DefaultTTL
	}
	if ttl < s.opts.MinTTL || ttl > s.opts.MaxTTL {
		fields["ttlSeconds"] = fmt.Sprintf("must be between %d and %d", int(s.opts.MinTTL.Seconds()), int(s.opts.MaxTTL.Seconds()))
	}

	if len(fields) > 0 {
		return 0, apperror.ValidationFields(fields)
	}
	return ttl, nil
}

// PublicKeyDocument describes the signing key in the key-service format.
func (s *EphemeralTokenIssuer) PublicKeyDocument() ports.PublicKeyDocument {
	return ports.PublicKeyDocument{
		Address:         s.opts.Address,
		PublicKeyBase64: base64.StdEncoding.EncodeToString(s.pub),
		PublicKeyHex:    hex.EncodeToString(s.pub),
		JWK: &ports.JWK{
			Kty: "OKP",
			Crv: "Ed25519",
			X:   base64.RawURLEncoding.EncodeToString(s.pub),
			Kid: s.opts.Address,
		},
	}
}

// FetchPublicKey implements ports.PublicKeySource for in-process verification.
func (s *EphemeralTokenIssuer) FetchPublicKey(_ context.Context) (*ports.PublicKeyDocument, error) {
	doc := s.PublicKeyDocument()
	return &doc, nil
}

func newNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
