package service

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"microcredit-gateway/internal/clock"
	"microcredit-gateway/internal/core/ports"
	"microcredit-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

const publicKeyCacheKey = "issuer_pubkey"

// CachedKeyProvider implements ports.KeyProvider.
// Lookup order: in-process copy, shared cache (optional), then the key source.
type CachedKeyProvider struct {
	source ports.PublicKeySource
	cache  ports.Cache
	ttl    time.Duration
	clock  clock.Clock
	log    zerolog.Logger

	mu        sync.Mutex
	key       ed25519.PublicKey
	fetchedAt time.Time
}

// NewKeyProvider creates a new CachedKeyProvider. cache may be nil.
func NewKeyProvider(source ports.PublicKeySource, cache ports.Cache, ttl time.Duration, clk clock.Clock, log zerolog.Logger) *CachedKeyProvider {
	return &CachedKeyProvider{source: source, cache: cache, ttl: ttl, clock: clk, log: log}
}

// PublicKey returns the issuer verification key.
func (p *CachedKeyProvider) PublicKey(ctx context.Context) (ed25519.PublicKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if p.key != nil && now.Sub(p.fetchedAt) < p.ttl {
		return p.key, nil
	}

	if p.cache != nil {
		cached, err := p.cache.Get(ctx, publicKeyCacheKey)
		if err != nil {
			p.log.Warn().Err(err).Msg("public key cache read failed")
		} else if len(cached) == ed25519.PublicKeySize {
			p.remember(cached, now)
			return p.key, nil
		}
	}

	doc, err := p.source.FetchPublicKey(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("public key fetch failed")
		return nil, apperror.ErrKeyServiceUnavailable(err)
	}

	key, err := DecodePublicKey(doc)
	if err != nil {
		p.log.Error().Err(err).Str("address", doc.Address).Msg("key service returned an unusable key")
		return nil, apperror.ErrInvalidPublicKey()
	}

	if p.cache != nil && p.ttl > 0 {
		if err := p.cache.Set(ctx, publicKeyCacheKey, key, p.ttl); err != nil {
			p.log.Warn().Err(err).Msg("public key cache write failed")
		}
	}
	p.remember(key, now)
	return key, nil
}

func (p *CachedKeyProvider) remember(key []byte, now time.Time) {
	p.key = ed25519.PublicKey(key)
	p.fetchedAt = now
}

// DecodePublicKey extracts the raw Ed25519 key from a key document.
// The first populated form wins: jwk.x (base64url), publicKeyBase64, publicKeyHex.
func DecodePublicKey(doc *ports.PublicKeyDocument) (ed25519.PublicKey, error) {
	if doc == nil {
		return nil, errors.New("empty key document")
	}

	var (
		raw []byte
		err error
	)
	switch {
	case doc.JWK != nil && doc.JWK.X != "":
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(doc.JWK.X, "="))
	case doc.PublicKeyBase64 != "":
		raw, err = base64.StdEncoding.DecodeString(doc.PublicKeyBase64)
	case doc.PublicKeyHex != "":
		raw, err = hex.DecodeString(doc.PublicKeyHex)
	default:
		return nil, errors.New("key document carries no key")
	}
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
