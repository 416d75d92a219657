package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"microcredit-gateway/internal/clock"
	"microcredit-gateway/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// NonceStore implements ports.NonceStore using Redis SET NX.
// Keys live until the token could no longer verify (exp + clock skew).
type NonceStore struct {
	client *goredis.Client
	clock  clock.Clock
	skew   time.Duration
	prefix string
}

// NewNonceStore creates a new Redis-backed nonce store.
func NewNonceStore(client *goredis.Client, clk clock.Clock, skew time.Duration) *NonceStore {
	return &NonceStore{
		client: client,
		clock:  clk,
		skew:   skew,
		prefix: "nonce:",
	}
}

// Record atomically stores the nonce if absent.
// Returns true if the nonce is new (valid), false if already used.
func (s *NonceStore) Record(ctx context.Context, rec domain.NonceRecord) (bool, error) {
	ttl := time.Unix(rec.ExpiresAt, 0).Add(s.skew).Sub(s.clock.Now())
	if ttl < time.Second {
		ttl = time.Second
	}

	result, err := s.client.SetArgs(ctx, s.prefix+rec.Nonce, rec.Issuer, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Key already exists: nonce was already used
			return false, nil
		}
		return false, fmt.Errorf("redis nonce record: %w", err)
	}
	return result == "OK", nil
}
