package memory

import (
	"context"
	"sync"
	"time"

	"microcredit-gateway/internal/core/domain"
)

// NonceStore implements ports.NonceStore and ports.NoncePurger in process memory.
// Single-replica use only.
type NonceStore struct {
	mu     sync.Mutex
	nonces map[string]domain.NonceRecord
}

// NewNonceStore creates an empty nonce store.
func NewNonceStore() *NonceStore {
	return &NonceStore{nonces: make(map[string]domain.NonceRecord)}
}

func (s *NonceStore) Record(_ context.Context, rec domain.NonceRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, used := s.nonces[rec.Nonce]; used {
		return false, nil
	}
	s.nonces[rec.Nonce] = rec
	return true, nil
}

func (s *NonceStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := before.Unix()
	var purged int64
	for k, rec := range s.nonces {
		if rec.ExpiresAt < cutoff {
			delete(s.nonces, k)
			purged++
		}
	}
	return purged, nil
}

// Len reports how many nonces are stored.
func (s *NonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nonces)
}
