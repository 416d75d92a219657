package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"microcredit-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// HoldRepo implements ports.HoldRepository.
type HoldRepo struct {
	s *Store
}

func (r *HoldRepo) Create(_ context.Context, tx pgx.Tx, h *domain.Hold) error {
	if err := r.s.checkTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.holds {
		if existing.IdempotencyKey == h.IdempotencyKey {
			return fmt.Errorf("insert hold: %w", domain.ErrUniqueViolation)
		}
	}
	r.s.nextHoldID++
	h.ID = r.s.nextHoldID
	r.s.holds[h.ID] = *h
	return nil
}

func (r *HoldRepo) GetByID(_ context.Context, id int64) (*domain.Hold, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.byID(id), nil
}

func (r *HoldRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id int64) (*domain.Hold, error) {
	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.byID(id), nil
}

func (r *HoldRepo) GetByIdempotencyKey(_ context.Context, key string) (*domain.Hold, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.byKey(key), nil
}

func (r *HoldRepo) GetByIdempotencyKeyTx(_ context.Context, tx pgx.Tx, key string) (*domain.Hold, error) {
	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.byKey(key), nil
}

func (r *HoldRepo) Update(_ context.Context, tx pgx.Tx, h *domain.Hold) error {
	if err := r.s.checkTx(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.holds[h.ID]
	if !ok {
		return fmt.Errorf("hold not found: %d", h.ID)
	}
	if h.CaptureKey != nil {
		for id, other := range r.s.holds {
			if id != h.ID && other.CaptureKey != nil && *other.CaptureKey == *h.CaptureKey {
				return fmt.Errorf("update hold: %w", domain.ErrUniqueViolation)
			}
		}
	}
	current.CapturedMicro = h.CapturedMicro
	current.Status = h.Status
	current.CaptureKey = h.CaptureKey
	current.UpdatedAt = h.UpdatedAt
	r.s.holds[h.ID] = current
	return nil
}

func (r *HoldRepo) ListExpiredIDs(_ context.Context, now time.Time, limit int) ([]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var expired []domain.Hold
	for _, h := range r.s.holds {
		if h.Status == domain.HoldStatusHeld && !h.ExpiresAt.After(now) {
			expired = append(expired, h)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].ExpiresAt.Equal(expired[j].ExpiresAt) {
			return expired[i].ID < expired[j].ID
		}
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	ids := make([]int64, 0, len(expired))
	for _, h := range expired {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func (r *HoldRepo) byID(id int64) *domain.Hold {
	h, ok := r.s.holds[id]
	if !ok {
		return nil
	}
	return &h
}

func (r *HoldRepo) byKey(key string) *domain.Hold {
	for _, h := range r.s.holds {
		if h.IdempotencyKey == key {
			return &h
		}
	}
	return nil
}
