package memory

import (
	"context"
	"sync"

	"microcredit-gateway/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository by appending to a slice.
type AuditRepo struct {
	mu   sync.Mutex
	logs []domain.AuditLog
}

// NewAuditRepo creates an empty audit repository.
func NewAuditRepo() *AuditRepo {
	return &AuditRepo{}
}

func (r *AuditRepo) Create(_ context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

// Logs returns a copy of the stored entries.
func (r *AuditRepo) Logs() []domain.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditLog(nil), r.logs...)
}
