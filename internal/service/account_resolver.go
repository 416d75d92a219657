package service

import (
	"fmt"
	"strconv"
	"strings"

	"microcredit-gateway/internal/core/domain"
	"microcredit-gateway/pkg/apperror"
)

// AccountResolver implements ports.AccountResolver with a strategy fixed at startup.
type AccountResolver struct {
	strategy domain.ResolutionStrategy
	prefix   string
}

// NewAccountResolver creates a resolver. prefix is stripped from subjects before
// numeric parsing under the id strategy (e.g. "user:42" -> 42).
func NewAccountResolver(strategy domain.ResolutionStrategy, prefix string) (*AccountResolver, error) {
	switch strategy {
	case domain.ResolveByID, domain.ResolveBySubject:
	default:
		return nil, fmt.Errorf("unknown account resolution strategy %q", strategy)
	}
	return &AccountResolver{strategy: strategy, prefix: prefix}, nil
}

// Resolve maps a verified token subject onto an account reference.
func (r *AccountResolver) Resolve(subject string) (domain.AccountRef, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.AccountRef{}, apperror.ErrUserNotResolved()
	}
	if r.strategy == domain.ResolveBySubject {
		return domain.AccountRef{Subject: subject}, nil
	}

	raw := strings.TrimPrefix(subject, r.prefix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return domain.AccountRef{}, apperror.ErrUserNotResolved()
	}
	return domain.AccountRef{ID: id}, nil
}
