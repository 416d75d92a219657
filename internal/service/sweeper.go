package service

import (
	"context"
	"fmt"
	"time"

	"microcredit-gateway/internal/clock"
	"microcredit-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// SweepResult summarizes one sweeper pass.
type SweepResult struct {
	HoldsReleased int
	NoncesPurged  int64
}

// Sweeper releases expired holds and purges nonces whose tokens can no
// longer verify. Each hold is released in its own transaction by the ledger.
type Sweeper struct {
	ledger    ports.LedgerService
	nonces    ports.NoncePurger // nil when the nonce backend expires keys itself
	clock     clock.Clock
	retention time.Duration
	log       zerolog.Logger
}

// NewSweeper creates a new Sweeper.
func NewSweeper(ledger ports.LedgerService, nonces ports.NoncePurger, clk clock.Clock, retention time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{ledger: ledger, nonces: nonces, clock: clk, retention: retention, log: log}
}

// RunOnce performs a single pass.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	released, err := s.ledger.ReleaseExpired(ctx)
	res.HoldsReleased = released
	if err != nil {
		return res, fmt.Errorf("releasing expired holds: %w", err)
	}

	if s.nonces != nil {
		purged, err := s.nonces.PurgeExpired(ctx, s.clock.Now().Add(-s.retention))
		if err != nil {
			return res, fmt.Errorf("purging nonces: %w", err)
		}
		res.NoncesPurged = purged
	}

	s.log.Info().
		Int("holds_released", res.HoldsReleased).
		Int64("nonces_purged", res.NoncesPurged).
		Msg("sweep complete")
	return res, nil
}

// Run sweeps every interval until ctx is cancelled. A failed pass is logged
// and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("sweep failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
