package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	healthTimeout = 2 * time.Second
	healthKey     = "mcg:health"
)

// HealthCheck reports whether Redis accepts writes. Nonce recording and rate
// limiting both write, so a reachable read-only replica counts as unhealthy.
type HealthCheck struct {
	client goredis.Cmdable
}

func NewHealthCheck(client goredis.Cmdable) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := h.client.Set(ctx, healthKey, time.Now().Unix(), 10*time.Second).Err(); err != nil {
		return fmt.Errorf("redis write probe: %w", err)
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "redis"
}
