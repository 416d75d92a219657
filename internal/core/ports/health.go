package ports

import "context"

//go:generate mockgen -source=health.go -destination=mocks/mock_health.go -package=mocks

// HealthChecker is probed by GET /health. Any error marks the gateway degraded.
type HealthChecker interface {
	Ping(ctx context.Context) error
	// Name keys the dependency in the health report ("postgres", "redis").
	Name() string
}
