// Package app wires configuration into the services shared by the API and sweeper binaries.
package app

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"microcredit-gateway/config"
	"microcredit-gateway/internal/adapter/http/middleware"
	"microcredit-gateway/internal/adapter/keyservice"
	"microcredit-gateway/internal/adapter/storage/memory"
	pgStorage "microcredit-gateway/internal/adapter/storage/postgres"
	redisStorage "microcredit-gateway/internal/adapter/storage/redis"
	"microcredit-gateway/internal/clock"
	"microcredit-gateway/internal/core/domain"
	"microcredit-gateway/internal/core/ports"
	"microcredit-gateway/internal/service"
	"microcredit-gateway/migrations"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const cacheKeyPrefix = "mcg:"

// App holds the wired services. Close releases pools and clients.
type App struct {
	Clock          clock.Clock
	Ledger         *service.LedgerServiceImpl
	Resolver       *service.AccountResolver
	Issuer         *service.EphemeralTokenIssuer
	Verifier       *service.EphemeralTokenVerifier
	HashSvc        ports.HashService
	AuditSvc       ports.AuditService
	NoncePurger    ports.NoncePurger         // nil when nonces expire on their own (redis)
	RateLimitStore middleware.RateLimitStore // nil when rate limiting is off
	HealthCheckers []ports.HealthChecker

	closers []func()
}

// New connects storage and builds every service from cfg.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Clock: clock.NewSystem()}

	var (
		accounts   ports.AccountRepository
		holds      ports.HoldRepository
		entries    ports.LedgerEntryRepository
		transactor ports.DBTransactor
		auditRepo  ports.AuditRepository
		nonces     ports.NonceStore
	)

	var pgNonces *pgStorage.NonceRepo
	switch cfg.Storage.Driver {
	case "postgres":
		iso, err := pgStorage.ParseIsolation(cfg.Database.Isolation)
		if err != nil {
			return nil, err
		}
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		log.Info().Msg("PostgreSQL connected")

		if cfg.Database.AutoMigrate {
			applied, err := migrations.Apply(ctx, pool)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			log.Info().Strs("applied", applied).Msg("Migrations up to date")
		}

		accounts = pgStorage.NewAccountRepo(pool)
		holds = pgStorage.NewHoldRepo(pool)
		entries = pgStorage.NewLedgerEntryRepo(pool)
		transactor = pgStorage.NewTransactor(pool, iso)
		auditRepo = pgStorage.NewAuditRepo(pool)
		pgNonces = pgStorage.NewNonceRepo(pool)
		a.HealthCheckers = append(a.HealthCheckers, pgStorage.NewHealthCheck(pool))
	default:
		log.Warn().Msg("using in-memory storage, balances are lost on restart")
		mem := memory.NewStore()
		accounts, holds, entries, transactor = mem.Accounts(), mem.Holds(), mem.Entries(), mem
		auditRepo = memory.NewAuditRepo()
		a.HealthCheckers = append(a.HealthCheckers, mem)
	}

	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		client, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rdb = client
		a.closers = append(a.closers, func() { _ = client.Close() })
		log.Info().Msg("Redis connected")
		a.HealthCheckers = append(a.HealthCheckers, redisStorage.NewHealthCheck(rdb))
		if cfg.RateLimit.Enabled {
			a.RateLimitStore = redisStorage.NewRateLimitStore(rdb, a.Clock)
		}
	}

	switch cfg.Nonce.Backend {
	case "postgres":
		nonces, a.NoncePurger = pgNonces, pgNonces
	case "redis":
		nonces = redisStorage.NewNonceStore(rdb, a.Clock, cfg.Token.ClockSkew)
	default:
		store := memory.NewNonceStore()
		nonces, a.NoncePurger = store, store
	}

	a.Ledger = service.NewLedgerService(accounts, holds, entries, transactor, a.Clock, service.LedgerOptions{
		DefaultHoldTTL: cfg.Ledger.DefaultHoldTTL,
		MinHoldTTL:     cfg.Ledger.MinHoldTTL,
		MaxHoldTTL:     cfg.Ledger.MaxHoldTTL,
		SweepBatchSize: cfg.Sweeper.BatchSize,
	}, log)

	resolver, err := service.NewAccountResolver(domain.ResolutionStrategy(cfg.Ledger.AccountResolution), cfg.Ledger.SubjectPrefix)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Resolver = resolver

	key, err := issuerKey(cfg.Issuer, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Issuer = service.NewTokenIssuer(key, service.TokenIssuerOptions{
		Address:    cfg.Issuer.Address,
		Network:    cfg.Token.Network,
		DefaultTTL: cfg.Token.DefaultTTL,
		MinTTL:     cfg.Token.MinTTL,
		MaxTTL:     cfg.Token.MaxTTL,
	}, a.Clock, log)

	var source ports.PublicKeySource = a.Issuer
	if cfg.KeyService.URL != "" {
		source = keyservice.NewClient(cfg.KeyService.URL, nil, cfg.KeyService.Timeout, log)
		log.Info().Str("url", cfg.KeyService.URL).Msg("verifying tokens against external key service")
	}
	var cache ports.Cache
	if rdb != nil {
		cache = redisStorage.NewCache(rdb, cacheKeyPrefix)
	}
	keys := service.NewKeyProvider(source, cache, cfg.Token.KeyCacheTTL, a.Clock, log)

	a.Verifier = service.NewTokenVerifier(keys, nonces, a.Clock, service.TokenVerifierOptions{
		ClockSkew:  cfg.Token.ClockSkew,
		PathPrefix: cfg.Token.PathPrefix,
	}, log)

	a.HashSvc = service.NewArgon2HashService()
	a.AuditSvc = service.NewAuditService(auditRepo, log)

	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// issuerKey derives the signing key from the configured seed, or generates a
// throwaway key when none is set.
func issuerKey(cfg config.IssuerConfig, log zerolog.Logger) (ed25519.PrivateKey, error) {
	seed, err := cfg.SeedBytes()
	if err != nil {
		return nil, err
	}
	if seed != nil {
		return ed25519.NewKeyFromSeed(seed), nil
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate issuer key: %w", err)
	}
	log.Warn().Msg("issuer.seed not set, using an ephemeral signing key; tokens will not survive a restart")
	return key, nil
}
