package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"microcredit-gateway/config"
	apidocs "microcredit-gateway/docs/api"
	httpHandler "microcredit-gateway/internal/adapter/http/handler"
	"microcredit-gateway/internal/app"
	"microcredit-gateway/internal/service"
	"microcredit-gateway/pkg/logger"
)

func main() {
	// `api hash-api-key <key>` prints the argon2id hash for admin.api_key_hash.
	if len(os.Args) == 3 && os.Args[1] == "hash-api-key" {
		hash, err := service.NewArgon2HashService().Hash(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Load configuration
	cfg, err := config.Load(os.Getenv("MCG_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("microcredit-api", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("nonce_backend", cfg.Nonce.Backend).
		Msg("Starting MicroCredit Gateway")

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer a.Close()

	if cfg.Admin.APIKeyHash == "" {
		log.Warn().Msg("admin.api_key_hash not set, token issuance and admin routes will reject every request")
	}
	log.Info().Str("address", a.Issuer.Address()).Msg("Token issuer ready")

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Ledger:         a.Ledger,
		Resolver:       a.Resolver,
		Issuer:         a.Issuer,
		Verifier:       a.Verifier,
		HashSvc:        a.HashSvc,
		APIKeyHash:     cfg.Admin.APIKeyHash,
		AltTokenHeader: cfg.Token.AltHeader,
		RateLimitStore: a.RateLimitStore,
		HealthCheckers: a.HealthCheckers,
		AuditSvc:       a.AuditSvc,
		MaxBodySize:    cfg.Server.MaxBodySize,
		OpenAPISpec:    apidocs.OpenAPI,
		Logger:         log,
	})

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	if cfg.Sweeper.Interval > 0 {
		sweeper := service.NewSweeper(a.Ledger, a.NoncePurger, a.Clock, cfg.Sweeper.NonceRetention, log)
		go sweeper.Run(sweepCtx, cfg.Sweeper.Interval)
		log.Info().Dur("interval", cfg.Sweeper.Interval).Msg("In-process sweeper started")
	}

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
