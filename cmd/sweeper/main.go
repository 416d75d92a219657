package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"microcredit-gateway/config"
	"microcredit-gateway/internal/app"
	"microcredit-gateway/internal/service"
	"microcredit-gateway/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	interval := flag.Duration("interval", 0, "time between sweeps (default sweeper.interval)")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("MCG_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("microcredit-sweeper", cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Storage.Driver == "memory" {
		log.Fatal().Msg("storage.driver=memory is process-local; run the API's in-process sweeper instead")
	}
	if *interval <= 0 {
		*interval = cfg.Sweeper.Interval
	}
	if *interval <= 0 {
		*interval = 30 * time.Second
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer a.Close()

	sweeper := service.NewSweeper(a.Ledger, a.NoncePurger, a.Clock, cfg.Sweeper.NonceRetention, log)

	if *once {
		res, err := sweeper.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Sweep failed")
			a.Close()
			os.Exit(1)
		}
		log.Info().Int("holds_released", res.HoldsReleased).Int64("nonces_purged", res.NoncesPurged).Msg("Sweep complete")
		return
	}

	log.Info().Dur("interval", *interval).Msg("Sweeper started")
	sweeper.Run(ctx, *interval)
	log.Info().Msg("Sweeper stopped")
}
