// Command sweeper runs one expiry pass over unpaid appointments and exits.
// It is meant to be driven by cron or a container scheduler; the same pass is
// also reachable through the API's task endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cismedic/clinic-booking/internal/clinic"
	"github.com/cismedic/clinic-booking/internal/config"
	"github.com/cismedic/clinic-booking/internal/db"
	"github.com/cismedic/clinic-booking/internal/notify"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sweeper").Logger()
	log.Info().Msg("sweeper starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	repo := clinic.NewPgRepository(pgPool)
	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, log)
	sweeper := clinic.NewSweeper(repo, mailer, cfg.PaymentTimeout, log)

	runCtx, cancel := context.WithTimeout(rootCtx, 60*time.Second)
	defer cancel()

	start := time.Now()
	res, err := sweeper.Run(runCtx)
	if err != nil {
		log.Fatal().Err(err).Msg("sweep run error")
	}
	log.Info().Int("scanned", res.Scanned).Int("deleted", res.Deleted).
		Int("failed", res.Failed).Dur("elapsed", time.Since(start)).Msg("sweep run complete")

	if res.Failed > 0 {
		os.Exit(1)
	}
}
