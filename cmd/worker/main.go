package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"taxi-dispatch/internal/config"
	"taxi-dispatch/internal/events"
	natspub "taxi-dispatch/internal/events/nats"
	"taxi-dispatch/internal/logger"
	"taxi-dispatch/internal/repo/postgres"
)

// The worker relays outbox events to NATS when the server runs with
// OUTBOX_ENABLED=false and relaying is split into its own process.
func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if !cfg.OutboxEnabled {
		log.Info("outbox disabled; exiting")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := postgres.ApplyMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
			log.Fatalf("migration error: %v", err)
		}
	}

	if cfg.NATSURL == "" {
		log.Fatal("NATS_URL is required for the worker")
	}
	publisher, err := natspub.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer publisher.Close()

	store := postgres.NewStore(pool, cfg.DBLockTimeout)
	worker := &events.OutboxWorker{
		Repo:         store,
		Publisher:    publisher,
		PollInterval: cfg.OutboxInterval,
		BatchSize:    cfg.OutboxBatch,
		Retention:    cfg.OutboxRetention,
		Logger:       log.WithField("component", "outbox"),
	}

	log.WithFields(logrus.Fields{
		"interval":  cfg.OutboxInterval.String(),
		"batch":     cfg.OutboxBatch,
		"retention": cfg.OutboxRetention.String(),
	}).Info("outbox worker running")
	if err := worker.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		log.Fatalf("worker error: %v", err)
	}
}
