package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"taxi-dispatch/internal/auth"
	"taxi-dispatch/internal/config"
	"taxi-dispatch/internal/events"
	natspub "taxi-dispatch/internal/events/nats"
	"taxi-dispatch/internal/fare"
	"taxi-dispatch/internal/logger"
	"taxi-dispatch/internal/notify"
	"taxi-dispatch/internal/repo/postgres"
	"taxi-dispatch/internal/routing"
	"taxi-dispatch/internal/service"
	"taxi-dispatch/internal/transport/grpcapi"
	"taxi-dispatch/internal/transport/httpapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

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

	store := postgres.NewStore(pool, cfg.DBLockTimeout)

	var routes routing.Provider = routing.NewMapbox(cfg.MapboxToken, cfg.MapboxBaseURL, cfg.RoutingTimeout)
	if cfg.RedisURL != "" {
		redisClient, err := routing.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis error: %v", err)
		}
		defer redisClient.Close()
		routes = routing.NewCachedProvider(routes, redisClient, cfg.RouteCacheTTL, log)
		log.WithField("ttl", cfg.RouteCacheTTL.String()).Info("route cache enabled")
	}

	var notifier service.Notifier = notify.LogOnly{Log: log}
	var telegram *notify.Telegram
	if cfg.TelegramToken != "" {
		telegram = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramBaseURL, cfg.NotifyTimeout, log)
		notifier = telegram
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN not set; notifications are only logged")
	}

	calculator, err := fare.New(cfg.FareStrategy, cfg.FareRates)
	if err != nil {
		log.Fatalf("fare error: %v", err)
	}

	svc := service.New(store, routes, calculator, notifier,
		service.WithHeartbeatWindow(cfg.HeartbeatWindow),
		service.WithLogger(log),
		service.WithCurrency(cfg.Currency),
	)
	defer svc.Close()
	authenticator := auth.New(cfg.JWTSecret, cfg.JWTTTL, auth.WithAdminSecret(cfg.AdminSecret))
	if cfg.AdminSecret == "" {
		log.Warn("ADMIN_SECRET not set; admin tokens cannot be issued")
	}

	var publisher events.Publisher = events.LogPublisher{Log: log}
	if cfg.OutboxEnabled && cfg.NATSURL != "" {
		natsPublisher, err := natspub.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		publisher = natsPublisher
		defer publisher.Close()
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewServer(svc, authenticator, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcapi.NewServer(svc, authenticator, log)
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen error: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("http listening")
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.WithField("addr", cfg.GRPCAddr).Info("grpc listening")
		err := grpcServer.Serve(grpcListener)
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	if cfg.OutboxEnabled {
		worker := &events.OutboxWorker{
			Repo:         store,
			Publisher:    publisher,
			PollInterval: cfg.OutboxInterval,
			BatchSize:    cfg.OutboxBatch,
			Retention:    cfg.OutboxRetention,
			Logger:       log.WithField("component", "outbox"),
		}
		g.Go(func() error {
			log.WithFields(logrus.Fields{
				"interval": cfg.OutboxInterval.String(),
				"batch":    cfg.OutboxBatch,
			}).Info("outbox worker running")
			err := worker.Start(ctx)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server error")
	}
	if telegram != nil {
		telegram.Wait()
	}
	log.Info("shut down")
}
