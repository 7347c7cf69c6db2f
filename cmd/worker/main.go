// Package main is the entry point for the SafeCircle background worker.
//
// The worker hosts the scheduler: reminder and escalation sweeps, the daily
// streak and milestone batches, the analytics rebuild, the weekly
// reconciliation pass, and the retention sweep. It shares the event bus and
// stats engine wiring with the API so escalations adjust counters the same
// way user commands do.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/safecircle-app/safecircle/config"
	"github.com/safecircle-app/safecircle/internal/application/eventhandler"
	"github.com/safecircle-app/safecircle/internal/application/stats"
	"github.com/safecircle-app/safecircle/internal/domain/analytics"
	"github.com/safecircle-app/safecircle/internal/infrastructure/messaging"
	"github.com/safecircle-app/safecircle/internal/infrastructure/notify"
	"github.com/safecircle-app/safecircle/internal/infrastructure/persistence/postgres"
	"github.com/safecircle-app/safecircle/internal/infrastructure/persistence/redis"
	"github.com/safecircle-app/safecircle/internal/infrastructure/scheduler"
	"github.com/safecircle-app/safecircle/internal/infrastructure/scheduler/jobs"
	"github.com/safecircle-app/safecircle/internal/infrastructure/storage"
	"github.com/safecircle-app/safecircle/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:   cfg.App.LogLevel,
		Format:  logger.Format(cfg.App.LogFormat),
		Service: "safecircle-worker",
	})
	slog.SetDefault(log)

	log.Info("starting SafeCircle worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := connectDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database ready")

	checkinRepo := postgres.NewCheckInRepository(dbConn)
	userRepo := postgres.NewUserRepository(dbConn)
	statsWriter := postgres.NewUserStatsWriter(dbConn)
	bestieRepo := postgres.NewBestieRepository(dbConn)
	interactionRepo := postgres.NewInteractionRepository(dbConn)
	milestoneRepo := postgres.NewMilestoneRepository(dbConn)
	analyticsRepo := postgres.NewAnalyticsRepository(dbConn)
	ledger := postgres.NewTransitionLedger(dbConn)
	cursors := postgres.NewCursorStore(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional accelerator)
	// ─────────────────────────────────────────────────────────────────────────
	var analyticsCache analytics.Cache
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, analytics cache disabled", "error", err)
		} else {
			defer cache.Close()
			analyticsCache = redis.NewAnalyticsCache(cache)
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Object storage (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var photos jobs.ObjectRemover
	if !cfg.Storage.Disabled {
		store, err := storage.NewPhotoStore(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		}, log)
		if err != nil {
			log.Warn("object storage unavailable, photo cleanup disabled", "error", err)
		} else {
			photos = store
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Event bus, engine, push gateway
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer bus.Close()

	gateway := notify.NewGateway(notify.Config{
		BaseURL:          cfg.Gateway.BaseURL,
		APIKey:           cfg.Gateway.APIKey,
		RequestTimeout:   cfg.Gateway.RequestTimeout,
		MaxAttempts:      cfg.Gateway.MaxAttempts,
		FailureThreshold: cfg.Gateway.FailureThreshold,
		BreakerTimeout:   cfg.Gateway.BreakerTimeout,
	}, userRepo, log)

	engine := stats.NewEngine(userRepo, statsWriter, checkinRepo, bestieRepo, analyticsRepo, ledger, log)

	checkinHandler := eventhandler.NewOnCheckInTransitionHandler(engine, log)
	bestieHandler := eventhandler.NewOnBestieChangedHandler(engine, gateway, log)
	for _, t := range checkinHandler.EventTypes() {
		if err := bus.Subscribe(t, checkinHandler.Handle); err != nil {
			return fmt.Errorf("failed to subscribe handler: %w", err)
		}
	}
	for _, t := range bestieHandler.EventTypes() {
		if err := bus.Subscribe(t, bestieHandler.Handle); err != nil {
			return fmt.Errorf("failed to subscribe handler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Jobs and scheduler
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:        log,
		EnableMetrics: true,
	})
	if err := registerJobs(sched, cfg, jobDeps{
		checkins:     checkinRepo,
		users:        userRepo,
		besties:      bestieRepo,
		interactions: interactionRepo,
		milestones:   milestoneRepo,
		engine:       engine,
		cursors:      cursors,
		cache:        analyticsCache,
		photos:       photos,
		sender:       gateway,
		publisher:    bus,
		logger:       log,
	}); err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("scheduler running", "jobs", len(sched.ListJobs()))

	<-ctx.Done()
	log.Info("shutdown signal received")

	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop", "error", err)
	}
	log.Info("worker stopped")
	return nil
}

// connectDatabase prefers DATABASE_URL and falls back to discrete settings.
func connectDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	if cfg.Database.URL != "" {
		return postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	}
	return postgres.NewConnection(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
}
