// Package main is the entry point for the SafeCircle API server.
//
// The API carries the check-in and bestie lifecycle commands, the read
// endpoints, and the admin surface. Background sweeps run in the worker
// process; the API registers the same job set without starting the
// scheduler so admins can trigger any job on demand.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/safecircle-app/safecircle/config"
	"github.com/safecircle-app/safecircle/internal/application/command"
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
	httpserver "github.com/safecircle-app/safecircle/internal/interface/http"
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
		Service: "safecircle-api",
	})
	slog.SetDefault(log)

	log.Info("starting SafeCircle API",
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
	var redisCache *redis.Cache
	var analyticsCache analytics.Cache
	if !cfg.Redis.Disabled {
		redisCache, err = redis.NewCache(redis.Config{
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
			redisCache = nil
		} else {
			defer redisCache.Close()
			analyticsCache = redis.NewAnalyticsCache(redisCache)
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Object storage (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var photoStore *storage.PhotoStore
	if !cfg.Storage.Disabled {
		store, err := storage.NewPhotoStore(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		}, log)
		if err != nil {
			log.Warn("object storage unavailable, photo upload and cleanup disabled", "error", err)
		} else {
			photoStore = store
		}
	}
	var photos jobs.ObjectRemover
	if photoStore != nil {
		photos = photoStore
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

	checkinEvents := eventhandler.NewOnCheckInTransitionHandler(engine, log)
	bestieEvents := eventhandler.NewOnBestieChangedHandler(engine, gateway, log)
	for _, t := range checkinEvents.EventTypes() {
		if err := bus.Subscribe(t, checkinEvents.Handle); err != nil {
			return fmt.Errorf("failed to subscribe handler: %w", err)
		}
	}
	for _, t := range bestieEvents.EventTypes() {
		if err := bus.Subscribe(t, bestieEvents.Handle); err != nil {
			return fmt.Errorf("failed to subscribe handler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Command handlers
	// ─────────────────────────────────────────────────────────────────────────
	registerUser := command.NewRegisterUserHandler(userRepo, engine, log)
	createCheckIn := command.NewCreateCheckInHandler(checkinRepo, bus, log)
	completeCheckIn := command.NewCompleteCheckInHandler(checkinRepo, bus, log)
	falseAlarm := command.NewFalseAlarmHandler(checkinRepo, gateway, bus, log)
	besties := command.NewBestieHandler(bestieRepo, userRepo, gateway, bus, log)
	recordInteraction := command.NewRecordInteractionHandler(interactionRepo, bus, log)

	// ─────────────────────────────────────────────────────────────────────────
	// Scheduler (registered, not started - admin RunNow only)
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: log})
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

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.AdminTokenHash = cfg.HTTP.AdminTokenHash

	deps := httpserver.Dependencies{
		RegisterUser:      registerUser,
		CreateCheckIn:     createCheckIn,
		CompleteCheckIn:   completeCheckIn,
		FalseAlarm:        falseAlarm,
		Besties:           besties,
		RecordInteraction: recordInteraction,
		Users:             userRepo,
		Milestones:        milestoneRepo,
		Analytics:         analyticsRepo,
		Cache:             analyticsCache,
		Engine:            engine,
		Scheduler:         sched,
		DB:                dbConn,
		Logger:            log,
	}
	if redisCache != nil {
		deps.Redis = redisCache
	}
	if photoStore != nil {
		deps.Photos = photoStore
	}

	server := httpserver.NewServer(serverCfg, deps)
	errCh := server.StartAsync()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("API stopped")
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
