// Package main is the entry point for the MediScribe credential service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/anomaly"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/config"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/crypto"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/handlers"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/logging"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/metrics"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/provider"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/services"
	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/store"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(os.Stdout, cfg.Security.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting credential service",
		"version", version,
		"env", cfg.Security.Environment,
		"store", cfg.Store.Driver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	sessionStore, closeSessions, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	cipher, err := crypto.NewCipher(cfg.Security.EncryptionSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	providerClient := provider.NewClient(provider.Config{
		Name:               cfg.Provider.Name,
		BaseURL:            cfg.Provider.BaseURL,
		ChatModel:          cfg.Provider.ChatModel,
		TranscriptionModel: cfg.Provider.TranscriptionModel,
		Timeout:            cfg.Provider.Timeout,
		ValidationTimeout:  cfg.Provider.ValidationTimeout,
	}, nil)

	// Initialize services
	sessionService, err := services.NewSessionService(sessionStore, cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return fmt.Errorf("failed to initialize sessions: %w", err)
	}
	credentialService := services.NewCredentialService(st, cipher, providerClient, logger)
	authService := services.NewAuthService(cfg.Auth.URL, cfg.Auth.APIKey, st, nil)
	auditService := services.NewAuditService(logging.Audit(logger))

	monitor := anomaly.NewMonitor(anomalyConfig(cfg.Anomaly), logger, nil)
	auditService.Subscribe(monitor)

	limiters := handlers.NewLimiters(cfg.RateLimit, nil)

	router, err := handlers.NewRouter(&handlers.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Store:       st,
		Sessions:    sessionService,
		Auth:        authService,
		Credentials: credentialService,
		Audit:       auditService,
		Provider:    providerClient,
		Violations:  monitor,
		Limiters:    limiters,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start background tasks
	jobs := []maintenanceJob{
		{name: "anomaly_sweep", run: monitor.Sweep},
		{name: "rate_limit_sweep", run: limiters.Sweep},
	}
	if mem, ok := sessionStore.(*services.MemorySessionStore); ok {
		jobs = append(jobs, maintenanceJob{name: "session_sweep", run: mem.Sweep})
	}
	stopMaintenance, err := startMaintenance(cfg.Security.MaintenanceSchedule, logger, jobs...)
	if err != nil {
		return err
	}
	defer stopMaintenance()

	go metrics.StartCollector(ctx, st, 30*time.Second)

	go func() {
		logger.Info("server listening", "addr", cfg.ServerAddr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore connects the configured credential store. Postgres schemas are
// migrated before the first request.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case "bbolt":
		logger.Info("opening bbolt store", "path", cfg.Store.BoltPath)
		st, err := store.NewBoltStore(cfg.Store.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bbolt store: %w", err)
		}
		return st, nil
	default:
		logger.Info("connecting to PostgreSQL")
		pool, err := store.NewPool(ctx, store.PoolConfig{
			URL:      cfg.Store.DatabaseURL,
			MaxConns: cfg.Store.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := store.RunMigrations(pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("connected to PostgreSQL")
		return store.NewPostgresStore(pool), nil
	}
}

// openSessionStore connects Redis when REDIS_URL is set and otherwise keeps
// sessions in memory, which only suits a single instance.
func openSessionStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.SessionStore, func(), error) {
	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set, security sessions are kept in memory")
		return services.NewMemorySessionStore(), func() {}, nil
	}

	logger.Info("connecting to Redis")
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	logger.Info("connected to Redis")

	return services.NewRedisSessionStore(client), func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}, nil
}

func anomalyConfig(cfg config.AnomalyConfig) anomaly.Config {
	return anomaly.Config{
		ActionWindow:       cfg.ActionWindow,
		ViolationWindow:    cfg.ViolationWindow,
		ViolationThreshold: cfg.ViolationThreshold,
		Thresholds: map[string]int{
			string(services.ActionTestAPIKey):         cfg.KeyTestThreshold,
			anomaly.ActionValidationFailure:           cfg.ValidationThreshold,
			string(services.ActionSaveAPIKey):         cfg.SaveThreshold,
			string(services.ActionTranscribe):         cfg.TranscribeThreshold,
			string(services.ActionProviderCompletion): cfg.CompletionThreshold,
		},
	}
}
