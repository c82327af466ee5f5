/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the incentive engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, then environment)
  2. Build zap logger
  3. Open the store (SQLite or PostgreSQL, migrations applied)
  4. Connect the Redis result cache when REDIS_ADDR is set
  5. Create engine, handler, and router
  6. Start the payout scheduler when enabled
  7. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the payout scheduler
  4. Close cache and database connections

EXAMPLES:
  # Run with file database
  DB_PATH=./data/incentive.db ./server

  # In-memory database preloaded with a demo scenario
  DB_PATH=:memory: SEED_DEMO=true LOG_DEVELOPMENT=true ./server

  # PostgreSQL with Redis cache and nightly payouts
  DB_DRIVER=postgres DATABASE_URL=postgres://... REDIS_ADDR=localhost:6379 \
  SCHEDULER_ENABLED=true ./server

SEE ALSO:
  - config/config.go: Every environment variable
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/incentive-engine/api"
	"github.com/warp/incentive-engine/cache"
	"github.com/warp/incentive-engine/config"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/logger"
	"github.com/warp/incentive-engine/store/postgres"
	"github.com/warp/incentive-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeStore.Close()

	opts := []incentive.Option{
		incentive.WithAttachPolicy(cfg.Policy()),
		incentive.WithTimeout(cfg.CalcTimeout),
		incentive.WithLogger(log),
	}
	if cfg.CacheEnabled() {
		rc := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			log.Warn("redis unreachable, results will not be cached until it recovers", zap.Error(err))
		}
		opts = append(opts, incentive.WithCache(rc))
		log.Info("result cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.RedisTTL))
	}
	engine := incentive.NewEngine(store, opts...)

	handler := api.NewHandler(store, engine, log)
	if cfg.SeedDemo {
		if err := handler.LoadScenarioByID(ctx, "fold-bonus"); err != nil {
			log.Warn("failed to seed demo scenario", zap.Error(err))
		}
	}

	handler.Payouts.Enabled = cfg.SchedulerEnabled
	handler.Payouts.Interval = cfg.SchedulerInterval
	handler.Payouts.Start()
	defer handler.Payouts.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, nil),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db_driver", cfg.DBDriver),
			zap.String("attach_policy", cfg.AttachPolicy))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (api.Backend, io.Closer, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL, cfg.DBConnectTimeout, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		s, err := sqlite.New(cfg.DBPath, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}
