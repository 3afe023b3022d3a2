// Package main is the entry point for the pre-heating API server.
//
// It initializes the configuration, connects to Postgres and the sensor
// history recorder, builds the HTTP server with the core chassis
// (middleware, routing, health checks), and starts listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"preheat/internal/api/handlers"
	"preheat/internal/config"
	"preheat/internal/core"
	"preheat/internal/cycles"
	"preheat/internal/db"
	"preheat/internal/external"
	"preheat/internal/features"
	"preheat/internal/lhs"
	"preheat/internal/prediction"
	"preheat/internal/training"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("pre-heating API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	calculator := lhs.NewCalculator(cfg.LHS.DefaultSlope)
	slopeRepo := db.NewSlopeRepository(pool, cfg.LHS, calculator, nil)
	modelRepo := db.NewModelRepository(pool, nil)
	cycleRepo := db.NewCycleRepository(pool, cfg.LHS.RetentionDays, nil)

	recorder := external.NewRecorderClient(
		&http.Client{Timeout: cfg.Recorder.Timeout},
		cfg.Recorder,
	)

	orchestrator := training.NewOrchestrator(
		cfg.Training,
		recorder,
		cycles.NewExtractor(cfg.Extractor),
		cycles.NewLabeler(cfg.Labeling),
		features.NewEngineer(cfg.Training.Aggregate),
		cycleRepo,
		slopeRepo,
		modelRepo,
		nil,
		logger,
	)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.RegisterCloser("database", func() error {
		pool.Close()
		return nil
	})
	srv.HealthProbes = []core.HealthProbe{dbProbe{pool: pool}}

	deviceHandler := handlers.NewDeviceHandler(
		orchestrator,
		prediction.NewService(cfg.Prediction),
		calculator,
		slopeRepo,
		modelRepo,
		cfg.LHS,
		srv.Validator,
		nil,
		logger,
	)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		deviceHandler.RegisterRoutes(r)
	})

	srv.MountRoutes()

	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return srv.Shutdown(shutdownCtx)
}

// newPool builds a pgx connection pool with the configured tuning parameters.
func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// dbProbe reports database reachability for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
