// Package main is the entry point for the anticipation controller daemon.
//
// It subscribes to per-device environment updates over MQTT, re-evaluates
// each device's pre-heating decision on every update and on a periodic tick,
// and publishes the resulting decisions back to the broker. Start and revert
// commands go through the schedule action log in Postgres.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"preheat/internal/config"
	"preheat/internal/controller"
	"preheat/internal/db"
	"preheat/internal/lhs"
	"preheat/internal/mqtt"
	"preheat/internal/prediction"
	"preheat/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("anticipation controller starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"broker", cfg.MQTT.BrokerURL,
		"tick_interval", cfg.Controller.TickInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	calculator := lhs.NewCalculator(cfg.LHS.DefaultSlope)
	slopeRepo := db.NewSlopeRepository(pool, cfg.LHS, calculator, nil)
	scheduleRepo := db.NewScheduleRepository(pool, nil)

	broker, err := mqtt.NewRealClient(cfg.MQTT, logger)
	if err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	defer broker.Close()

	runtime := controller.NewRuntime(
		cfg.Controller,
		cfg.LHS,
		scheduleRepo,
		scheduleRepo,
		slopeRepo,
		calculator,
		prediction.NewService(cfg.Prediction),
		broker,
		nil,
		logger,
	)

	if err := broker.SubscribeEnvironment(func(state types.EnvironmentState) {
		runtime.HandleEnvironment(ctx, state)
	}); err != nil {
		return fmt.Errorf("subscribing to environment updates: %w", err)
	}
	logger.Info("subscribed to environment updates", "prefix", cfg.MQTT.TopicPrefix)

	// Block on the periodic tick loop until a shutdown signal arrives.
	if err := runtime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("tick loop: %w", err)
	}

	logger.Info("anticipation controller stopped")
	return nil
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

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
