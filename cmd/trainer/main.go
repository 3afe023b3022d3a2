// Package main is the entry point for the batch trainer.
//
// It runs one end-to-end training pass per device and exits: fetch recorded
// history, reconstruct heating cycles, build training examples, fit the
// regressor, and persist the model. Intended to be invoked from cron or a
// scheduled job runner.
//
// Usage:
//
//	trainer -devices livingroom,bedroom [-concurrency 2]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"preheat/internal/config"
	"preheat/internal/cycles"
	"preheat/internal/db"
	"preheat/internal/external"
	"preheat/internal/features"
	"preheat/internal/lhs"
	"preheat/internal/training"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		devicesFlag     = flag.String("devices", "", "comma-separated device IDs to train")
		concurrencyFlag = flag.Int("concurrency", 1, "devices trained in parallel")
	)
	flag.Parse()

	devices := splitDevices(*devicesFlag)
	if len(devices) == 0 {
		return fmt.Errorf("no devices given: pass -devices dev1,dev2")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("batch trainer starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"devices", devices,
		"backend", cfg.Training.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	calculator := lhs.NewCalculator(cfg.LHS.DefaultSlope)
	orchestrator := training.NewOrchestrator(
		cfg.Training,
		external.NewRecorderClient(&http.Client{Timeout: cfg.Recorder.Timeout}, cfg.Recorder),
		cycles.NewExtractor(cfg.Extractor),
		cycles.NewLabeler(cfg.Labeling),
		features.NewEngineer(cfg.Training.Aggregate),
		db.NewCycleRepository(pool, cfg.LHS.RetentionDays, nil),
		db.NewSlopeRepository(pool, cfg.LHS, calculator, nil),
		db.NewModelRepository(pool, nil),
		nil,
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrencyFlag)

	for _, deviceID := range devices {
		deviceID := deviceID
		g.Go(func() error {
			report, err := orchestrator.Train(gctx, deviceID)
			if err != nil {
				logger.Error("training failed", "device_id", deviceID, "error", err)
				return fmt.Errorf("training %s: %w", deviceID, err)
			}
			logger.Info("training completed",
				"device_id", deviceID,
				"backend", report.Backend,
				"cycles_extracted", report.CyclesExtracted,
				"cycles_valid", report.CyclesValid,
				"examples_used", report.ExamplesUsed,
				"mae_minutes", report.Metrics.MAE,
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("batch trainer finished", "devices", len(devices))
	return nil
}

func splitDevices(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
