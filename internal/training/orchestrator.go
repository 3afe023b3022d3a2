// Package training coordinates the batch learning pipeline: sensor history
// in, trained model plus refreshed slope statistics out.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"preheat/internal/config"
	"preheat/internal/cycles"
	"preheat/internal/features"
	"preheat/internal/regressor"
	"preheat/internal/types"
)

// sideSignals are the companion series fetched alongside the state history.
var sideSignals = []types.Signal{
	types.SignalSlope,
	types.SignalHumidity,
	types.SignalOutdoorTemp,
	types.SignalOutdoorHumidity,
	types.SignalCloudCoverage,
}

// Orchestrator runs one end-to-end training pass for a device:
// history → cycles → features/labels → regression → persisted model.
// Orchestrators run as low-frequency batch jobs; concurrent trainings for
// the same device are the caller's responsibility to avoid.
type Orchestrator struct {
	cfg        config.TrainingConfig
	history    types.HistoricalDataReader
	extractor  *cycles.Extractor
	labeler    *cycles.Labeler
	engineer   *features.Engineer
	cycleStore types.CycleStorage
	slopeStore types.SlopeStorage
	modelStore types.ModelStorage
	clock      types.Clock
	logger     *slog.Logger
}

// NewOrchestrator wires the training pipeline.
func NewOrchestrator(
	cfg config.TrainingConfig,
	history types.HistoricalDataReader,
	extractor *cycles.Extractor,
	labeler *cycles.Labeler,
	engineer *features.Engineer,
	cycleStore types.CycleStorage,
	slopeStore types.SlopeStorage,
	modelStore types.ModelStorage,
	clock types.Clock,
	logger *slog.Logger,
) *Orchestrator {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		history:    history,
		extractor:  extractor,
		labeler:    labeler,
		engineer:   engineer,
		cycleStore: cycleStore,
		slopeStore: slopeStore,
		modelStore: modelStore,
		clock:      clock,
		logger:     logger,
	}
}

// Train runs the full pipeline for one device and persists the result.
// It reports both extracted and valid cycle counts; insufficient data is an
// error carrying those counts so callers can surface them.
func (o *Orchestrator) Train(ctx context.Context, deviceID string) (types.TrainingReport, error) {
	now := o.clock.Now()
	from := now.AddDate(0, 0, -o.cfg.HistoryDays)

	states, side, err := o.fetchHistory(ctx, deviceID, from, now)
	if err != nil {
		return types.TrainingReport{}, err
	}

	extracted, err := o.extractor.Extract(deviceID, states, side)
	if err != nil {
		return types.TrainingReport{}, fmt.Errorf("extract heating cycles: %w", err)
	}
	o.logger.InfoContext(ctx, "heating cycles extracted",
		"device_id", deviceID,
		"cycles", len(extracted),
		"window_days", o.cfg.HistoryDays,
	)

	if err := o.refreshCycleCache(ctx, deviceID, extracted, now); err != nil {
		return types.TrainingReport{}, err
	}
	if err := o.recordObservedSlopes(ctx, deviceID, extracted); err != nil {
		return types.TrainingReport{}, err
	}

	examples, valid := o.buildExamples(extracted)

	if valid < o.cfg.MinCycles {
		return types.TrainingReport{}, types.NewAppErrorWithDetails(
			types.ErrCodeInsufficientCycles,
			"not enough valid heating cycles to train",
			nil,
			map[string]any{"extracted": len(extracted), "valid": valid, "required": o.cfg.MinCycles},
		)
	}
	if len(examples) < o.cfg.MinExamples {
		return types.TrainingReport{}, types.NewAppErrorWithDetails(
			types.ErrCodeInsufficientExamples,
			"not enough training examples to train",
			nil,
			map[string]any{"examples": len(examples), "required": o.cfg.MinExamples},
		)
	}

	model, metrics, err := o.fit(examples)
	if err != nil {
		return types.TrainingReport{}, err
	}

	featureNames := examples[0].Features.FeatureNames()
	meta := types.ModelMetadata{
		DeviceID:          deviceID,
		Backend:           model.Backend(),
		TrainedAt:         now,
		Metrics:           metrics,
		FeatureNames:      featureNames,
		FeatureImportance: model.FeatureImportance(featureNames),
	}

	payload, err := model.Serialize()
	if err != nil {
		return types.TrainingReport{}, fmt.Errorf("serialize trained model: %w", err)
	}
	if err := o.modelStore.SaveModel(ctx, deviceID, payload, meta); err != nil {
		return types.TrainingReport{}, fmt.Errorf("persist trained model: %w", err)
	}

	o.logger.InfoContext(ctx, "model trained",
		"device_id", deviceID,
		"backend", string(model.Backend()),
		"examples", len(examples),
		"rmse", metrics.RMSE,
		"mae", metrics.MAE,
	)

	return types.TrainingReport{
		DeviceID:        deviceID,
		Backend:         model.Backend(),
		CyclesExtracted: len(extracted),
		CyclesValid:     valid,
		ExamplesUsed:    len(examples),
		Metrics:         metrics,
		TrainedAt:       now,
	}, nil
}

// fetchHistory loads the state stream and fans out the companion signal
// fetches with bounded concurrency.
func (o *Orchestrator) fetchHistory(ctx context.Context, deviceID string, from, to time.Time) ([]types.StateSample, cycles.SideChannels, error) {
	states, err := o.history.GetStateHistory(ctx, deviceID, from, to)
	if err != nil {
		return nil, cycles.SideChannels{}, fmt.Errorf("fetch state history: %w", err)
	}

	var (
		mu     sync.Mutex
		series = make(map[types.Signal][]types.SamplePoint, len(sideSignals))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.FetchConcurrency)
	for _, signal := range sideSignals {
		signal := signal
		g.Go(func() error {
			samples, err := o.history.GetSignalHistory(gctx, deviceID, signal, from, to)
			if err != nil {
				return fmt.Errorf("fetch %s history: %w", signal, err)
			}
			mu.Lock()
			series[signal] = samples
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, cycles.SideChannels{}, err
	}

	return states, cycles.SideChannels{
		Slope:           series[types.SignalSlope],
		Humidity:        series[types.SignalHumidity],
		OutdoorTemp:     series[types.SignalOutdoorTemp],
		OutdoorHumidity: series[types.SignalOutdoorHumidity],
		CloudCoverage:   series[types.SignalCloudCoverage],
	}, nil
}

// refreshCycleCache merges the freshly extracted cycles into the stored
// cache, deduplicating against previous runs and pruning expired entries.
func (o *Orchestrator) refreshCycleCache(ctx context.Context, deviceID string, extracted []types.HeatingCycle, now time.Time) error {
	cache, err := o.cycleStore.LoadCycleCache(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("load cycle cache: %w", err)
	}
	cache = cache.WithCycles(extracted, now).Pruned(now)
	if err := o.cycleStore.SaveCycleCache(ctx, cache); err != nil {
		return fmt.Errorf("save cycle cache: %w", err)
	}
	return nil
}

// recordObservedSlopes feeds each cycle's realized heating rate into slope
// storage so the LHS keeps learning from every training pass.
func (o *Orchestrator) recordObservedSlopes(ctx context.Context, deviceID string, extracted []types.HeatingCycle) error {
	for _, c := range extracted {
		hours := c.Duration.Hours()
		if hours <= 0 {
			continue
		}
		observed := c.TempIncrease() / hours
		data, err := types.NewSlopeData(observed, c.EndTime)
		if err != nil {
			// Non-positive slopes (the room cooled during the cycle)
			// carry no learning signal.
			continue
		}
		if err := o.slopeStore.SaveSlopeData(ctx, deviceID, data); err != nil {
			return fmt.Errorf("save observed slope: %w", err)
		}
	}
	return nil
}

// buildExamples labels each cycle and pairs valid ones with their
// cycle-start features. Returns the examples and the valid-cycle count.
func (o *Orchestrator) buildExamples(extracted []types.HeatingCycle) ([]types.TrainingExample, int) {
	examples := make([]types.TrainingExample, 0, len(extracted))
	for _, c := range extracted {
		label, ok := o.labeler.Label(c)
		if !ok {
			continue
		}
		example, err := types.NewTrainingExample(o.engineer.CycleStartFeatures(c), label, c.ID)
		if err != nil {
			continue
		}
		examples = append(examples, example)
	}
	return examples, len(examples)
}

// fit trains the configured backend on the examples.
func (o *Orchestrator) fit(examples []types.TrainingExample) (types.Regressor, types.TrainingMetrics, error) {
	model, err := regressor.New(o.cfg.Backend)
	if err != nil {
		return nil, types.TrainingMetrics{}, err
	}

	x := make([][]float64, len(examples))
	y := make([]float64, len(examples))
	for i, ex := range examples {
		x[i] = ex.Features.Vector()
		y[i] = ex.TargetMinutes
	}

	metrics, err := model.Fit(x, y)
	if err != nil {
		return nil, types.TrainingMetrics{}, fmt.Errorf("fit %s model: %w", o.cfg.Backend, err)
	}
	return model, metrics, nil
}
