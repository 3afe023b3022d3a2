package training

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"preheat/internal/config"
	"preheat/internal/cycles"
	"preheat/internal/features"
	"preheat/internal/lhs"
	"preheat/internal/regressor"
	"preheat/internal/storage"
	"preheat/internal/types"
)

const testDevice = "thermostat-livingroom"

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

type fakeHistory struct {
	states    []types.StateSample
	signals   map[types.Signal][]types.SamplePoint
	stateErr  error
	signalErr map[types.Signal]error
}

func (f *fakeHistory) GetStateHistory(_ context.Context, _ string, _, _ time.Time) ([]types.StateSample, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	return f.states, nil
}

func (f *fakeHistory) GetSignalHistory(_ context.Context, _ string, signal types.Signal, _, _ time.Time) ([]types.SamplePoint, error) {
	if err := f.signalErr[signal]; err != nil {
		return nil, err
	}
	return f.signals[signal], nil
}

func ptr(v float64) *float64 { return &v }

// appendCycle appends one complete heating cycle to the state stream: the
// room starts durationMinutes' worth of heating at `start` and finishes 0.2
// under target, which closes the cycle via the end hysteresis threshold.
func appendCycle(states []types.StateSample, start time.Time, initial, target float64, durationMinutes int) []types.StateSample {
	final := target - 0.2
	mid := initial + (final-initial)/2
	return append(states,
		types.StateSample{Timestamp: start, Mode: types.HVACModeHeat, CurrentTemp: ptr(initial), TargetTemp: ptr(target)},
		types.StateSample{Timestamp: start.Add(time.Duration(durationMinutes) * time.Minute / 2), Mode: types.HVACModeHeat, CurrentTemp: ptr(mid), TargetTemp: ptr(target)},
		types.StateSample{Timestamp: start.Add(time.Duration(durationMinutes) * time.Minute), Mode: types.HVACModeHeat, CurrentTemp: ptr(final), TargetTemp: ptr(target)},
	)
}

// buildHistory synthesizes n complete cycles inside the training window,
// with a humidity sample at each cycle start so the snapshot features pick
// it up.
func buildHistory(now time.Time, n int) *fakeHistory {
	var states []types.StateSample
	var humidity []types.SamplePoint

	base := now.AddDate(0, 0, -20)
	for i := 0; i < n; i++ {
		start := base.Add(time.Duration(i) * 6 * time.Hour)
		initial := 17.5 + 0.05*float64(i)
		states = appendCycle(states, start, initial, 20.0, 30+2*i)
		humidity = append(humidity, types.SamplePoint{Timestamp: start, Value: 55.0 + float64(i)})
	}

	return &fakeHistory{
		states:  states,
		signals: map[types.Signal][]types.SamplePoint{types.SignalHumidity: humidity},
	}
}

type fixture struct {
	orchestrator *Orchestrator
	history      *fakeHistory
	slopeStore   *storage.SlopeStore
	modelStore   *storage.ModelStore
	cycleStore   *storage.CycleStore
	clock        fakeClock
}

func newFixture(t *testing.T, history *fakeHistory, cfg config.TrainingConfig) *fixture {
	t.Helper()

	clock := fakeClock{now: time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)}
	lhsCfg := config.LHSConfig{DefaultSlope: 2.0, WindowHours: 2.0, RetentionDays: 30, MaxEntries: 100}

	slopeStore := storage.NewSlopeStore(lhsCfg, lhs.NewCalculator(lhsCfg.DefaultSlope), clock)
	modelStore := storage.NewModelStore()
	cycleStore := storage.NewCycleStore(lhsCfg.RetentionDays, clock)

	extractor := cycles.NewExtractor(config.ExtractorConfig{
		ThresholdStart:       0.3,
		ThresholdEnd:         0.25,
		MinCycleDuration:     5 * time.Minute,
		SideChannelTolerance: time.Minute,
	})
	labeler := cycles.NewLabeler(config.LabelingConfig{
		Strategy:           types.LabelActualDuration,
		MinDurationMinutes: 5,
		MaxDurationMinutes: 360,
		MinTempIncrease:    0.1,
		MaxErrorMinutes:    120,
	})

	return &fixture{
		orchestrator: NewOrchestrator(
			cfg, history, extractor, labeler,
			features.NewEngineer(types.AggregateAvg),
			cycleStore, slopeStore, modelStore,
			clock, nil,
		),
		history:    history,
		slopeStore: slopeStore,
		modelStore: modelStore,
		cycleStore: cycleStore,
		clock:      clock,
	}
}

func defaultTrainingConfig() config.TrainingConfig {
	return config.TrainingConfig{
		HistoryDays:      30,
		MinCycles:        10,
		MinExamples:      3,
		Backend:          types.BackendGBRT,
		FetchConcurrency: 4,
	}
}

// TestTrainHappyPath runs the full pipeline over twelve synthetic cycles and
// checks the report, the persisted model, and the side effects on the slope
// and cycle stores.
func TestTrainHappyPath(t *testing.T) {
	clock := fakeClock{now: time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)}
	f := newFixture(t, buildHistory(clock.now, 12), defaultTrainingConfig())

	report, err := f.orchestrator.Train(context.Background(), testDevice)
	require.NoError(t, err)

	assert.Equal(t, testDevice, report.DeviceID)
	assert.Equal(t, types.BackendGBRT, report.Backend)
	assert.Equal(t, 12, report.CyclesExtracted)
	assert.Equal(t, 12, report.CyclesValid)
	assert.Equal(t, 12, report.ExamplesUsed)
	assert.Equal(t, 12, report.Metrics.NSamples)
	assert.Equal(t, f.clock.now, report.TrainedAt)

	// The persisted payload must round-trip through the regressor codec and
	// produce a finite estimate for a cycle-start feature vector.
	payload, meta, err := f.modelStore.LoadModel(context.Background(), testDevice)
	require.NoError(t, err)
	assert.Equal(t, types.BackendGBRT, meta.Backend)
	assert.Equal(t, types.CycleFeatures{}.FeatureNames(), meta.FeatureNames)
	assert.Len(t, meta.FeatureImportance, len(meta.FeatureNames))

	restored, err := regressor.Deserialize(payload)
	require.NoError(t, err)
	got, err := restored.Predict(types.CycleFeatures{CurrentTemp: 18.0, TargetTemp: 20.0, TempDelta: 2.0, Humidity: ptr(58.0)}.Vector())
	require.NoError(t, err)
	assert.Greater(t, got, 0.0)

	// Every cycle contributed one observed slope and one cached cycle.
	slopes, err := f.slopeStore.GetAllSlopeData(context.Background(), testDevice)
	require.NoError(t, err)
	assert.Len(t, slopes, 12)

	cache, err := f.cycleStore.LoadCycleCache(context.Background(), testDevice)
	require.NoError(t, err)
	assert.Len(t, cache.Cycles, 12)
}

// TestTrainIsIdempotentOverSameWindow verifies re-training over the same
// history does not duplicate cached cycles.
func TestTrainIsIdempotentOverSameWindow(t *testing.T) {
	clock := fakeClock{now: time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)}
	f := newFixture(t, buildHistory(clock.now, 12), defaultTrainingConfig())

	_, err := f.orchestrator.Train(context.Background(), testDevice)
	require.NoError(t, err)
	_, err = f.orchestrator.Train(context.Background(), testDevice)
	require.NoError(t, err)

	cache, err := f.cycleStore.LoadCycleCache(context.Background(), testDevice)
	require.NoError(t, err)
	assert.Len(t, cache.Cycles, 12)
}

// TestTrainInsufficientCycles verifies the counts are surfaced in the error
// details and that the cycle cache and slope history were still refreshed.
func TestTrainInsufficientCycles(t *testing.T) {
	clock := fakeClock{now: time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)}
	f := newFixture(t, buildHistory(clock.now, 4), defaultTrainingConfig())

	_, err := f.orchestrator.Train(context.Background(), testDevice)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInsufficientCycles, appErr.Code)
	assert.Equal(t, 4, appErr.Details["extracted"])
	assert.Equal(t, 4, appErr.Details["valid"])
	assert.Equal(t, 10, appErr.Details["required"])

	// Partial learning still happened: the extracted cycles were cached and
	// their slopes recorded even though no model was trained.
	cache, err := f.cycleStore.LoadCycleCache(context.Background(), testDevice)
	require.NoError(t, err)
	assert.Len(t, cache.Cycles, 4)

	slopes, err := f.slopeStore.GetAllSlopeData(context.Background(), testDevice)
	require.NoError(t, err)
	assert.Len(t, slopes, 4)

	exists, err := f.modelStore.ModelExists(context.Background(), testDevice)
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestTrainInsufficientExamples verifies the example floor fires when the
// cycle floor is configured lower than it.
func TestTrainInsufficientExamples(t *testing.T) {
	cfg := defaultTrainingConfig()
	cfg.MinCycles = 1
	cfg.MinExamples = 3

	clock := fakeClock{now: time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)}
	f := newFixture(t, buildHistory(clock.now, 2), cfg)

	_, err := f.orchestrator.Train(context.Background(), testDevice)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInsufficientExamples, appErr.Code)
	assert.Equal(t, 2, appErr.Details["examples"])
	assert.Equal(t, 3, appErr.Details["required"])
}

// TestTrainStateHistoryError verifies a failed state fetch aborts the run.
func TestTrainStateHistoryError(t *testing.T) {
	boom := errors.New("recorder unavailable")
	f := newFixture(t, &fakeHistory{stateErr: boom}, defaultTrainingConfig())

	_, err := f.orchestrator.Train(context.Background(), testDevice)
	require.ErrorIs(t, err, boom)
}

// TestTrainSignalFetchError verifies a failure in any fanned-out signal
// fetch aborts the run with the failing signal named.
func TestTrainSignalFetchError(t *testing.T) {
	clock := fakeClock{now: time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)}
	history := buildHistory(clock.now, 12)
	history.signalErr = map[types.Signal]error{
		types.SignalCloudCoverage: errors.New("series not recorded"),
	}
	f := newFixture(t, history, defaultTrainingConfig())

	_, err := f.orchestrator.Train(context.Background(), testDevice)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloud_coverage")
}

// TestTrainLinearBackend verifies backend selection flows through to the
// persisted metadata.
func TestTrainLinearBackend(t *testing.T) {
	cfg := defaultTrainingConfig()
	cfg.Backend = types.BackendLinear

	clock := fakeClock{now: time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)}
	f := newFixture(t, buildHistory(clock.now, 12), cfg)

	report, err := f.orchestrator.Train(context.Background(), testDevice)
	require.NoError(t, err)
	assert.Equal(t, types.BackendLinear, report.Backend)

	meta, err := f.modelStore.GetModelMetadata(context.Background(), testDevice)
	require.NoError(t, err)
	assert.Equal(t, types.BackendLinear, meta.Backend)
}
