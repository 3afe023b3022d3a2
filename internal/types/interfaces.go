package types

import (
	"context"
	"time"
)

// HistoricalDataReader reads recorded sensor history for a device. Both
// reads return samples sorted ascending by timestamp.
type HistoricalDataReader interface {
	// GetStateHistory returns thermostat state samples in [from, to).
	GetStateHistory(ctx context.Context, deviceID string, from, to time.Time) ([]StateSample, error)

	// GetSignalHistory returns one sensor series in [from, to).
	GetSignalHistory(ctx context.Context, deviceID string, signal Signal, from, to time.Time) ([]SamplePoint, error)
}

// SlopeStorage persists learned heating slope observations per device.
// Implementations enforce the retention window and entry cap and keep the
// cached scalar LHS current on every save.
type SlopeStorage interface {
	SaveSlopeData(ctx context.Context, deviceID string, data SlopeData) error
	GetAllSlopeData(ctx context.Context, deviceID string) ([]SlopeData, error)
	GetSlopesInTimeWindow(ctx context.Context, deviceID string, from, to time.Time) ([]SlopeData, error)

	// GetLearnedHeatingSlope returns the cached robust average slope,
	// or the neutral default when no history exists.
	GetLearnedHeatingSlope(ctx context.Context, deviceID string) (float64, error)

	ClearSlopeHistory(ctx context.Context, deviceID string) error
}

// ModelStorage persists serialized trained models and their metadata.
type ModelStorage interface {
	SaveModel(ctx context.Context, deviceID string, payload []byte, meta ModelMetadata) error

	// LoadModel returns the serialized payload and its metadata, or an
	// AppError with ErrCodeNotFoundModel when no model was trained.
	LoadModel(ctx context.Context, deviceID string) ([]byte, ModelMetadata, error)

	ModelExists(ctx context.Context, deviceID string) (bool, error)
	GetModelMetadata(ctx context.Context, deviceID string) (ModelMetadata, error)
}

// CycleStorage persists the extracted heating cycle cache per device.
type CycleStorage interface {
	SaveCycleCache(ctx context.Context, cache CycleCacheData) error

	// LoadCycleCache returns the stored cache, or a fresh empty cache
	// when none exists yet.
	LoadCycleCache(ctx context.Context, deviceID string) (CycleCacheData, error)
}

// SchedulerReader reads the external heating schedule.
type SchedulerReader interface {
	// GetNextTimeslot returns the next scheduled slot strictly after the
	// given instant. A nil slot with a nil error means none is scheduled,
	// which is a normal outcome.
	GetNextTimeslot(ctx context.Context, deviceID string, after time.Time) (*ScheduleSlot, error)
}

// SchedulerCommander is the single side-effect channel of the anticipation
// controller. Starting and reverting pre-heating are expressed only through
// these two calls.
type SchedulerCommander interface {
	RunAction(ctx context.Context, deviceID string, slot ScheduleSlot) error
	CancelAction(ctx context.Context, deviceID string, slotID string) error
}

// Regressor is a backend-polymorphic regression model mapping feature
// vectors to heating duration in minutes.
type Regressor interface {
	// Fit trains on row-major inputs X and targets y, returning fit
	// metrics computed over the training set.
	Fit(x [][]float64, y []float64) (TrainingMetrics, error)

	// Predict returns the estimated duration for one feature vector.
	Predict(features []float64) (float64, error)

	// Backend identifies the implementation for serialized payloads.
	Backend() RegressorBackend

	// FeatureImportance returns per-column importance scores keyed by
	// feature name, or nil when the backend does not support it.
	FeatureImportance(featureNames []string) map[string]float64

	Serialize() ([]byte, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the module.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
