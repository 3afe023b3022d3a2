package types

import (
	"time"

	"github.com/google/uuid"
)

// SlopeData is a single timestamped heating-rate observation (°C/hour).
// Instances are immutable; construct via NewSlopeData, which enforces a
// strictly positive slope and a concrete (non-zero) timestamp.
type SlopeData struct {
	SlopeValue float64   `json:"slope_value" db:"slope_value"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}

// NewSlopeData validates and creates a SlopeData. Timestamps are normalized
// to UTC on construction so that stored history never mixes zones.
func NewSlopeData(slope float64, ts time.Time) (SlopeData, error) {
	if slope <= 0 {
		return SlopeData{}, NewAppErrorWithDetails(
			ErrCodeValidationInvalidSlope,
			"slope value must be positive",
			nil,
			map[string]any{"slope_value": slope},
		)
	}
	if ts.IsZero() {
		return SlopeData{}, NewAppError(
			ErrCodeValidationNaiveTimestamp,
			"slope timestamp must be a concrete timezone-aware instant",
			nil,
		)
	}
	return SlopeData{SlopeValue: slope, Timestamp: ts.UTC()}, nil
}

// HeatingCycle is a reconstructed historical heating event: the interval
// during which a thermostat was actively heating while meaningfully below
// its target temperature. Cycles are immutable once constructed and are
// consumed read-only by labeling and feature engineering.
//
// Optional side-channel values (slope, humidity, outdoor conditions) are nil
// when no sample was found near the cycle boundary; they are never defaulted
// inside the domain model.
type HeatingCycle struct {
	ID       string `json:"id" db:"id"`
	DeviceID string `json:"device_id" db:"device_id"`

	StartTime time.Time     `json:"start_time" db:"start_time"`
	EndTime   time.Time     `json:"end_time" db:"end_time"`
	Duration  time.Duration `json:"duration" db:"duration"`

	InitialTemp float64 `json:"initial_temp" db:"initial_temp"`
	TargetTemp  float64 `json:"target_temp" db:"target_temp"`
	FinalTemp   float64 `json:"final_temp" db:"final_temp"`

	// Scheduler correlation, present only when the cycle could be matched
	// to a scheduled slot. Required by the error-driven labeling strategy.
	TargetTime      *time.Time `json:"target_time,omitempty" db:"target_time"`
	TargetReachedAt *time.Time `json:"target_reached_at,omitempty" db:"target_reached_at"`

	// Side-channel values sampled near the cycle boundaries.
	InitialSlope           *float64 `json:"initial_slope,omitempty" db:"initial_slope"`
	FinalSlope             *float64 `json:"final_slope,omitempty" db:"final_slope"`
	InitialHumidity        *float64 `json:"initial_humidity,omitempty" db:"initial_humidity"`
	FinalHumidity          *float64 `json:"final_humidity,omitempty" db:"final_humidity"`
	InitialOutdoorTemp     *float64 `json:"initial_outdoor_temp,omitempty" db:"initial_outdoor_temp"`
	FinalOutdoorTemp       *float64 `json:"final_outdoor_temp,omitempty" db:"final_outdoor_temp"`
	InitialOutdoorHumidity *float64 `json:"initial_outdoor_humidity,omitempty" db:"initial_outdoor_humidity"`
	FinalOutdoorHumidity   *float64 `json:"final_outdoor_humidity,omitempty" db:"final_outdoor_humidity"`
	InitialCloudCoverage   *float64 `json:"initial_cloud_coverage,omitempty" db:"initial_cloud_coverage"`
	FinalCloudCoverage     *float64 `json:"final_cloud_coverage,omitempty" db:"final_cloud_coverage"`
}

// NewHeatingCycle validates the cycle invariants and generates a unique ID
// when none is supplied. A heating cycle by definition starts below its
// target temperature and never has a negative duration.
func NewHeatingCycle(c HeatingCycle) (HeatingCycle, error) {
	if c.DeviceID == "" {
		return HeatingCycle{}, NewAppError(
			ErrCodeValidationInvalidDevice,
			"heating cycle device id cannot be empty",
			nil,
		)
	}
	if c.Duration < 0 {
		return HeatingCycle{}, NewAppErrorWithDetails(
			ErrCodeValidationInvalidDuration,
			"heating cycle duration cannot be negative",
			nil,
			map[string]any{"duration": c.Duration.String()},
		)
	}
	if c.InitialTemp >= c.TargetTemp {
		return HeatingCycle{}, NewAppErrorWithDetails(
			ErrCodeValidationInvalidCycle,
			"heating cycle must start below target temperature",
			nil,
			map[string]any{
				"initial_temp": c.InitialTemp,
				"target_temp":  c.TargetTemp,
			},
		)
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return c, nil
}

// DurationMinutes returns the cycle duration in fractional minutes.
func (c HeatingCycle) DurationMinutes() float64 {
	return c.Duration.Minutes()
}

// TempIncrease returns the temperature gained over the cycle.
func (c HeatingCycle) TempIncrease() float64 {
	return c.FinalTemp - c.InitialTemp
}

// ScheduleSlot is the next scheduled heating event read from the external
// scheduler: the room should be at TargetTemp at TargetTime.
type ScheduleSlot struct {
	ID         string    `json:"id"`
	TargetTime time.Time `json:"target_time"`
	TargetTemp float64   `json:"target_temp"`
}

// EnvironmentState is a snapshot of the observable environment for one
// device at one instant, fed into every controller tick.
type EnvironmentState struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	CurrentTemp   float64  `json:"current_temp"`
	CurrentSlope  *float64 `json:"current_slope,omitempty"`
	OutdoorTemp   *float64 `json:"outdoor_temp,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	CloudCoverage *float64 `json:"cloud_coverage,omitempty"`
}

// PredictionResult is the outcome of a heating-time prediction.
type PredictionResult struct {
	AnticipatedStartTime     time.Time `json:"anticipated_start_time"`
	EstimatedDurationMinutes float64   `json:"estimated_duration_minutes"`
	ConfidenceLevel          float64   `json:"confidence_level"`
	LearnedHeatingSlope      float64   `json:"learned_heating_slope"`
}

// HeatingDecision is the output of one controller tick: an action plus the
// human-readable reason it was taken. Produced fresh on every tick.
type HeatingDecision struct {
	Action DecisionAction `json:"action"`
	Reason string         `json:"reason"`
}

// SamplePoint is a single (timestamp, value) observation from a sensor
// history series.
type SamplePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// StateSample is one thermostat state observation from the recorder.
// CurrentTemp/TargetTemp are nil when the recorder had no reading; the
// cycle extractor skips such samples without breaking cycle tracking.
type StateSample struct {
	Timestamp   time.Time `json:"timestamp"`
	Mode        HVACMode  `json:"mode"`
	CurrentTemp *float64  `json:"current_temp,omitempty"`
	TargetTemp  *float64  `json:"target_temp,omitempty"`
}

// TrainingMetrics are the fit metrics reported by a Regressor.
type TrainingMetrics struct {
	RMSE      float64 `json:"rmse"`
	MAE       float64 `json:"mae"`
	NSamples  int     `json:"n_samples"`
	NFeatures int     `json:"n_features"`
}

// ModelMetadata describes a persisted trained model. Backend records which
// regression implementation produced the payload so that loading can refuse
// models whose backend is unavailable.
type ModelMetadata struct {
	DeviceID          string             `json:"device_id" db:"device_id"`
	Backend           RegressorBackend   `json:"backend" db:"backend"`
	TrainedAt         time.Time          `json:"trained_at" db:"trained_at"`
	Metrics           TrainingMetrics    `json:"metrics" db:"-"`
	FeatureNames      []string           `json:"feature_names" db:"feature_names"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty" db:"-"`
}

// FeatureBundle is any flat, ordered set of named numeric features. The
// name ordering is part of the contract: trained models and inference
// vectors must align positionally.
//
// Absent values are carried as nil inside bundles and replaced by the
// neutral default 0.0 only in Vector(), the ML-input boundary.
type FeatureBundle interface {
	FeatureNames() []string
	Vector() []float64
}

// TrainingExample pairs input features (X) with the target label (Y).
type TrainingExample struct {
	Features      FeatureBundle
	TargetMinutes float64
	CycleID       string
}

// NewTrainingExample validates that the label is non-negative.
func NewTrainingExample(features FeatureBundle, targetMinutes float64, cycleID string) (TrainingExample, error) {
	if targetMinutes < 0 {
		return TrainingExample{}, NewAppErrorWithDetails(
			ErrCodeValidationInvalidDuration,
			"training target duration cannot be negative",
			nil,
			map[string]any{"target_minutes": targetMinutes, "cycle_id": cycleID},
		)
	}
	return TrainingExample{Features: features, TargetMinutes: targetMinutes, CycleID: cycleID}, nil
}

// TrainingReport summarizes a completed training run, including how many
// cycles were extracted versus how many passed the validity predicate.
type TrainingReport struct {
	DeviceID        string           `json:"device_id"`
	Backend         RegressorBackend `json:"backend"`
	CyclesExtracted int              `json:"cycles_extracted"`
	CyclesValid     int              `json:"cycles_valid"`
	ExamplesUsed    int              `json:"examples_used"`
	Metrics         TrainingMetrics  `json:"metrics"`
	TrainedAt       time.Time        `json:"trained_at"`
}

// ResponseMeta contains non-blocking metadata returned with API responses,
// such as warnings about degraded predictions.
type ResponseMeta struct {
	Warnings []string `json:"warnings,omitempty"`
}
