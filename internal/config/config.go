// Package config defines the global configuration structure for the preheat
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"preheat/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the preheat service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"preheat-service"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server     ServerConfig
	Database   DatabaseConfig
	Recorder   RecorderConfig
	MQTT       MQTTConfig
	Extractor  ExtractorConfig
	Labeling   LabelingConfig
	LHS        LHSConfig
	Prediction PredictionConfig
	Controller ControllerConfig
	Training   TrainingConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration for the prototype API.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`

	CorsAllowedOrigins []string `envconfig:"SERVER_CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RecorderConfig holds the sensor-history recorder HTTP API settings.
type RecorderConfig struct {
	BaseURL  string       `envconfig:"RECORDER_BASE_URL" validate:"required,url"`
	APIToken SecretString `envconfig:"RECORDER_API_TOKEN" validate:"required"`

	Timeout    time.Duration `envconfig:"RECORDER_TIMEOUT" default:"15s"`
	MaxRetries int           `envconfig:"RECORDER_MAX_RETRIES" default:"3"`
	UserAgent  string        `envconfig:"RECORDER_USER_AGENT" default:"Preheat-Recorder/1.0"`
}

// MQTTConfig holds the broker settings for the sensor event source that
// triggers controller recalculation ticks.
type MQTTConfig struct {
	BrokerURL string       `envconfig:"MQTT_BROKER_URL" validate:"required,uri"`
	ClientID  string       `envconfig:"MQTT_CLIENT_ID" default:"preheat-controller"`
	Username  string       `envconfig:"MQTT_USERNAME"`
	Password  SecretString `envconfig:"MQTT_PASSWORD"`

	TopicPrefix    string        `envconfig:"MQTT_TOPIC_PREFIX" default:"preheat"`
	QoS            byte          `envconfig:"MQTT_QOS" default:"1"`
	ConnectTimeout time.Duration `envconfig:"MQTT_CONNECT_TIMEOUT" default:"10s"`
}

// ExtractorConfig holds the heating-cycle detection thresholds.
//
// Start and end thresholds are asymmetric on purpose: a cycle begins when
// the room is at least ThresholdStart below target and ends only when the
// deficit falls under ThresholdEnd, so small oscillations around the start
// threshold do not fragment one physical heating event into many cycles.
type ExtractorConfig struct {
	ThresholdStart float64 `envconfig:"EXTRACTOR_THRESHOLD_START" default:"0.3" validate:"gt=0"`
	ThresholdEnd   float64 `envconfig:"EXTRACTOR_THRESHOLD_END" default:"0.25" validate:"gt=0,ltefield=ThresholdStart"`

	MinCycleDuration     time.Duration `envconfig:"EXTRACTOR_MIN_CYCLE_DURATION" default:"5m"`
	SideChannelTolerance time.Duration `envconfig:"EXTRACTOR_SIDE_CHANNEL_TOLERANCE" default:"1m"`
}

// LabelingConfig selects and tunes the training label strategy.
type LabelingConfig struct {
	Strategy types.LabelStrategy `envconfig:"LABELING_STRATEGY" default:"actual_duration" validate:"oneof=actual_duration error_driven"`

	// Actual-duration validity bounds, in minutes.
	MinDurationMinutes float64 `envconfig:"LABELING_MIN_DURATION_MINUTES" default:"5"`
	MaxDurationMinutes float64 `envconfig:"LABELING_MAX_DURATION_MINUTES" default:"360"`
	MinTempIncrease    float64 `envconfig:"LABELING_MIN_TEMP_INCREASE" default:"0.1"`

	// Error-driven bound: cycles whose timing error exceeds this are dropped.
	MaxErrorMinutes float64 `envconfig:"LABELING_MAX_ERROR_MINUTES" default:"120"`
}

// LHSConfig tunes the learned heating slope statistics.
type LHSConfig struct {
	// DefaultSlope is the neutral slope (°C/h) used when no history exists.
	DefaultSlope float64 `envconfig:"LHS_DEFAULT_SLOPE" default:"2.0" validate:"gt=0"`

	// WindowHours is the half-width of the contextual time-of-day window.
	WindowHours float64 `envconfig:"LHS_WINDOW_HOURS" default:"2.0" validate:"gt=0"`

	RetentionDays int `envconfig:"LHS_RETENTION_DAYS" default:"30" validate:"gt=0"`
	MaxEntries    int `envconfig:"LHS_MAX_ENTRIES" default:"100" validate:"gt=0"`
}

// PredictionConfig tunes the anticipated-duration estimate.
type PredictionConfig struct {
	HumidityThreshold float64 `envconfig:"PREDICTION_HUMIDITY_THRESHOLD" default:"70"`
	HumidityFactor    float64 `envconfig:"PREDICTION_HUMIDITY_FACTOR" default:"1.10"`
	CloudThreshold    float64 `envconfig:"PREDICTION_CLOUD_THRESHOLD" default:"80"`
	CloudFactor       float64 `envconfig:"PREDICTION_CLOUD_FACTOR" default:"1.05"`

	BufferMinutes      float64 `envconfig:"PREDICTION_BUFFER_MINUTES" default:"5"`
	MinDurationMinutes float64 `envconfig:"PREDICTION_MIN_DURATION_MINUTES" default:"10"`
	MaxDurationMinutes float64 `envconfig:"PREDICTION_MAX_DURATION_MINUTES" default:"180"`
}

// ControllerConfig tunes the anticipation controller tick loop.
type ControllerConfig struct {
	TickInterval    time.Duration `envconfig:"CONTROLLER_TICK_INTERVAL" default:"5m"`
	OvershootMargin float64       `envconfig:"CONTROLLER_OVERSHOOT_MARGIN" default:"0.5"`

	// LookaheadHours bounds how far ahead the next schedule slot is fetched.
	LookaheadHours float64 `envconfig:"CONTROLLER_LOOKAHEAD_HOURS" default:"24"`
}

// TrainingConfig tunes the batch training orchestrator.
type TrainingConfig struct {
	HistoryDays      int                    `envconfig:"TRAINING_HISTORY_DAYS" default:"30" validate:"gt=0"`
	MinCycles        int                    `envconfig:"TRAINING_MIN_CYCLES" default:"10" validate:"gt=0"`
	MinExamples      int                    `envconfig:"TRAINING_MIN_EXAMPLES" default:"3" validate:"gt=0"`
	Backend          types.RegressorBackend `envconfig:"TRAINING_BACKEND" default:"gbrt" validate:"oneof=gbrt linear"`
	Aggregate        types.AggregateFunc    `envconfig:"TRAINING_FEATURE_AGGREGATE" default:"avg" validate:"oneof=avg min max median"`
	FetchConcurrency int                    `envconfig:"TRAINING_FETCH_CONCURRENCY" default:"4" validate:"gt=0"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
