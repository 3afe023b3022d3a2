package types

// HVACMode is the operating mode reported by a thermostat state sample.
type HVACMode string

const (
	HVACModeHeat HVACMode = "heat"
	HVACModeCool HVACMode = "cool"
	HVACModeAuto HVACMode = "auto"
	HVACModeOff  HVACMode = "off"
)

// DecisionAction identifies the action carried by a HeatingDecision.
type DecisionAction string

const (
	ActionNoAction     DecisionAction = "no_action"
	ActionStartHeating DecisionAction = "start_heating"
	ActionStopHeating  DecisionAction = "stop_heating"
	ActionMonitor      DecisionAction = "monitor"
)

// ControllerPhase is the activity state of an AnticipationController.
type ControllerPhase string

const (
	PhaseNotPreheating    ControllerPhase = "not_preheating"
	PhasePreheatingActive ControllerPhase = "preheating_active"
)

// AggregateFunc selects how samples inside a lag window are collapsed
// into a single value.
type AggregateFunc string

const (
	AggregateAvg    AggregateFunc = "avg"
	AggregateMin    AggregateFunc = "min"
	AggregateMax    AggregateFunc = "max"
	AggregateMedian AggregateFunc = "median"
)

// LabelStrategy selects how the training target is derived from a cycle.
type LabelStrategy string

const (
	// LabelActualDuration uses the observed cycle duration as the label.
	// This is the active default.
	LabelActualDuration LabelStrategy = "actual_duration"
	// LabelErrorDriven derives an optimal duration by subtracting the
	// late/early error from the observed duration.
	LabelErrorDriven LabelStrategy = "error_driven"
)

// RegressorBackend identifies the concrete regression implementation that
// produced a serialized model. The identifier is embedded in every
// serialized payload so that deserialization can refuse models whose
// backend is unavailable.
type RegressorBackend string

const (
	BackendGBRT   RegressorBackend = "gbrt"
	BackendLinear RegressorBackend = "linear"
)

// Signal identifies a historical sensor series readable through the
// HistoricalDataReader.
type Signal string

const (
	SignalTemperature     Signal = "temperature"
	SignalPower           Signal = "power"
	SignalSlope           Signal = "slope"
	SignalHumidity        Signal = "humidity"
	SignalOutdoorTemp     Signal = "outdoor_temperature"
	SignalOutdoorHumidity Signal = "outdoor_humidity"
	SignalCloudCoverage   Signal = "cloud_coverage"
)
