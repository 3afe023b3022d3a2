package cycles

import (
	"preheat/internal/config"
	"preheat/internal/types"
)

// Labeler derives the training target (duration in minutes) from a heating
// cycle. Exactly one strategy is active per deployment, selected in config;
// the strategies are never mixed within one training run.
type Labeler struct {
	cfg config.LabelingConfig
}

// NewLabeler creates a Labeler for the configured strategy.
func NewLabeler(cfg config.LabelingConfig) *Labeler {
	return &Labeler{cfg: cfg}
}

// Strategy returns the active labeling strategy.
func (l *Labeler) Strategy() types.LabelStrategy {
	return l.cfg.Strategy
}

// Label returns the training label for the cycle and whether the cycle
// passes the active strategy's validity predicate. Invalid cycles are
// excluded from training; callers must count them separately.
func (l *Labeler) Label(cycle types.HeatingCycle) (float64, bool) {
	switch l.cfg.Strategy {
	case types.LabelErrorDriven:
		return l.errorDrivenLabel(cycle)
	default:
		return l.actualDurationLabel(cycle)
	}
}

// actualDurationLabel uses the observed duration directly: the room actually
// took this long to heat under the observed conditions.
func (l *Labeler) actualDurationLabel(cycle types.HeatingCycle) (float64, bool) {
	duration := cycle.DurationMinutes()
	if duration < l.cfg.MinDurationMinutes || duration > l.cfg.MaxDurationMinutes {
		return 0, false
	}
	if cycle.TempIncrease() < l.cfg.MinTempIncrease {
		return 0, false
	}
	return duration, true
}

// errorDrivenLabel derives an optimal duration as actual minus the timing
// error, where error is minutes between reaching target and the scheduled
// target time: positive = late, negative = early.
func (l *Labeler) errorDrivenLabel(cycle types.HeatingCycle) (float64, bool) {
	if cycle.TargetReachedAt == nil || cycle.TargetTime == nil {
		return 0, false
	}
	duration := cycle.DurationMinutes()
	if duration <= 0 {
		return 0, false
	}

	errorMinutes := cycle.TargetReachedAt.Sub(*cycle.TargetTime).Minutes()
	if errorMinutes > l.cfg.MaxErrorMinutes || errorMinutes < -l.cfg.MaxErrorMinutes {
		return 0, false
	}

	optimal := duration - errorMinutes
	if optimal < l.cfg.MinDurationMinutes {
		optimal = l.cfg.MinDurationMinutes
	}
	return optimal, true
}
