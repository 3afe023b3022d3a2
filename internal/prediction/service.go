// Package prediction estimates how long a room needs to heat and when
// pre-heating must start for a scheduled target.
package prediction

import (
	"time"

	"preheat/internal/config"
	"preheat/internal/types"
)

// Request carries the inputs for one prediction. Environmental correctors
// are optional; absent values simply skip their correction factor.
type Request struct {
	CurrentTemp   float64
	TargetTemp    float64
	LearnedSlope  float64
	TargetTime    time.Time
	OutdoorTemp   *float64
	Humidity      *float64
	CloudCoverage *float64
}

// Service computes anticipated start times from the learned heating slope.
// Pure computation, no I/O.
type Service struct {
	cfg config.PredictionConfig
}

// NewService creates a prediction Service.
func NewService(cfg config.PredictionConfig) *Service {
	return &Service{cfg: cfg}
}

// Predict estimates the heating duration and anticipated start time.
//
// A non-positive temperature delta means no heating is needed: the result
// carries zero duration with full confidence. A non-positive slope is
// invalid input: zero duration with zero confidence, and callers must not
// trigger heating on zero confidence.
//
// Otherwise the base estimate delta/slope is corrected multiplicatively for
// high humidity and heavy cloud coverage, padded with a fixed buffer, and
// clamped to the configured [min, max] range. The confidence value is a
// coarse placeholder heuristic, not a calibrated probability.
func (s *Service) Predict(req Request) types.PredictionResult {
	delta := req.TargetTemp - req.CurrentTemp
	if delta <= 0 {
		return types.PredictionResult{
			AnticipatedStartTime:     req.TargetTime,
			EstimatedDurationMinutes: 0,
			ConfidenceLevel:          1.0,
			LearnedHeatingSlope:      req.LearnedSlope,
		}
	}
	if req.LearnedSlope <= 0 {
		return types.PredictionResult{
			AnticipatedStartTime:     req.TargetTime,
			EstimatedDurationMinutes: 0,
			ConfidenceLevel:          0.0,
			LearnedHeatingSlope:      req.LearnedSlope,
		}
	}

	minutes := delta / req.LearnedSlope * 60.0

	if req.Humidity != nil && *req.Humidity > s.cfg.HumidityThreshold {
		minutes *= s.cfg.HumidityFactor
	}
	if req.CloudCoverage != nil && *req.CloudCoverage > s.cfg.CloudThreshold {
		minutes *= s.cfg.CloudFactor
	}

	minutes += s.cfg.BufferMinutes

	if minutes < s.cfg.MinDurationMinutes {
		minutes = s.cfg.MinDurationMinutes
	}
	if minutes > s.cfg.MaxDurationMinutes {
		minutes = s.cfg.MaxDurationMinutes
	}

	confidence := 0.6
	if req.LearnedSlope > 0.5 {
		confidence = 0.8
	}

	return types.PredictionResult{
		AnticipatedStartTime:     req.TargetTime.Add(-time.Duration(minutes * float64(time.Minute))),
		EstimatedDurationMinutes: minutes,
		ConfidenceLevel:          confidence,
		LearnedHeatingSlope:      req.LearnedSlope,
	}
}
