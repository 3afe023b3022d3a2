package prediction

import (
	"math"
	"testing"
	"time"

	"preheat/internal/config"
)

func testPredictionConfig() config.PredictionConfig {
	return config.PredictionConfig{
		HumidityThreshold:  70,
		HumidityFactor:     1.10,
		CloudThreshold:     80,
		CloudFactor:        1.05,
		BufferMinutes:      5,
		MinDurationMinutes: 10,
		MaxDurationMinutes: 180,
	}
}

func fptr(v float64) *float64 { return &v }

var targetTime = time.Date(2026, 1, 10, 7, 0, 0, 0, time.UTC)

// TestPredictNoHeatingNeeded verifies delta <= 0 returns zero duration with
// full confidence and the target time as start.
func TestPredictNoHeatingNeeded(t *testing.T) {
	s := NewService(testPredictionConfig())

	for _, current := range []float64{20.0, 21.5} {
		res := s.Predict(Request{
			CurrentTemp:  current,
			TargetTemp:   20.0,
			LearnedSlope: 2.0,
			TargetTime:   targetTime,
		})
		if res.EstimatedDurationMinutes != 0 {
			t.Errorf("current=%v: duration = %v, want 0", current, res.EstimatedDurationMinutes)
		}
		if res.ConfidenceLevel != 1.0 {
			t.Errorf("current=%v: confidence = %v, want 1.0", current, res.ConfidenceLevel)
		}
		if !res.AnticipatedStartTime.Equal(targetTime) {
			t.Errorf("current=%v: start = %v, want target time", current, res.AnticipatedStartTime)
		}
	}
}

// TestPredictInvalidSlope verifies slope <= 0 yields zero confidence so the
// caller never triggers heating on it.
func TestPredictInvalidSlope(t *testing.T) {
	s := NewService(testPredictionConfig())

	for _, slope := range []float64{0, -1.5} {
		res := s.Predict(Request{
			CurrentTemp:  18.0,
			TargetTemp:   20.0,
			LearnedSlope: slope,
			TargetTime:   targetTime,
		})
		if res.EstimatedDurationMinutes != 0 || res.ConfidenceLevel != 0.0 {
			t.Errorf("slope=%v: got (%v, %v), want (0, 0.0)", slope, res.EstimatedDurationMinutes, res.ConfidenceLevel)
		}
	}
}

// TestPredictBaseEstimate verifies delta/slope scaling, the buffer, and the
// anticipated start arithmetic.
func TestPredictBaseEstimate(t *testing.T) {
	s := NewService(testPredictionConfig())

	// 2°C at 2°C/h = 60 min + 5 buffer = 65.
	res := s.Predict(Request{
		CurrentTemp:  18.0,
		TargetTemp:   20.0,
		LearnedSlope: 2.0,
		TargetTime:   targetTime,
	})
	if math.Abs(res.EstimatedDurationMinutes-65.0) > 1e-9 {
		t.Errorf("duration = %v, want 65", res.EstimatedDurationMinutes)
	}
	wantStart := targetTime.Add(-65 * time.Minute)
	if !res.AnticipatedStartTime.Equal(wantStart) {
		t.Errorf("start = %v, want %v", res.AnticipatedStartTime, wantStart)
	}
	if res.LearnedHeatingSlope != 2.0 {
		t.Errorf("LearnedHeatingSlope = %v, want 2.0", res.LearnedHeatingSlope)
	}
}

// TestPredictCorrectionFactors verifies humidity and cloud factors compose
// multiplicatively and only fire above their thresholds.
func TestPredictCorrectionFactors(t *testing.T) {
	s := NewService(testPredictionConfig())
	base := Request{
		CurrentTemp:  18.0,
		TargetTemp:   20.0,
		LearnedSlope: 2.0,
		TargetTime:   targetTime,
	}

	tests := []struct {
		name     string
		humidity *float64
		cloud    *float64
		want     float64
	}{
		{"no corrections", nil, nil, 65.0},
		{"humidity at threshold does not fire", fptr(70.0), nil, 65.0},
		{"high humidity", fptr(75.0), nil, 60*1.10 + 5},
		{"heavy cloud", nil, fptr(90.0), 60*1.05 + 5},
		{"both compose", fptr(75.0), fptr(90.0), 60*1.10*1.05 + 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			req.Humidity = tt.humidity
			req.CloudCoverage = tt.cloud
			res := s.Predict(req)
			if math.Abs(res.EstimatedDurationMinutes-tt.want) > 1e-9 {
				t.Errorf("duration = %v, want %v", res.EstimatedDurationMinutes, tt.want)
			}
		})
	}
}

// TestPredictClampBounds verifies 10 <= duration <= 180 for any positive
// delta up to 50°C and slope down to 0.01°C/h.
func TestPredictClampBounds(t *testing.T) {
	s := NewService(testPredictionConfig())

	// Tiny delta, fast room: clamped up to 10.
	small := s.Predict(Request{CurrentTemp: 19.95, TargetTemp: 20.0, LearnedSlope: 5.0, TargetTime: targetTime})
	if small.EstimatedDurationMinutes != 10.0 {
		t.Errorf("duration = %v, want clamp at 10", small.EstimatedDurationMinutes)
	}

	// Huge delta, glacial slope: clamped down to 180.
	big := s.Predict(Request{CurrentTemp: -30.0, TargetTemp: 20.0, LearnedSlope: 0.01, TargetTime: targetTime})
	if big.EstimatedDurationMinutes != 180.0 {
		t.Errorf("duration = %v, want clamp at 180", big.EstimatedDurationMinutes)
	}

	// Property sweep over the documented input ranges.
	for slope := 0.01; slope <= 10; slope *= 3 {
		for delta := 0.1; delta <= 50; delta += 7.3 {
			res := s.Predict(Request{CurrentTemp: 20 - delta, TargetTemp: 20, LearnedSlope: slope, TargetTime: targetTime})
			if res.EstimatedDurationMinutes < 10 || res.EstimatedDurationMinutes > 180 {
				t.Fatalf("slope=%v delta=%v: duration %v outside [10,180]", slope, delta, res.EstimatedDurationMinutes)
			}
		}
	}
}

// TestPredictConfidenceHeuristic verifies the slope-threshold heuristic.
func TestPredictConfidenceHeuristic(t *testing.T) {
	s := NewService(testPredictionConfig())
	base := Request{CurrentTemp: 18.0, TargetTemp: 20.0, TargetTime: targetTime}

	slow := base
	slow.LearnedSlope = 0.5 // not strictly greater
	if res := s.Predict(slow); res.ConfidenceLevel != 0.6 {
		t.Errorf("slope 0.5: confidence = %v, want 0.6", res.ConfidenceLevel)
	}

	fast := base
	fast.LearnedSlope = 0.51
	if res := s.Predict(fast); res.ConfidenceLevel != 0.8 {
		t.Errorf("slope 0.51: confidence = %v, want 0.8", res.ConfidenceLevel)
	}
}
