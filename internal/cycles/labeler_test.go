package cycles

import (
	"math"
	"testing"
	"time"

	"preheat/internal/config"
	"preheat/internal/types"
)

func actualDurationConfig() config.LabelingConfig {
	return config.LabelingConfig{
		Strategy:           types.LabelActualDuration,
		MinDurationMinutes: 5,
		MaxDurationMinutes: 360,
		MinTempIncrease:    0.1,
		MaxErrorMinutes:    120,
	}
}

func errorDrivenConfig() config.LabelingConfig {
	cfg := actualDurationConfig()
	cfg.Strategy = types.LabelErrorDriven
	return cfg
}

func labeledCycle(t *testing.T, durationMinutes float64, tempIncrease float64) types.HeatingCycle {
	t.Helper()
	start := time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)
	duration := time.Duration(durationMinutes * float64(time.Minute))
	c, err := types.NewHeatingCycle(types.HeatingCycle{
		DeviceID:    "climate.living_room",
		StartTime:   start,
		EndTime:     start.Add(duration),
		Duration:    duration,
		InitialTemp: 18.0,
		TargetTemp:  20.0,
		FinalTemp:   18.0 + tempIncrease,
	})
	if err != nil {
		t.Fatalf("NewHeatingCycle returned error: %v", err)
	}
	return c
}

// TestActualDurationLabel verifies the observed duration is the label for a
// valid cycle.
func TestActualDurationLabel(t *testing.T) {
	l := NewLabeler(actualDurationConfig())
	c := labeledCycle(t, 45, 1.8)

	label, valid := l.Label(c)
	if !valid {
		t.Fatal("expected cycle to be valid")
	}
	if label != 45.0 {
		t.Errorf("label = %v, want 45", label)
	}
}

// TestActualDurationValidity verifies the duration and temp-increase bounds.
func TestActualDurationValidity(t *testing.T) {
	l := NewLabeler(actualDurationConfig())

	tests := []struct {
		name            string
		durationMinutes float64
		tempIncrease    float64
		wantValid       bool
	}{
		{"at min duration", 5, 0.5, true},
		{"below min duration", 4.9, 0.5, false},
		{"at max duration", 360, 0.5, true},
		{"above max duration", 361, 0.5, false},
		{"at min temp increase", 60, 0.1, true},
		{"below min temp increase", 60, 0.05, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, valid := l.Label(labeledCycle(t, tt.durationMinutes, tt.tempIncrease))
			if valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", valid, tt.wantValid)
			}
		})
	}
}

// TestErrorDrivenLabel verifies optimal = actual − error: a late finish
// (error=+5) shortens the label to 55, an early finish (error=−10)
// lengthens it to 70.
func TestErrorDrivenLabel(t *testing.T) {
	l := NewLabeler(errorDrivenConfig())

	tests := []struct {
		name         string
		errorMinutes float64
		want         float64
	}{
		{"late by five", 5, 55},
		{"early by ten", -10, 70},
		{"on time", 0, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := labeledCycle(t, 60, 1.9)
			targetTime := c.StartTime.Add(50 * time.Minute)
			reached := targetTime.Add(time.Duration(tt.errorMinutes * float64(time.Minute)))
			c.TargetTime = &targetTime
			c.TargetReachedAt = &reached

			label, valid := l.Label(c)
			if !valid {
				t.Fatal("expected cycle to be valid")
			}
			if math.Abs(label-tt.want) > 1e-9 {
				t.Errorf("label = %v, want %v", label, tt.want)
			}
		})
	}
}

// TestErrorDrivenClampsAtMinimum verifies a huge positive error clamps the
// optimal duration at the minimum.
func TestErrorDrivenClampsAtMinimum(t *testing.T) {
	l := NewLabeler(errorDrivenConfig())

	c := labeledCycle(t, 60, 1.9)
	targetTime := c.StartTime.Add(10 * time.Minute)
	reached := targetTime.Add(58 * time.Minute) // optimal would be 2
	c.TargetTime = &targetTime
	c.TargetReachedAt = &reached

	label, valid := l.Label(c)
	if !valid {
		t.Fatal("expected cycle to be valid")
	}
	if label != 5.0 {
		t.Errorf("label = %v, want clamp at 5", label)
	}
}

// TestErrorDrivenValidity verifies the strategy's validity predicate.
func TestErrorDrivenValidity(t *testing.T) {
	l := NewLabeler(errorDrivenConfig())

	// Missing target correlation: invalid.
	c := labeledCycle(t, 60, 1.9)
	if _, valid := l.Label(c); valid {
		t.Error("cycle without target correlation must be invalid")
	}

	// Error beyond the max bound: invalid.
	c2 := labeledCycle(t, 200, 1.9)
	targetTime := c2.StartTime.Add(30 * time.Minute)
	reached := targetTime.Add(130 * time.Minute)
	c2.TargetTime = &targetTime
	c2.TargetReachedAt = &reached
	if _, valid := l.Label(c2); valid {
		t.Error("cycle with |error| > max must be invalid")
	}

	// Error at the bound: valid.
	c3 := labeledCycle(t, 200, 1.9)
	reachedAtBound := targetTime.Add(120 * time.Minute)
	c3.TargetTime = &targetTime
	c3.TargetReachedAt = &reachedAtBound
	if _, valid := l.Label(c3); !valid {
		t.Error("cycle with |error| == max must be valid")
	}
}

// TestStrategySelection verifies the configured strategy drives Label.
func TestStrategySelection(t *testing.T) {
	c := labeledCycle(t, 60, 1.9)
	targetTime := c.StartTime.Add(50 * time.Minute)
	reached := targetTime.Add(5 * time.Minute)
	c.TargetTime = &targetTime
	c.TargetReachedAt = &reached

	actual := NewLabeler(actualDurationConfig())
	if label, _ := actual.Label(c); label != 60.0 {
		t.Errorf("actual-duration label = %v, want 60", label)
	}

	errDriven := NewLabeler(errorDrivenConfig())
	if label, _ := errDriven.Label(c); label != 55.0 {
		t.Errorf("error-driven label = %v, want 55", label)
	}
}
