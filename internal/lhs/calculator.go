// Package lhs computes the Learned Heating Slope: a robust, optionally
// time-of-day-contextual estimate of a room's heating rate (°C/hour) from
// noisy historical slope observations.
package lhs

import (
	"math"
	"sort"
	"time"

	"preheat/internal/types"
)

const hoursPerDay = 24.0

// Calculator derives robust slope statistics. All methods are pure and
// side-effect-free; the calculator itself is stateless beyond its defaults.
type Calculator struct {
	// DefaultSlope is returned when no usable observations exist. A
	// conservative room heats at roughly 2°C/h.
	DefaultSlope float64
}

// NewCalculator creates a Calculator with the given neutral default slope.
func NewCalculator(defaultSlope float64) *Calculator {
	return &Calculator{DefaultSlope: defaultSlope}
}

// RobustAverage computes a trimmed mean over the given slope values.
//
// Fewer than 4 values yield a simple mean. Otherwise the lowest and highest
// max(1, ceil(10%)) values are trimmed before averaging, which keeps a single
// outlier reading (a door left open, a sensor glitch) from dominating the
// estimate. Should trimming ever empty the set, the median is used. An empty
// input returns the default.
func (c *Calculator) RobustAverage(values []float64) float64 {
	if len(values) == 0 {
		return c.DefaultSlope
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) < 4 {
		return mean(sorted)
	}

	trim := int(math.Ceil(float64(len(sorted)) * 0.1))
	if trim < 1 {
		trim = 1
	}

	trimmed := sorted[trim : len(sorted)-trim]
	if len(trimmed) == 0 {
		return median(sorted)
	}
	return mean(trimmed)
}

// ContextualLHS computes the robust average over only those slopes whose
// time-of-day falls in the window [referenceTime − windowHours,
// referenceTime), date-independently. Windows that cross midnight are
// handled by wrapping; windowHours >= 24 selects every observation.
//
// Filtering by time-of-day captures diurnal effects (solar gain, occupancy)
// that a plain recency window would miss.
func (c *Calculator) ContextualLHS(slopes []types.SlopeData, referenceTime time.Time, windowHours float64) float64 {
	if len(slopes) == 0 {
		return c.DefaultSlope
	}

	var selected []float64
	if windowHours >= hoursPerDay {
		selected = make([]float64, 0, len(slopes))
		for _, s := range slopes {
			selected = append(selected, s.SlopeValue)
		}
	} else {
		endTOD := timeOfDayHours(referenceTime)
		startTOD := math.Mod(endTOD-windowHours+hoursPerDay, hoursPerDay)

		for _, s := range slopes {
			tod := timeOfDayHours(s.Timestamp)
			if inWindow(tod, startTOD, endTOD) {
				selected = append(selected, s.SlopeValue)
			}
		}
	}

	if len(selected) == 0 {
		return c.DefaultSlope
	}
	return c.RobustAverage(selected)
}

// inWindow reports whether tod lies in the half-open time-of-day window
// [start, end). A start greater than end means the window wraps midnight.
func inWindow(tod, start, end float64) bool {
	if start > end {
		return tod >= start || tod < end
	}
	return tod >= start && tod < end
}

// timeOfDayHours returns the fractional hour-of-day of t in UTC.
func timeOfDayHours(t time.Time) float64 {
	u := t.UTC()
	return float64(u.Hour()) + float64(u.Minute())/60.0 + float64(u.Second())/3600.0
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median expects a sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}
