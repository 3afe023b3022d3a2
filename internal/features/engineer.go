// Package features turns raw sensor history into the fixed-order numeric
// feature bundles consumed by the regression models. Two strategies coexist:
// scalar cycle-start snapshots and time-lagged windowed aggregates.
package features

import (
	"math"
	"sort"
	"time"

	"preheat/internal/types"
)

// Engineer computes feature bundles. All methods are pure; history series
// are read-only inputs sorted ascending by timestamp.
type Engineer struct {
	// Aggregate selects how samples inside a lag window collapse into one
	// value.
	Aggregate types.AggregateFunc
}

// NewEngineer creates an Engineer with the given window aggregation.
func NewEngineer(aggregate types.AggregateFunc) *Engineer {
	return &Engineer{Aggregate: aggregate}
}

// CycleStartFeatures builds the scalar snapshot of conditions at the moment
// a cycle began. Zero look-ahead: every value was observable at start_time,
// so the bundle is safe to reuse at labeling time.
func (e *Engineer) CycleStartFeatures(cycle types.HeatingCycle) types.CycleFeatures {
	return types.CycleFeatures{
		CurrentTemp:     cycle.InitialTemp,
		TargetTemp:      cycle.TargetTemp,
		TempDelta:       cycle.TargetTemp - cycle.InitialTemp,
		Slope:           cycle.InitialSlope,
		OutdoorTemp:     cycle.InitialOutdoorTemp,
		OutdoorHumidity: cycle.InitialOutdoorHumidity,
		Humidity:        cycle.InitialHumidity,
		CloudCoverage:   cycle.InitialCloudCoverage,
	}
}

// LaggedFeatures builds the windowed-aggregate bundle for instant t. For
// each signal and each horizon lag_k, all samples in the half-open window
// (t − lag_k, t − lag_{k−1}] are collapsed with the configured aggregation;
// an empty window yields an absent value, not zero. The cyclic hour encoding
// is always present.
func (e *Engineer) LaggedFeatures(t time.Time, series map[types.Signal][]types.SamplePoint) types.LaggedFeatures {
	hourSin, hourCos := CyclicHourEncoding(t)
	return types.LaggedFeatures{
		Temperature:   e.lagSeries(t, series[types.SignalTemperature]),
		Slope:         e.lagSeries(t, series[types.SignalSlope]),
		Power:         e.lagSeries(t, series[types.SignalPower]),
		OutdoorTemp:   e.lagSeries(t, series[types.SignalOutdoorTemp]),
		Humidity:      e.lagSeries(t, series[types.SignalHumidity]),
		CloudCoverage: e.lagSeries(t, series[types.SignalCloudCoverage]),
		HourSin:       hourSin,
		HourCos:       hourCos,
	}
}

// lagSeries computes one aggregate per horizon over a single signal.
func (e *Engineer) lagSeries(t time.Time, samples []types.SamplePoint) types.LagSeries {
	out := make(types.LagSeries, len(types.LagHorizonsMinutes))
	prev := 0
	for _, horizon := range types.LagHorizonsMinutes {
		windowStart := t.Add(-time.Duration(horizon) * time.Minute)
		windowEnd := t.Add(-time.Duration(prev) * time.Minute)
		out[horizon] = e.aggregateWindow(samples, windowStart, windowEnd)
		prev = horizon
	}
	return out
}

// aggregateWindow collapses samples in (start, end] to one value, or nil
// when the window is empty.
func (e *Engineer) aggregateWindow(samples []types.SamplePoint, start, end time.Time) *float64 {
	var values []float64
	for _, s := range samples {
		if s.Timestamp.After(start) && !s.Timestamp.After(end) {
			values = append(values, s.Value)
		}
	}
	if len(values) == 0 {
		return nil
	}

	var v float64
	switch e.Aggregate {
	case types.AggregateMin:
		v = values[0]
		for _, x := range values[1:] {
			if x < v {
				v = x
			}
		}
	case types.AggregateMax:
		v = values[0]
		for _, x := range values[1:] {
			if x > v {
				v = x
			}
		}
	case types.AggregateMedian:
		sort.Float64s(values)
		n := len(values)
		if n%2 == 1 {
			v = values[n/2]
		} else {
			v = (values[n/2-1] + values[n/2]) / 2.0
		}
	default: // avg
		var sum float64
		for _, x := range values {
			sum += x
		}
		v = sum / float64(len(values))
	}
	return &v
}

// ValueAtLag returns the signal value at exactly t − lag, linearly
// interpolating between the bracketing samples. Returns nil when t − lag
// falls outside the sampled range. The series must be sorted ascending.
func (e *Engineer) ValueAtLag(samples []types.SamplePoint, t time.Time, lag time.Duration) *float64 {
	if len(samples) == 0 {
		return nil
	}
	at := t.Add(-lag)

	i := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Timestamp.Before(at)
	})
	if i < len(samples) && samples[i].Timestamp.Equal(at) {
		v := samples[i].Value
		return &v
	}
	if i == 0 || i == len(samples) {
		return nil
	}

	lo, hi := samples[i-1], samples[i]
	span := hi.Timestamp.Sub(lo.Timestamp).Seconds()
	if span <= 0 {
		v := lo.Value
		return &v
	}
	frac := at.Sub(lo.Timestamp).Seconds() / span
	v := lo.Value + (hi.Value-lo.Value)*frac
	return &v
}

// CyclicHourEncoding maps the time of day onto the unit circle so that
// 23:59 and 00:00 are adjacent: hour_sin = sin(2π·h/24),
// hour_cos = cos(2π·h/24) with h = hour + minute/60.
func CyclicHourEncoding(t time.Time) (hourSin, hourCos float64) {
	u := t.UTC()
	h := float64(u.Hour()) + float64(u.Minute())/60.0
	angle := 2 * math.Pi * h / 24.0
	return math.Sin(angle), math.Cos(angle)
}

// ComposeMultiRoom builds the thermal-coupling-aware composite bundle for a
// target room, shared weather/time features, and its adjacent rooms.
func ComposeMultiRoom(target types.RoomFeatures, common types.FeatureBundle, adjacent ...types.RoomFeatures) types.MultiRoomFeatures {
	return types.MultiRoomFeatures{
		Target:   target,
		Common:   common,
		Adjacent: adjacent,
	}
}
