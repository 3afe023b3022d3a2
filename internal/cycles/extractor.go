// Package cycles reconstructs discrete heating cycles from continuous
// thermostat history and derives training labels from them.
package cycles

import (
	"sort"
	"time"

	"preheat/internal/config"
	"preheat/internal/types"
)

// SideChannels carries the optional companion series sampled alongside the
// thermostat state, at matching or coarser resolution. Any series may be nil.
type SideChannels struct {
	Slope           []types.SamplePoint
	Humidity        []types.SamplePoint
	OutdoorTemp     []types.SamplePoint
	OutdoorHumidity []types.SamplePoint
	CloudCoverage   []types.SamplePoint
}

// Extractor reconstructs heating cycles from a chronological state stream
// using a two-state hysteresis machine. Extraction is a pure, single-pass
// O(n) computation with no I/O.
type Extractor struct {
	cfg config.ExtractorConfig
}

// NewExtractor creates an Extractor with the given thresholds.
func NewExtractor(cfg config.ExtractorConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// extractorState is the in-flight cycle being tracked while IN_CYCLE.
type extractorState struct {
	startTime       time.Time
	initialTemp     float64
	targetTemp      float64
	targetReachedAt *time.Time
}

// Extract walks the state samples for one device and returns the completed
// heating cycles in chronological order.
//
// A cycle opens when the mode is heat and the room is at least
// threshold_start below target; it closes when the mode leaves heat or the
// deficit drops under threshold_end. Samples with missing temperatures are
// skipped without breaking cycle tracking. Cycles shorter than the minimum
// duration are treated as sensor noise, and a cycle still open at the end of
// the window is discarded as incomplete.
func (e *Extractor) Extract(deviceID string, states []types.StateSample, side SideChannels) ([]types.HeatingCycle, error) {
	var (
		cycles  []types.HeatingCycle
		current *extractorState
	)

	for _, s := range states {
		if s.CurrentTemp == nil || s.TargetTemp == nil {
			continue
		}
		temp := *s.CurrentTemp
		target := *s.TargetTemp

		if current == nil {
			if s.Mode == types.HVACModeHeat && target-temp >= e.cfg.ThresholdStart {
				current = &extractorState{
					startTime:   s.Timestamp,
					initialTemp: temp,
					targetTemp:  target,
				}
			}
			continue
		}

		if current.targetReachedAt == nil && temp >= current.targetTemp {
			ts := s.Timestamp
			current.targetReachedAt = &ts
		}

		if s.Mode != types.HVACModeHeat || target-temp < e.cfg.ThresholdEnd {
			cycle, err := e.closeCycle(deviceID, current, s.Timestamp, temp, side)
			if err != nil {
				return nil, err
			}
			if cycle != nil {
				cycles = append(cycles, *cycle)
			}
			current = nil
		}
	}

	// An open cycle at the end of the query window is incomplete.
	return cycles, nil
}

// closeCycle finalizes the in-flight cycle, returning nil when it is shorter
// than the minimum duration.
func (e *Extractor) closeCycle(deviceID string, st *extractorState, endTime time.Time, finalTemp float64, side SideChannels) (*types.HeatingCycle, error) {
	duration := endTime.Sub(st.startTime)
	if duration < e.cfg.MinCycleDuration {
		return nil, nil
	}

	tol := e.cfg.SideChannelTolerance
	cycle, err := types.NewHeatingCycle(types.HeatingCycle{
		DeviceID:        deviceID,
		StartTime:       st.startTime,
		EndTime:         endTime,
		Duration:        duration,
		InitialTemp:     st.initialTemp,
		TargetTemp:      st.targetTemp,
		FinalTemp:       finalTemp,
		TargetReachedAt: st.targetReachedAt,

		InitialSlope:           lookupNear(side.Slope, st.startTime, tol),
		FinalSlope:             lookupNear(side.Slope, endTime, tol),
		InitialHumidity:        lookupNear(side.Humidity, st.startTime, tol),
		FinalHumidity:          lookupNear(side.Humidity, endTime, tol),
		InitialOutdoorTemp:     lookupNear(side.OutdoorTemp, st.startTime, tol),
		FinalOutdoorTemp:       lookupNear(side.OutdoorTemp, endTime, tol),
		InitialOutdoorHumidity: lookupNear(side.OutdoorHumidity, st.startTime, tol),
		FinalOutdoorHumidity:   lookupNear(side.OutdoorHumidity, endTime, tol),
		InitialCloudCoverage:   lookupNear(side.CloudCoverage, st.startTime, tol),
		FinalCloudCoverage:     lookupNear(side.CloudCoverage, endTime, tol),
	})
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

// lookupNear returns the value of the sample closest to t within ±tol, or
// nil when the series has no sample in that window. The series must be
// sorted ascending by timestamp.
func lookupNear(series []types.SamplePoint, t time.Time, tol time.Duration) *float64 {
	if len(series) == 0 {
		return nil
	}

	i := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(t)
	})

	best := -1
	var bestDist time.Duration
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(series) {
			continue
		}
		dist := series[j].Timestamp.Sub(t)
		if dist < 0 {
			dist = -dist
		}
		if dist > tol {
			continue
		}
		if best == -1 || dist < bestDist {
			best = j
			bestDist = dist
		}
	}
	if best == -1 {
		return nil
	}
	v := series[best].Value
	return &v
}
