package types

import (
	"fmt"
	"sort"
)

// LagHorizonsMinutes is the fixed, ordered set of lag horizons used by the
// lagged feature strategy. The ordering is load-bearing: feature vector
// columns are emitted horizon by horizon in this order.
var LagHorizonsMinutes = []int{15, 30, 60, 90, 120, 180}

// lagSignalOrder fixes the per-signal column grouping of a LaggedFeatures
// bundle. Changing this order invalidates every previously trained model.
var lagSignalOrder = []Signal{
	SignalTemperature,
	SignalSlope,
	SignalPower,
	SignalOutdoorTemp,
	SignalHumidity,
	SignalCloudCoverage,
}

// CycleFeatures is the cycle-start feature strategy: a scalar snapshot of
// the environment at the moment a heating cycle begins. Zero look-ahead, so
// the same bundle is safe to reuse at labeling time.
type CycleFeatures struct {
	CurrentTemp float64 `json:"current_temp"`
	TargetTemp  float64 `json:"target_temp"`
	TempDelta   float64 `json:"temp_delta"`

	Slope           *float64 `json:"slope,omitempty"`
	OutdoorTemp     *float64 `json:"outdoor_temp,omitempty"`
	OutdoorHumidity *float64 `json:"outdoor_humidity,omitempty"`
	Humidity        *float64 `json:"humidity,omitempty"`
	CloudCoverage   *float64 `json:"cloud_coverage,omitempty"`
}

// cycleFeatureNames is the canonical column order for CycleFeatures.
var cycleFeatureNames = []string{
	"current_temp",
	"target_temp",
	"temp_delta",
	"slope",
	"outdoor_temp",
	"outdoor_humidity",
	"humidity",
	"cloud_coverage",
}

// FeatureNames returns the fixed column order of the bundle.
func (f CycleFeatures) FeatureNames() []string {
	names := make([]string, len(cycleFeatureNames))
	copy(names, cycleFeatureNames)
	return names
}

// Vector flattens the bundle into the ML-input vector. Absent values become
// 0.0 here and only here.
func (f CycleFeatures) Vector() []float64 {
	return []float64{
		f.CurrentTemp,
		f.TargetTemp,
		f.TempDelta,
		orZero(f.Slope),
		orZero(f.OutdoorTemp),
		orZero(f.OutdoorHumidity),
		orZero(f.Humidity),
		orZero(f.CloudCoverage),
	}
}

// LagSeries holds one aggregate per lag horizon for a single signal, keyed
// by horizon minutes. A horizon with no samples carries nil, not zero.
type LagSeries map[int]*float64

// At returns the aggregate for the given horizon, or nil when the horizon
// had no samples (or was never computed).
func (s LagSeries) At(horizonMinutes int) *float64 {
	if s == nil {
		return nil
	}
	return s[horizonMinutes]
}

// lagFeatureName builds the canonical column name for a signal/horizon pair,
// e.g. "temperature_lag_15min".
func lagFeatureName(signal Signal, horizonMinutes int) string {
	return fmt.Sprintf("%s_lag_%dmin", signal, horizonMinutes)
}

// LaggedFeatures is the lagged/aggregated feature strategy: one windowed
// aggregate per (signal, horizon) pair plus the cyclic time-of-day encoding.
type LaggedFeatures struct {
	Temperature   LagSeries `json:"temperature"`
	Slope         LagSeries `json:"slope"`
	Power         LagSeries `json:"power"`
	OutdoorTemp   LagSeries `json:"outdoor_temp"`
	Humidity      LagSeries `json:"humidity"`
	CloudCoverage LagSeries `json:"cloud_coverage"`

	HourSin float64 `json:"hour_sin"`
	HourCos float64 `json:"hour_cos"`
}

func (f LaggedFeatures) series(signal Signal) LagSeries {
	switch signal {
	case SignalTemperature:
		return f.Temperature
	case SignalSlope:
		return f.Slope
	case SignalPower:
		return f.Power
	case SignalOutdoorTemp:
		return f.OutdoorTemp
	case SignalHumidity:
		return f.Humidity
	case SignalCloudCoverage:
		return f.CloudCoverage
	default:
		return nil
	}
}

// FeatureNames returns the fixed column order: every signal's horizons in
// ascending order, then hour_sin and hour_cos.
func (f LaggedFeatures) FeatureNames() []string {
	names := make([]string, 0, len(lagSignalOrder)*len(LagHorizonsMinutes)+2)
	for _, signal := range lagSignalOrder {
		for _, h := range LagHorizonsMinutes {
			names = append(names, lagFeatureName(signal, h))
		}
	}
	return append(names, "hour_sin", "hour_cos")
}

// Vector flattens the bundle in FeatureNames order, replacing absent
// aggregates with 0.0.
func (f LaggedFeatures) Vector() []float64 {
	vec := make([]float64, 0, len(lagSignalOrder)*len(LagHorizonsMinutes)+2)
	for _, signal := range lagSignalOrder {
		series := f.series(signal)
		for _, h := range LagHorizonsMinutes {
			vec = append(vec, orZero(series.At(h)))
		}
	}
	return append(vec, f.HourSin, f.HourCos)
}

// RoomFeatures attaches a room identity to a feature bundle so that
// multi-room composition can namespace adjacent rooms deterministically.
type RoomFeatures struct {
	RoomID   string
	Features FeatureBundle
}

// MultiRoomFeatures composes a target room's bundle with shared
// weather/time features and any number of adjacent-room bundles for
// thermal-coupling-aware models.
//
// Column order is fixed: target room fields first (unprefixed), then common
// fields, then adjacent rooms sorted by room id, each column prefixed with
// its room id.
type MultiRoomFeatures struct {
	Target   RoomFeatures
	Common   FeatureBundle
	Adjacent []RoomFeatures
}

func (m MultiRoomFeatures) sortedAdjacent() []RoomFeatures {
	adj := make([]RoomFeatures, len(m.Adjacent))
	copy(adj, m.Adjacent)
	sort.Slice(adj, func(i, j int) bool { return adj[i].RoomID < adj[j].RoomID })
	return adj
}

// FeatureNames returns the composed, deterministic column order.
func (m MultiRoomFeatures) FeatureNames() []string {
	var names []string
	names = append(names, m.Target.Features.FeatureNames()...)
	if m.Common != nil {
		names = append(names, m.Common.FeatureNames()...)
	}
	for _, room := range m.sortedAdjacent() {
		for _, n := range room.Features.FeatureNames() {
			names = append(names, room.RoomID+"_"+n)
		}
	}
	return names
}

// Vector flattens the composition in FeatureNames order.
func (m MultiRoomFeatures) Vector() []float64 {
	var vec []float64
	vec = append(vec, m.Target.Features.Vector()...)
	if m.Common != nil {
		vec = append(vec, m.Common.Vector()...)
	}
	for _, room := range m.sortedAdjacent() {
		vec = append(vec, room.Features.Vector()...)
	}
	return vec
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0.0
	}
	return *v
}
