package types

import (
	"reflect"
	"testing"
)

// TestCycleFeaturesVectorAlignsWithNames verifies the positional contract
// and that absent values become 0.0 only in Vector().
func TestCycleFeaturesVectorAlignsWithNames(t *testing.T) {
	f := CycleFeatures{
		CurrentTemp: 18.0,
		TargetTemp:  20.5,
		TempDelta:   2.5,
		Slope:       fptr(1.8),
		Humidity:    fptr(55.0),
		// OutdoorTemp, OutdoorHumidity, CloudCoverage absent
	}

	names := f.FeatureNames()
	vec := f.Vector()
	if len(names) != len(vec) {
		t.Fatalf("len(names)=%d != len(vec)=%d", len(names), len(vec))
	}

	wantNames := []string{
		"current_temp", "target_temp", "temp_delta", "slope",
		"outdoor_temp", "outdoor_humidity", "humidity", "cloud_coverage",
	}
	if !reflect.DeepEqual(names, wantNames) {
		t.Errorf("FeatureNames() = %v, want %v", names, wantNames)
	}

	want := []float64{18.0, 20.5, 2.5, 1.8, 0.0, 0.0, 55.0, 0.0}
	if !reflect.DeepEqual(vec, want) {
		t.Errorf("Vector() = %v, want %v", vec, want)
	}
}

// TestLaggedFeaturesColumnOrder verifies horizons are emitted per signal in
// ascending order with the cyclic hour encoding last.
func TestLaggedFeaturesColumnOrder(t *testing.T) {
	f := LaggedFeatures{
		Temperature: LagSeries{15: fptr(18.2), 180: fptr(17.1)},
		HourSin:     0.5,
		HourCos:     -0.8,
	}

	names := f.FeatureNames()
	vec := f.Vector()

	wantLen := 6*len(LagHorizonsMinutes) + 2
	if len(names) != wantLen || len(vec) != wantLen {
		t.Fatalf("got %d names / %d values, want %d", len(names), len(vec), wantLen)
	}

	if names[0] != "temperature_lag_15min" {
		t.Errorf("names[0] = %q, want temperature_lag_15min", names[0])
	}
	if names[5] != "temperature_lag_180min" {
		t.Errorf("names[5] = %q, want temperature_lag_180min", names[5])
	}
	if names[6] != "slope_lag_15min" {
		t.Errorf("names[6] = %q, want slope_lag_15min", names[6])
	}
	if names[wantLen-2] != "hour_sin" || names[wantLen-1] != "hour_cos" {
		t.Errorf("trailing names = %v, want hour_sin,hour_cos", names[wantLen-2:])
	}

	if vec[0] != 18.2 {
		t.Errorf("vec[0] = %v, want 18.2", vec[0])
	}
	if vec[1] != 0.0 {
		t.Errorf("vec[1] = %v, want 0.0 (no 30min sample)", vec[1])
	}
	if vec[5] != 17.1 {
		t.Errorf("vec[5] = %v, want 17.1", vec[5])
	}
	if vec[wantLen-2] != 0.5 || vec[wantLen-1] != -0.8 {
		t.Errorf("trailing values = %v, want [0.5 -0.8]", vec[wantLen-2:])
	}
}

// TestMultiRoomFeaturesDeterministicOrder verifies target-then-common-then-
// adjacent ordering with adjacent rooms sorted by id and prefixed.
func TestMultiRoomFeaturesDeterministicOrder(t *testing.T) {
	target := CycleFeatures{CurrentTemp: 18, TargetTemp: 20, TempDelta: 2}
	bedroom := CycleFeatures{CurrentTemp: 17, TargetTemp: 19, TempDelta: 2}
	office := CycleFeatures{CurrentTemp: 16, TargetTemp: 19, TempDelta: 3}

	m := MultiRoomFeatures{
		Target: RoomFeatures{RoomID: "living_room", Features: target},
		Adjacent: []RoomFeatures{
			{RoomID: "office", Features: office},
			{RoomID: "bedroom", Features: bedroom},
		},
	}

	names := m.FeatureNames()
	vec := m.Vector()
	if len(names) != 24 || len(vec) != 24 {
		t.Fatalf("got %d names / %d values, want 24", len(names), len(vec))
	}

	// Target fields are unprefixed and first.
	if names[0] != "current_temp" {
		t.Errorf("names[0] = %q, want current_temp", names[0])
	}
	// Adjacent rooms sorted by id: bedroom before office.
	if names[8] != "bedroom_current_temp" {
		t.Errorf("names[8] = %q, want bedroom_current_temp", names[8])
	}
	if names[16] != "office_current_temp" {
		t.Errorf("names[16] = %q, want office_current_temp", names[16])
	}
	if vec[8] != 17.0 || vec[16] != 16.0 {
		t.Errorf("adjacent values out of order: vec[8]=%v vec[16]=%v", vec[8], vec[16])
	}

	// Ordering must not depend on input slice order.
	swapped := MultiRoomFeatures{
		Target: m.Target,
		Adjacent: []RoomFeatures{
			{RoomID: "bedroom", Features: bedroom},
			{RoomID: "office", Features: office},
		},
	}
	if !reflect.DeepEqual(swapped.FeatureNames(), names) {
		t.Error("FeatureNames() depends on adjacent input order")
	}
	if !reflect.DeepEqual(swapped.Vector(), vec) {
		t.Error("Vector() depends on adjacent input order")
	}
}

// TestMultiRoomFeaturesWithCommon verifies the common bundle sits between
// target and adjacent fields.
func TestMultiRoomFeaturesWithCommon(t *testing.T) {
	m := MultiRoomFeatures{
		Target: RoomFeatures{RoomID: "living_room", Features: CycleFeatures{CurrentTemp: 18, TargetTemp: 20, TempDelta: 2}},
		Common: LaggedFeatures{HourSin: 1.0},
	}

	names := m.FeatureNames()
	if names[8] != "temperature_lag_15min" {
		t.Errorf("names[8] = %q, want first common field temperature_lag_15min", names[8])
	}
	if len(names) != 8+6*len(LagHorizonsMinutes)+2 {
		t.Errorf("len(names) = %d", len(names))
	}
}
