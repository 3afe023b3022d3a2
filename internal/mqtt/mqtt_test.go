package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"preheat/internal/types"
)

func TestTopicLayout(t *testing.T) {
	if got := EnvironmentTopic("preheat", "dev1"); got != "preheat/dev1/environment" {
		t.Errorf("unexpected environment topic: %s", got)
	}
	if got := DecisionTopic("preheat", "dev1"); got != "preheat/dev1/decision" {
		t.Errorf("unexpected decision topic: %s", got)
	}
	if got := EnvironmentWildcard("preheat"); got != "preheat/+/environment" {
		t.Errorf("unexpected wildcard: %s", got)
	}
}

func TestDeviceFromTopic(t *testing.T) {
	cases := map[string]string{
		"preheat/dev1/environment": "dev1",
		"preheat/dev1/decision":    "dev1",
		"dev1":                     "",
		"":                         "",
	}
	for topic, want := range cases {
		if got := DeviceFromTopic(topic); got != want {
			t.Errorf("DeviceFromTopic(%q) = %q, want %q", topic, got, want)
		}
	}
}

func TestParseEnvironment(t *testing.T) {
	payload := []byte(`{
		"timestamp": "2024-01-31T06:00:00Z",
		"current_temp": 18.4,
		"current_slope": 2.1,
		"humidity": 62.0
	}`)

	state, err := ParseEnvironment("preheat/livingroom/environment", payload)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if state.DeviceID != "livingroom" {
		t.Errorf("expected device from topic, got %s", state.DeviceID)
	}
	if state.CurrentTemp != 18.4 {
		t.Errorf("unexpected current temp: %v", state.CurrentTemp)
	}
	if state.CurrentSlope == nil || *state.CurrentSlope != 2.1 {
		t.Errorf("unexpected slope: %v", state.CurrentSlope)
	}
	if state.OutdoorTemp != nil {
		t.Error("absent outdoor temp must stay nil")
	}
	if !state.Timestamp.Equal(time.Date(2024, 1, 31, 6, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp: %v", state.Timestamp)
	}
}

func TestParseEnvironmentRejections(t *testing.T) {
	cases := []struct {
		name    string
		topic   string
		payload string
		code    types.ErrorCode
	}{
		{"bad topic", "environment", `{"timestamp":"2024-01-31T06:00:00Z","current_temp":18}`, types.ErrCodeValidationInvalidDevice},
		{"malformed json", "preheat/dev/environment", `not json`, types.ErrCodeValidationMissingField},
		{"missing timestamp", "preheat/dev/environment", `{"current_temp":18}`, types.ErrCodeValidationNaiveTimestamp},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEnvironment(tc.topic, []byte(tc.payload))
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T: %v", err, err)
			}
			if appErr.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, appErr.Code)
			}
		})
	}
}

func TestFormatDecision(t *testing.T) {
	at := time.Date(2024, 1, 31, 6, 30, 0, 0, time.UTC)
	payload, err := FormatDecision(types.HeatingDecision{
		Action: types.ActionStartHeating,
		Reason: "anticipated start reached",
	}, at)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded["action"] != "start_heating" {
		t.Errorf("unexpected action: %s", decoded["action"])
	}
	if decoded["timestamp"] != "2024-01-31T06:30:00Z" {
		t.Errorf("unexpected timestamp: %s", decoded["timestamp"])
	}
}

func TestFakeClientRoundTrip(t *testing.T) {
	fake := NewFakeClient()

	var received []types.EnvironmentState
	if err := fake.SubscribeEnvironment(func(s types.EnvironmentState) {
		received = append(received, s)
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	fake.Emit(types.EnvironmentState{DeviceID: "dev1", CurrentTemp: 19.0})
	if len(received) != 1 || received[0].DeviceID != "dev1" {
		t.Fatalf("handler did not receive the emitted state: %v", received)
	}

	at := time.Now().UTC()
	if err := fake.PublishDecision("dev1", types.HeatingDecision{Action: types.ActionMonitor}, at); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	decisions := fake.Decisions()
	if len(decisions) != 1 || decisions[0].Decision.Action != types.ActionMonitor {
		t.Fatalf("unexpected recorded decisions: %v", decisions)
	}

	if err := fake.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !fake.Closed() {
		t.Error("expected Closed() after Close()")
	}
}
