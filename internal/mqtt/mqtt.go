// Package mqtt connects the anticipation controller to the broker: inbound
// environment-state updates trigger recalculation ticks, outbound heating
// decisions are published for downstream automation.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"preheat/internal/types"
)

// Topic layout under the configured prefix:
//
//	<prefix>/<device_id>/environment   inbound state updates (sensor → controller)
//	<prefix>/<device_id>/decision      outbound decisions (controller → automation)

// EnvironmentTopic returns the inbound topic for one device.
func EnvironmentTopic(prefix, deviceID string) string {
	return prefix + "/" + deviceID + "/environment"
}

// EnvironmentWildcard returns the subscription filter matching every device's
// environment topic under the prefix.
func EnvironmentWildcard(prefix string) string {
	return prefix + "/+/environment"
}

// DecisionTopic returns the outbound topic for one device.
func DecisionTopic(prefix, deviceID string) string {
	return prefix + "/" + deviceID + "/decision"
}

// DeviceFromTopic extracts the device id from a "<prefix>/<device>/<leaf>"
// topic, or "" when the topic does not match the layout.
func DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}

// EnvironmentSource delivers environment-state updates to a handler.
type EnvironmentSource interface {
	// SubscribeEnvironment registers the handler for every device's state
	// updates. Malformed payloads are dropped, not delivered.
	SubscribeEnvironment(handler func(types.EnvironmentState)) error

	// Close disconnects from the broker.
	Close() error
}

// DecisionPublisher publishes controller decisions.
type DecisionPublisher interface {
	// PublishDecision sends one decision for a device to the broker.
	PublishDecision(deviceID string, decision types.HeatingDecision, at time.Time) error

	// Close disconnects from the broker.
	Close() error
}

// environmentPayload is the wire format of an inbound state update.
type environmentPayload struct {
	Timestamp     time.Time `json:"timestamp"`
	CurrentTemp   float64   `json:"current_temp"`
	CurrentSlope  *float64  `json:"current_slope,omitempty"`
	OutdoorTemp   *float64  `json:"outdoor_temp,omitempty"`
	Humidity      *float64  `json:"humidity,omitempty"`
	CloudCoverage *float64  `json:"cloud_coverage,omitempty"`
}

// ParseEnvironment decodes one inbound message into an EnvironmentState.
// The device identity comes from the topic, not the payload.
func ParseEnvironment(topic string, payload []byte) (types.EnvironmentState, error) {
	deviceID := DeviceFromTopic(topic)
	if deviceID == "" {
		return types.EnvironmentState{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidDevice,
			"environment topic does not carry a device id",
			nil,
			map[string]any{"topic": topic},
		)
	}

	var wire environmentPayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		return types.EnvironmentState{}, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"malformed environment payload",
			err,
		)
	}
	if wire.Timestamp.IsZero() {
		return types.EnvironmentState{}, types.NewAppError(
			types.ErrCodeValidationNaiveTimestamp,
			"environment payload timestamp is missing",
			nil,
		)
	}

	return types.EnvironmentState{
		DeviceID:      deviceID,
		Timestamp:     wire.Timestamp.UTC(),
		CurrentTemp:   wire.CurrentTemp,
		CurrentSlope:  wire.CurrentSlope,
		OutdoorTemp:   wire.OutdoorTemp,
		Humidity:      wire.Humidity,
		CloudCoverage: wire.CloudCoverage,
	}, nil
}

// decisionPayload is the wire format of an outbound decision.
type decisionPayload struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
}

// FormatDecision encodes one decision for publishing.
func FormatDecision(decision types.HeatingDecision, at time.Time) ([]byte, error) {
	return json.Marshal(decisionPayload{
		Timestamp: at.UTC().Format(time.RFC3339),
		Action:    string(decision.Action),
		Reason:    decision.Reason,
	})
}
