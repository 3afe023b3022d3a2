package mqtt

import (
	"sync"
	"time"

	"preheat/internal/types"
)

// PublishedDecision records one decision sent through the fake client.
type PublishedDecision struct {
	DeviceID string
	Decision types.HeatingDecision
	At       time.Time
	Payload  []byte
}

// FakeClient is an in-memory EnvironmentSource and DecisionPublisher for
// tests and local development.
type FakeClient struct {
	mu        sync.Mutex
	handler   func(types.EnvironmentState)
	decisions []PublishedDecision
	closed    bool

	// SubscribeError, if set, is returned by SubscribeEnvironment.
	SubscribeError error
	// PublishError, if set, is returned by PublishDecision.
	PublishError error
}

// NewFakeClient creates an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// SubscribeEnvironment registers the handler.
func (f *FakeClient) SubscribeEnvironment(handler func(types.EnvironmentState)) error {
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

// Emit delivers one state update to the subscribed handler, simulating a
// broker message.
func (f *FakeClient) Emit(state types.EnvironmentState) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}

// PublishDecision records the decision.
func (f *FakeClient) PublishDecision(deviceID string, decision types.HeatingDecision, at time.Time) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatDecision(decision, at)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, PublishedDecision{
		DeviceID: deviceID,
		Decision: decision,
		At:       at,
		Payload:  payload,
	})
	return nil
}

// Decisions returns a copy of the recorded decisions.
func (f *FakeClient) Decisions() []PublishedDecision {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PublishedDecision(nil), f.decisions...)
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeClient) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
