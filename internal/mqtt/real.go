package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"preheat/internal/config"
	"preheat/internal/types"
)

// publishTimeout bounds how long a single publish may block.
const publishTimeout = 5 * time.Second

// RealClient talks to an actual MQTT broker. It implements both
// EnvironmentSource and DecisionPublisher.
type RealClient struct {
	client paho.Client
	cfg    config.MQTTConfig
	logger *slog.Logger
}

// NewRealClient connects to the configured broker. The connection
// auto-reconnects; paho re-establishes subscriptions on reconnect because
// ResumeSubs is enabled.
func NewRealClient(cfg config.MQTTConfig, logger *slog.Logger) (*RealClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetResumeSubs(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password.Unmask())
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "mqtt broker connection timed out", nil)
	}
	if err := token.Error(); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to connect to mqtt broker", err)
	}

	return &RealClient{client: client, cfg: cfg, logger: logger}, nil
}

// SubscribeEnvironment subscribes to every device's environment topic under
// the prefix and delivers decoded states to the handler. Malformed messages
// are logged and dropped.
func (c *RealClient) SubscribeEnvironment(handler func(types.EnvironmentState)) error {
	filter := EnvironmentWildcard(c.cfg.TopicPrefix)

	token := c.client.Subscribe(filter, c.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		state, err := ParseEnvironment(msg.Topic(), msg.Payload())
		if err != nil {
			c.logger.Warn("dropping malformed environment message",
				"topic", msg.Topic(),
				"error", err,
			)
			return
		}
		handler(state)
	})
	if !token.WaitTimeout(publishTimeout) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "mqtt subscribe timed out", nil)
	}
	if err := token.Error(); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("failed to subscribe to %s", filter), err)
	}
	return nil
}

// PublishDecision sends one decision to the device's decision topic.
func (c *RealClient) PublishDecision(deviceID string, decision types.HeatingDecision, at time.Time) error {
	payload, err := FormatDecision(decision, at)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode decision payload", err)
	}

	token := c.client.Publish(DecisionTopic(c.cfg.TopicPrefix, deviceID), c.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "mqtt publish timed out", nil)
	}
	if err := token.Error(); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to publish decision", err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000)
	return nil
}
