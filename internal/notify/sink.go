package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// DefaultTopicPrefix is the MQTT topic prefix; the kind is appended.
const DefaultTopicPrefix = "sundose/notifications"

// LogSink writes alerts to the log.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs every alert.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "notify_sink").Logger()}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, n Notification) error {
	s.logger.Info().
		Str("id", n.ID).
		Str("kind", string(n.Kind)).
		Str("title", n.Title).
		Str("body", n.Body).
		Time("at", n.At).
		Msg("notification")
	return nil
}

// Publisher is the subset of mqtt.Client used for delivery.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Timeout     time.Duration
}

// MQTTSink publishes alerts as JSON to {prefix}/{kind}.
type MQTTSink struct {
	client  Publisher
	prefix  string
	timeout time.Duration
	closer  func()
}

// NewMQTTSink connects to the broker and returns a sink.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "sundose"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", token.Error())
	}

	sink := NewMQTTSinkWithClient(client, cfg.TopicPrefix, cfg.Timeout)
	sink.closer = func() { client.Disconnect(250) }
	return sink, nil
}

// NewMQTTSinkWithClient wraps an existing connection.
func NewMQTTSinkWithClient(client Publisher, prefix string, timeout time.Duration) *MQTTSink {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTSink{client: client, prefix: prefix, timeout: timeout}
}

// Topic returns the topic alerts of the given kind are published to.
func (s *MQTTSink) Topic(kind Kind) string {
	return s.prefix + "/" + string(kind)
}

// Deliver implements Sink.
func (s *MQTTSink) Deliver(_ context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	token := s.client.Publish(s.Topic(n.Kind), 1, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("publishing %s: timed out", n.Kind)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing %s: %w", n.Kind, err)
	}
	return nil
}

// Close disconnects from the broker when the sink owns the connection.
func (s *MQTTSink) Close() {
	if s.closer != nil {
		s.closer()
	}
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*MQTTSink)(nil)
)
