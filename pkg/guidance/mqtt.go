package guidance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/pipeline"
)

// ErrPublishTimeout is reported when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("guidance: publish timeout")

// Publisher is the part of mqtt.Client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes guidance JSON to a topic.
type MQTTSink struct {
	client   Publisher
	topic    string
	qos      byte
	retained bool
	timeout  time.Duration
	logger   *slog.Logger

	published atomic.Uint64
	errors    atomic.Uint64
}

// NewMQTTSink creates a sink publishing to topic.
func NewMQTTSink(client Publisher, topic string, qos byte, retained bool) *MQTTSink {
	return &MQTTSink{
		client:   client,
		topic:    topic,
		qos:      qos,
		retained: retained,
		timeout:  2 * time.Second,
		logger:   log.Component("guidance.mqtt").With("topic", topic),
	}
}

// OnGuidance implements pipeline.GuidanceSink.
func (s *MQTTSink) OnGuidance(g pipeline.Guidance) {
	if err := s.Publish(g); err != nil {
		s.logger.Warn("publish guidance", "seq", g.Seq, "error", err)
	}
}

// Publish sends g and waits for the broker.
func (s *MQTTSink) Publish(g pipeline.Guidance) error {
	payload, err := json.Marshal(g)
	if err != nil {
		s.errors.Add(1)
		return fmt.Errorf("guidance: marshal: %w", err)
	}

	token := s.client.Publish(s.topic, s.qos, s.retained, payload)
	if !token.WaitTimeout(s.timeout) {
		s.errors.Add(1)
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		s.errors.Add(1)
		return fmt.Errorf("guidance: publish: %w", err)
	}

	s.published.Add(1)
	s.logger.Debug("guidance published", "seq", g.Seq, "size", len(payload))
	return nil
}

// Published returns the number of acknowledged messages.
func (s *MQTTSink) Published() uint64 {
	return s.published.Load()
}

// Errors returns the number of failed publishes.
func (s *MQTTSink) Errors() uint64 {
	return s.errors.Load()
}

// ConnectMQTT connects to broker with automatic reconnects. An empty
// clientID gets a random one.
func ConnectMQTT(ctx context.Context, broker, clientID string) (mqtt.Client, error) {
	logger := log.Component("guidance.mqtt")
	if clientID == "" {
		clientID = "wayfind-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", "broker", broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, reconnecting", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	timeout := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("guidance: mqtt connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("guidance: mqtt connect to %s: %w", broker, err)
	}
	return client, nil
}
