package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTConfig configures the MQTT emitter.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"` // host:port or a full URL
	ClientID       string        `yaml:"client_id"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// DefaultMQTTConfig returns defaults for a local broker.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:         "localhost:1883",
		TopicPrefix:    "lumos",
		QoS:            1,
		ConnectTimeout: 5 * time.Second,
		PublishTimeout: 2 * time.Second,
	}
}

// MQTT publishes events to <prefix>/<type>.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// MQTTOption configures an MQTT emitter.
type MQTTOption func(*MQTT)

// WithMQTTClient uses an existing client instead of dialing cfg.Broker.
func WithMQTTClient(c mqtt.Client) MQTTOption {
	return func(m *MQTT) { m.client = c }
}

// WithMQTTLogger sets the logger.
func WithMQTTLogger(l *slog.Logger) MQTTOption {
	return func(m *MQTT) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMQTT creates an MQTT emitter. Call Connect before publishing.
func NewMQTT(cfg MQTTConfig, opts ...MQTTOption) *MQTT {
	def := DefaultMQTTConfig()
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = def.TopicPrefix
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "lumos-" + uuid.NewString()[:8]
	}

	m := &MQTT{
		cfg:       cfg,
		logger:    slog.Default(),
		published: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "emitter", "backend", "mqtt")
	return m
}

// Connect dials the broker. The client reconnects on its own after a lost
// connection.
func (m *MQTT) Connect(ctx context.Context) error {
	if m.client == nil {
		m.client = mqtt.NewClient(m.clientOptions())
	}
	if m.client.IsConnected() {
		m.setConnected(true)
		return nil
	}

	m.logger.Info("connecting to mqtt broker", "broker", m.cfg.Broker)

	token := m.client.Connect()
	if err := waitToken(ctx, token, m.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", m.cfg.Broker, err)
	}
	m.setConnected(true)
	return nil
}

func (m *MQTT) clientOptions() *mqtt.ClientOptions {
	broker := m.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		m.setConnected(true)
		m.logger.Info("mqtt connection established", "broker", m.cfg.Broker, "client_id", m.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.setConnected(false)
		m.logger.Warn("mqtt connection lost, will auto-reconnect", "broker", m.cfg.Broker, "error", err)
	}
	return opts
}

// Topic returns the topic for an event type.
func (m *MQTT) Topic(t EventType) string {
	return m.cfg.TopicPrefix + "/" + string(t)
}

// Publish sends ev as JSON. It waits for the broker acknowledgement up to
// PublishTimeout.
func (m *MQTT) Publish(ctx context.Context, ev Event) error {
	if !m.isConnected() {
		m.fail()
		return ErrNotConnected
	}

	payload, err := ev.JSON()
	if err != nil {
		m.fail()
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	topic := m.Topic(ev.Type)
	token := m.client.Publish(topic, m.cfg.QoS, false, payload)
	if err := waitToken(ctx, token, m.cfg.PublishTimeout); err != nil {
		m.fail()
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}

	m.mu.Lock()
	m.published[topic]++
	m.mu.Unlock()

	m.logger.Debug("event published", "topic", topic, "qos", m.cfg.QoS, "size", len(payload))
	return nil
}

// Close disconnects with a short grace period.
func (m *MQTT) Close() error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
		m.logger.Info("mqtt disconnected")
	}
	m.setConnected(false)
	return nil
}

// Stats returns publish counters.
func (m *MQTT) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	published := make(map[string]uint64, len(m.published))
	for k, v := range m.published {
		published[k] = v
	}
	return Stats{Connected: m.connected, Published: published, Errors: m.errors}
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *MQTT) isConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MQTT) fail() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Emitter = (*MQTT)(nil)
