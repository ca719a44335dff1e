package transport

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"signalzero/internal/config"
)

// Direct messaging: no persistence, no redelivery. Matches the broker's
// direct (non-guaranteed) message class used for agent request/response.
const mqttQoS = 0

// MQTTTransport is the broker-backed transport. One client carries both the
// publisher and subscriber roles; subscriptions are exact-topic.
type MQTTTransport struct {
	client  mqtt.Client
	timeout time.Duration
	logger  *zap.Logger
}

// DialMQTT connects to the broker with basic-auth credentials. The message
// VPN is carried as username@vpn. Reconnection is disabled: transport
// selection is a one-shot probe at agent startup.
func DialMQTT(cfg config.BrokerConfig, logger *zap.Logger) (*MQTTTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	username := cfg.Username
	if cfg.VPN != "" && cfg.VPN != "default" {
		username = fmt.Sprintf("%s@%s", cfg.Username, cfg.VPN)
	}

	timeout := cfg.ConnectTimeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Host).
		SetClientID(fmt.Sprintf("%s-%s", cfg.ClientNamePrefix, uuid.NewString()[:8])).
		SetUsername(username).
		SetPassword(cfg.Password).
		SetConnectTimeout(timeout).
		SetAutoReconnect(false).
		SetCleanSession(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: timeout after %s", cfg.Host, timeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Host, err)
	}

	return &MQTTTransport{client: client, timeout: timeout, logger: logger}, nil
}

// Publish sends payload to topic. A publish failure is returned to the
// caller so the single publish can degrade to the fallback bus.
func (m *MQTTTransport) Publish(topic string, payload []byte) error {
	token := m.client.Publish(topic, mqttQoS, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("mqtt publish to %s: timeout after %s", topic, m.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for exact-topic delivery. The paho client
// invokes callbacks on its own goroutines, so a slow handler does not stall
// other subscriptions.
func (m *MQTTTransport) Subscribe(topic string, handler Handler) error {
	token := m.client.Subscribe(topic, mqttQoS, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("mqtt subscribe to %s: timeout after %s", topic, m.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe to %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe drops the topic subscription.
func (m *MQTTTransport) Unsubscribe(topic string) error {
	token := m.client.Unsubscribe(topic)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("mqtt unsubscribe from %s: timeout after %s", topic, m.timeout)
	}
	return token.Error()
}

// Close disconnects from the broker, allowing a short quiesce for in-flight
// messages.
func (m *MQTTTransport) Close() error {
	m.client.Disconnect(250)
	return nil
}
