// Package transport provides the publish/subscribe abstraction used by all
// agents: a broker-backed MQTT implementation and an in-process fallback bus
// with bounded dispatch. Selection happens once at agent startup; a broker
// connect failure silently degrades to the fallback bus.
package transport

import (
	"go.uber.org/zap"

	"signalzero/internal/config"
)

// Handler consumes one message payload. Handlers must tolerate concurrent
// invocation; the transport never serializes deliveries across topics.
type Handler func(payload []byte)

// Transport is the minimal pub/sub contract shared by both implementations.
type Transport interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// Unsubscriber is an optional capability: transports that can drop a topic's
// handlers implement it. Agents use it during shutdown.
type Unsubscriber interface {
	Unsubscribe(topic string) error
}

// Mode reports which implementation an agent ended up on.
type Mode string

const (
	ModeBroker   Mode = "broker"
	ModeFallback Mode = "fallback"
)

// Connect probes the broker once (with the configured retry budget) and
// returns the transport to use. It never fails: any broker problem yields
// the shared fallback bus. No reconnection is attempted mid-session.
func Connect(cfg config.BrokerConfig, fallback *MemoryBus, logger *zap.Logger) (Transport, Mode) {
	if logger == nil {
		logger = zap.NewNop()
	}

	attempts := cfg.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		broker, err := DialMQTT(cfg, logger)
		if err == nil {
			logger.Info("connected to broker",
				zap.String("host", cfg.Host),
				zap.String("vpn", cfg.VPN))
			return newDegradingTransport(broker, fallback, logger), ModeBroker
		}
		lastErr = err
	}

	logger.Warn("broker unreachable, using in-process fallback transport",
		zap.String("host", cfg.Host),
		zap.Error(lastErr))
	return fallback, ModeFallback
}

// degradingTransport routes through the broker but degrades an individual
// failed publish to the fallback bus without flipping the agent's mode.
// Subscriptions are registered on both so degraded publishes still reach
// local subscribers.
type degradingTransport struct {
	broker   Transport
	fallback *MemoryBus
	logger   *zap.Logger
}

func newDegradingTransport(broker Transport, fallback *MemoryBus, logger *zap.Logger) *degradingTransport {
	return &degradingTransport{broker: broker, fallback: fallback, logger: logger}
}

func (d *degradingTransport) Publish(topic string, payload []byte) error {
	if err := d.broker.Publish(topic, payload); err != nil {
		d.logger.Warn("broker publish failed, degrading to fallback bus",
			zap.String("topic", topic),
			zap.Error(err))
		return d.fallback.Publish(topic, payload)
	}
	return nil
}

func (d *degradingTransport) Subscribe(topic string, handler Handler) error {
	if err := d.broker.Subscribe(topic, handler); err != nil {
		return err
	}
	return d.fallback.Subscribe(topic, handler)
}

func (d *degradingTransport) Unsubscribe(topic string) error {
	var err error
	if u, ok := d.broker.(Unsubscriber); ok {
		err = u.Unsubscribe(topic)
	}
	_ = d.fallback.Unsubscribe(topic)
	return err
}

// Close releases the broker connection. The fallback bus is shared between
// agents and stays open.
func (d *degradingTransport) Close() error {
	return d.broker.Close()
}
