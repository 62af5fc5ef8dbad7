// ABOUTME: MQTT subscriber that feeds station batches into the message handler
// ABOUTME: Auto-reconnects, subscribes at QoS 1 and shuts down idempotently

package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// ErrStopped is returned by Connect after Disconnect has been called.
var ErrStopped = errors.New("subscriber stopped")

// Config holds the broker connection settings.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string
}

// MessageHandler processes one received message.
type MessageHandler func(topic string, payload []byte)

// Subscriber receives station messages from an MQTT broker.
type Subscriber struct {
	client    paho.Client
	cfg       Config
	handler   MessageHandler
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSubscriber creates a subscriber that passes every message on cfg.Topic
// to handler. It does not connect.
func NewSubscriber(cfg Config, handler MessageHandler, logger *slog.Logger) (*Subscriber, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}
	if handler == nil {
		return nil, errors.New("mqtt message handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Subscriber{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "mqtt"),
		stopCh:  make(chan struct{}),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Resubscribe on every (re)connect; clean sessions drop subscriptions.
	opts.SetOnConnectHandler(func(c paho.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected", "broker", cfg.Broker)
		if err := s.subscribe(c); err != nil {
			s.logger.Error("mqtt subscribe failed", "topic", cfg.Topic, "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = paho.NewClient(opts)
	return s, nil
}

// Connect starts connecting to the broker and waits until the connection is
// up, ctx is done or Disconnect is called. Once connected the client keeps
// reconnecting on its own.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return ErrStopped
		default:
		}
	}
}

func (s *Subscriber) subscribe(c paho.Client) error {
	const qos = byte(1)

	token := c.Subscribe(s.cfg.Topic, qos, func(_ paho.Client, msg paho.Message) {
		s.logger.Debug("received mqtt message", "topic", msg.Topic(), "size", len(msg.Payload()))
		s.handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", s.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.cfg.Topic, err)
	}

	s.logger.Info("subscribed to mqtt topic", "topic", s.cfg.Topic, "qos", qos)
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the connection. Safe to call
// more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.Topic)
		token.WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
