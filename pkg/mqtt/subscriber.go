package mqtt

import (
	"context"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgeflare/quakebridge/pkg/metrics"
	"go.uber.org/zap"
)

// MessageHandler receives the whitespace-trimmed payload of a telemetry message.
type MessageHandler func(ctx context.Context, topic, payload string)

// subscribeFunc is the part of mqtt.Client the subscriber needs on (re)connect.
type subscribeFunc interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Subscriber keeps a subscription to a fixed set of topics alive across reconnects.
type Subscriber struct {
	opts    *ClientOptions
	handler MessageHandler
	topics  []string
	logger  *zap.Logger

	connectTimeout time.Duration

	mu     sync.Mutex
	ctx    context.Context
	client *Client
}

// NewSubscriber returns a subscriber for topics. opts may be nil for the defaults.
func NewSubscriber(opts *ClientOptions, handler MessageHandler, logger *zap.Logger, topics ...string) *Subscriber {
	if opts == nil {
		opts = DefaultClientOptions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		opts:           opts,
		handler:        handler,
		topics:         topics,
		logger:         logger,
		connectTimeout: 5 * time.Second,
		ctx:            context.Background(),
	}
}

// Start connects to the broker. Subscriptions are (re)issued from the on-connect
// handler, so every reconnect restores them. Start does not fail when the broker is
// unreachable; the client keeps retrying every ReconnectInterval.
func (s *Subscriber) Start(ctx context.Context) error {
	opts := *s.opts
	opts.OnConnect = func(c mqtt.Client) {
		metrics.BusConnectionEvents.WithLabelValues("connected").Inc()
		s.logger.Info("connected to MQTT broker")
		s.subscribeAll(c)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		metrics.BusConnectionEvents.WithLabelValues("lost").Inc()
		s.logger.Warn("MQTT connection lost", zap.Error(err))
	}
	opts.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		metrics.BusConnectionEvents.WithLabelValues("reconnecting").Inc()
		s.logger.Info("reconnecting to MQTT broker")
	}

	client, err := NewClient(&opts, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ctx = ctx
	s.client = client
	s.mu.Unlock()

	return client.Connect(s.connectTimeout)
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}

// Connected reports whether the subscriber currently holds a broker connection.
func (s *Subscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client.IsConnected()
}

// subscribeAll subscribes to every topic. A failed subscription is logged and does not
// prevent the others.
func (s *Subscriber) subscribeAll(c subscribeFunc) {
	for _, topic := range s.topics {
		token := c.Subscribe(topic, s.opts.QoS, s.onMessage)
		if !token.WaitTimeout(s.connectTimeout) {
			metrics.BusConnectionEvents.WithLabelValues("subscribe_timeout").Inc()
			s.logger.Error("subscribe timed out", zap.String("topic", topic))
			continue
		}
		if err := token.Error(); err != nil {
			metrics.BusConnectionEvents.WithLabelValues("subscribe_error").Inc()
			s.logger.Error("subscribe failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		s.logger.Info("subscribed", zap.String("topic", topic))
	}
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.handler(ctx, msg.Topic(), strings.TrimSpace(string(msg.Payload())))
}
