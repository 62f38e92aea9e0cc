// Package ingest turns bus messages into persisted rows and push events.
package ingest

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/edgeflare/quakebridge/pkg/metrics"
	"github.com/edgeflare/quakebridge/pkg/telemetry"
	"go.uber.org/zap"
)

// Store is the persistence the handler writes through.
type Store interface {
	InsertAlert(ctx context.Context, data string, ts time.Time) (int64, error)
	AlertByID(ctx context.Context, id int64) (telemetry.Alert, bool, error)
	InsertMagnitude(ctx context.Context, value float64, ts time.Time) (int64, error)
	InsertHeartbeat(ctx context.Context, value float64, ts time.Time) (int64, error)
}

// Broadcaster pushes events to connected clients.
type Broadcaster interface {
	BroadcastTopic(topic, payload string)
	BroadcastAlert(alert telemetry.Alert)
}

// Relay mirrors handled messages to secondary systems.
type Relay interface {
	Publish(ctx context.Context, msg telemetry.Message) error
}

// TopicFunc persists one message of a specific topic.
type TopicFunc func(ctx context.Context, msg telemetry.Message)

// Handler dispatches messages by topic. It keeps no state between messages.
type Handler struct {
	store  Store
	hub    Broadcaster
	relay  Relay
	now    func() time.Time
	logger *zap.Logger

	mu     sync.RWMutex
	topics map[string]TopicFunc
}

type Option func(*Handler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRelay mirrors every handled message to r.
func WithRelay(r Relay) Option {
	return func(h *Handler) { h.relay = r }
}

// NewHandler returns a handler with the alert, magnitude and heartbeat topics registered.
func NewHandler(store Store, hub Broadcaster, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		hub:    hub,
		now:    time.Now,
		logger: zap.NewNop(),
		topics: make(map[string]TopicFunc),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.Register(telemetry.TopicAlerts, h.handleAlert)
	h.Register(telemetry.TopicMagnitude, h.handleReading(telemetry.TableMagnitude, store.InsertMagnitude))
	h.Register(telemetry.TopicHeartbeat, h.handleReading(telemetry.TableHeartbeat, store.InsertHeartbeat))
	return h
}

// Register binds fn to topic, replacing any previous binding.
func (h *Handler) Register(topic string, fn TopicFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.topics[topic] = fn
}

// Topics returns the registered topics, sorted.
func (h *Handler) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.topics))
}

// Handle processes one trimmed message: raw broadcast first, then persistence, then relays.
// Failures are logged and counted; nothing is returned to the transport.
func (h *Handler) Handle(ctx context.Context, topic, payload string) {
	// an issued insert runs to completion even while the process shuts down
	ctx = context.WithoutCancel(ctx)

	metrics.MessagesReceived.WithLabelValues(topic).Inc()
	h.logger.Info("received message", zap.String("topic", topic), zap.String("payload", payload))

	h.hub.BroadcastTopic(topic, payload)

	msg := telemetry.Message{
		Topic:      topic,
		Payload:    payload,
		ReceivedAt: h.now().UTC().Truncate(time.Second),
	}

	h.mu.RLock()
	fn, ok := h.topics[topic]
	h.mu.RUnlock()

	if ok {
		fn(ctx, msg)
	} else {
		metrics.PayloadsDropped.WithLabelValues(topic, "unknown_topic").Inc()
		h.logger.Info("no specific table for topic", zap.String("topic", topic))
	}

	if h.relay != nil {
		if err := h.relay.Publish(ctx, msg); err != nil {
			h.logger.Warn("relay publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

func (h *Handler) handleAlert(ctx context.Context, msg telemetry.Message) {
	id, err := h.store.InsertAlert(ctx, msg.Payload, msg.ReceivedAt)
	if err != nil {
		h.storeFailure("insert_alert", msg, err)
		return
	}
	metrics.RowsInserted.WithLabelValues(telemetry.TableAlerts).Inc()
	h.logger.Debug("data saved to database", zap.String("topic", msg.Topic), zap.Int64("id", id))

	alert, found, err := h.store.AlertByID(ctx, id)
	if err != nil {
		h.storeFailure("reread_alert", msg, err)
		return
	}
	if !found {
		h.logger.Warn("inserted alert not found on re-read", zap.Int64("id", id))
		return
	}
	h.hub.BroadcastAlert(alert)
}

func (h *Handler) handleReading(table string, insert func(context.Context, float64, time.Time) (int64, error)) TopicFunc {
	return func(ctx context.Context, msg telemetry.Message) {
		reading := ParseReading(msg.Payload)
		if !reading.OK {
			metrics.PayloadsDropped.WithLabelValues(msg.Topic, "not_numeric").Inc()
			h.logger.Info("discarding non-numeric payload",
				zap.String("topic", msg.Topic),
				zap.String("payload", msg.Payload))
			return
		}

		id, err := insert(ctx, reading.Value, msg.ReceivedAt)
		if err != nil {
			h.storeFailure("insert_"+table, msg, err)
			return
		}
		metrics.RowsInserted.WithLabelValues(table).Inc()
		h.logger.Debug("data saved to database", zap.String("topic", msg.Topic), zap.Int64("id", id))
	}
}

func (h *Handler) storeFailure(op string, msg telemetry.Message, err error) {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	h.logger.Error("database error",
		zap.String("op", op),
		zap.String("topic", msg.Topic),
		zap.Error(err))
}
