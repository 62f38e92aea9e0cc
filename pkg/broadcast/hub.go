package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync/atomic"

	"github.com/edgeflare/quakebridge/pkg/metrics"
	"github.com/edgeflare/quakebridge/pkg/telemetry"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub maintains the set of connected clients and broadcasts events to them.
// The client set is owned by the Run goroutine; everything else talks to it over channels.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	connected  atomic.Int64

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins restricts the Origin header accepted on upgrade.
// Without it every origin is accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, origin)
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run serves register, unregister and broadcast requests until ctx is canceled,
// then closes every client. It must be running for Broadcast to make progress.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.setConnected()
			h.logger.Info("new client connected", zap.String("remote_addr", client.remoteAddr()))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				h.logger.Info("client disconnected", zap.String("remote_addr", client.remoteAddr()))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.remove(client)
					h.logger.Warn("client send buffer full, dropping client", zap.String("remote_addr", client.remoteAddr()))
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			h.logger.Info("push hub stopped")
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.setConnected()
}

func (h *Hub) setConnected() {
	h.connected.Store(int64(len(h.clients)))
	metrics.PushClients.Set(float64(len(h.clients)))
}

// Clients returns the number of currently registered clients.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Broadcast delivers event to every connected client. It is a no-op once the hub has stopped.
func (h *Hub) Broadcast(event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("event", event.Name), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- message:
		metrics.PushEvents.WithLabelValues(event.Name).Inc()
	case <-h.done:
	}
}

// BroadcastTopic emits the raw payload under an event named after the bus topic.
func (h *Hub) BroadcastTopic(topic, payload string) {
	h.Broadcast(Event{Name: topic, Data: payload})
}

// BroadcastAlert emits a persisted alert row as a new-alert event.
func (h *Hub) BroadcastAlert(alert telemetry.Alert) {
	h.Broadcast(Event{Name: EventNewAlert, Data: alert})
}

// ServeHTTP upgrades the request to a WebSocket and attaches the client to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		h.logger.Warn("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	client := newClient(h, conn)

	hello, _ := json.Marshal(Event{Name: EventMessage, Data: helloPayload})
	client.send <- hello

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
