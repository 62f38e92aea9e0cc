// Package api serves the dashboard page, the read-only telemetry endpoints and the push
// channel endpoint.
package api

import (
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/edgeflare/quakebridge/pkg/httputil"
	"github.com/edgeflare/quakebridge/pkg/httputil/middleware"
	"github.com/edgeflare/quakebridge/pkg/telemetry"
	"go.uber.org/zap"
)

//go:embed web
var webFS embed.FS

// Store is the read side of the telemetry store.
type Store interface {
	LatestAlerts(ctx context.Context, limit int) ([]telemetry.Alert, error)
	LatestMagnitude(ctx context.Context, limit int) ([]telemetry.MagnitudeReading, error)
	LatestHeartbeat(ctx context.Context, limit int) ([]telemetry.HeartbeatReading, error)
	Latest(ctx context.Context) (telemetry.Snapshot, error)
}

// Pinger reports database reachability. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BrokerStatus reports whether the telemetry subscriber holds a broker connection.
type BrokerStatus interface {
	Connected() bool
}

type clientCounter interface {
	Clients() int
}

// Server owns the HTTP handlers. Register them on a router with Register.
type Server struct {
	store  Store
	health Pinger
	broker BrokerStatus
	push   http.Handler
	static fs.FS
	index  fs.FS
	logger *zap.Logger
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealth enables GET /healthz backed by p.
func WithHealth(p Pinger) Option {
	return func(s *Server) { s.health = p }
}

// WithBroker adds the broker connection state to GET /healthz.
func WithBroker(b BrokerStatus) Option {
	return func(s *Server) { s.broker = b }
}

// WithPush mounts the push-channel handler at GET /ws. A handler with a Clients() int
// method also has its client count reported by GET /healthz.
func WithPush(h http.Handler) Option {
	return func(s *Server) { s.push = h }
}

// WithStatic serves public assets from fsys for any GET path no other route claims.
func WithStatic(fsys fs.FS) Option {
	return func(s *Server) { s.static = fsys }
}

// NewServer returns handlers reading from store.
func NewServer(store Store, opts ...Option) *Server {
	index, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err) // embedded at build time
	}
	s := &Server{
		store:  store,
		index:  index,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds every route to r. Middleware already added to r applies to all of them.
func (s *Server) Register(r *httputil.Router) {
	r.Handle("GET /{$}", middleware.Static(s.index))
	r.HandleFunc("GET /test", s.handleTest)

	api := r.Group("/api")
	api.HandleFunc("GET /alerts", s.handleAlerts)
	api.HandleFunc("GET /heartbeat", s.handleHeartbeat)
	api.HandleFunc("GET /magnitude", s.handleMagnitude)
	api.HandleFunc("GET /latest-data", s.handleLatestData)
	api.HandleFunc("GET /historical-data", s.handleHistoricalData)
	api.HandleFunc("GET /all-alerts", s.handleAllAlerts)

	if s.push != nil {
		r.Handle("GET /ws", s.push)
	}
	if s.health != nil {
		r.HandleFunc("GET /healthz", s.handleHealth)
	}
	if s.static != nil {
		r.Handle("GET /", middleware.Static(s.static))
	}
}
