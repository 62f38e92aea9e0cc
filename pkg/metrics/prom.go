package metrics

import (
	"cmp"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quakebridge_messages_received_total",
			Help: "Total number of bus messages received by topic",
		},
		[]string{"topic"},
	)

	PayloadsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quakebridge_payloads_dropped_total",
			Help: "Total number of bus messages not persisted, by topic and reason",
		},
		[]string{"topic", "reason"},
	)

	RowsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quakebridge_rows_inserted_total",
			Help: "Total number of rows inserted by table",
		},
		[]string{"table"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quakebridge_store_errors_total",
			Help: "Total number of data-access failures by operation",
		},
		[]string{"op"},
	)

	BusConnectionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quakebridge_bus_connection_events_total",
			Help: "MQTT connection state changes (connected, lost, reconnecting)",
		},
		[]string{"event"},
	)

	PushClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quakebridge_push_clients",
			Help: "Number of currently connected push-channel clients",
		},
	)

	PushEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quakebridge_push_events_total",
			Help: "Total number of events fanned out to push-channel clients, by event name",
		},
		[]string{"event"},
	)

	RelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quakebridge_relay_errors_total",
			Help: "Total number of failed relay publishes by sink",
		},
		[]string{"sink"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quakebridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status code",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "code"},
	)
)

type PromServerOpts struct {
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
	Logger            *zap.Logger
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

func mergeOptions(opts *PromServerOpts) PromServerOpts {
	effective := defaultPrometheusServerOptions()
	if opts != nil {
		effective.Addr = cmp.Or(opts.Addr, effective.Addr)
		effective.Path = cmp.Or(opts.Path, effective.Path)
		effective.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effective.ShutdownTimeout)
		effective.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effective.ReadHeaderTimeout)
		effective.Logger = opts.Logger
	}
	if effective.Logger == nil {
		effective.Logger = zap.NewNop()
	}
	return effective
}

// StartPrometheusServer starts a Prometheus metrics server with the given options
// The server gracefully shutdown when the provided context is canceled
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	effectiveOpts := mergeOptions(opts)
	logger := effectiveOpts.Logger

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting prometheus metrics server", zap.String("addr", effectiveOpts.Addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down metrics server", zap.Error(err))
		}

		select {
		case <-serverClosed:
			logger.Info("metrics server shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("metrics server shutdown timed out")
		}
	}()
}
