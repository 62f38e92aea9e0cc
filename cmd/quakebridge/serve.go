package quakebridge

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"github.com/edgeflare/quakebridge/pkg/api"
	"github.com/edgeflare/quakebridge/pkg/broadcast"
	"github.com/edgeflare/quakebridge/pkg/httputil"
	"github.com/edgeflare/quakebridge/pkg/httputil/middleware"
	"github.com/edgeflare/quakebridge/pkg/ingest"
	"github.com/edgeflare/quakebridge/pkg/metrics"
	"github.com/edgeflare/quakebridge/pkg/mqtt"
	pg "github.com/edgeflare/quakebridge/pkg/pgx"
	"github.com/edgeflare/quakebridge/pkg/relay"
	"github.com/edgeflare/quakebridge/pkg/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge",
	Long: `Connects to PostgreSQL and the MQTT broker, then serves the dashboard, the JSON API and the
WebSocket push channel until interrupted.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("http.listenAddr", "l", "", "HTTP listen address (default :3002)")
	f.String("http.staticDir", "", "directory of public assets served under /")
	f.Int("http.maxConns", 0, "maximum simultaneous HTTP connections, push clients included (0 = unlimited)")
	f.StringSlice("http.allowedOrigins", nil, "origins allowed for CORS and WebSocket upgrades; \"*\" allows any (default: no CORS headers, any WebSocket origin)")
	f.StringSlice("mqtt.servers", nil, "MQTT broker URLs (default tcp://broker.emqx.io:1883)")
	f.String("mqtt.clientID", "", "MQTT client id (default random)")
	f.Bool("metrics.enabled", true, "serve Prometheus metrics")
	f.String("metrics.listenAddr", "", "Prometheus metrics listen address (default :9100)")
	f.Bool("init-schema", false, "create the telemetry tables before starting")

	_ = v.BindPFlags(f)
	_ = v.BindPFlag("postgres.initSchema", f.Lookup("init-schema"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, pg.Pool{
		Name:       "telemetry",
		ConnString: cfg.Postgres.ConnString,
		MaxConns:   cfg.Postgres.MaxConns,
		MaxElapsed: cfg.Postgres.ConnectTimeout,
	}, logger.Named("pgx"))
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Postgres.InitSchema {
		if err := telemetry.EnsureSchema(ctx, pool, cfg.Postgres.Schema); err != nil {
			return err
		}
		logger.Info("telemetry tables ready", zap.String("schema", cfg.Postgres.Schema))
	}
	if now, err := pg.ServerTime(ctx, pool); err != nil {
		logger.Warn("database probe failed", zap.Error(err))
	} else {
		logger.Info("database reachable", zap.Time("server_time", now))
	}

	store := telemetry.NewStore(pool, cfg.Postgres.Schema)

	var wg sync.WaitGroup

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hubOpts := []broadcast.Option{broadcast.WithLogger(logger.Named("push"))}
	if !slices.Contains(cfg.HTTP.AllowedOrigins, "*") {
		hubOpts = append(hubOpts, broadcast.WithAllowedOrigins(cfg.HTTP.AllowedOrigins...))
	}
	hub := broadcast.NewHub(hubOpts...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(hubCtx)
	}()

	relays, err := relay.Open(ctx, cfg.Relay, logger.Named("relay"))
	if err != nil {
		return err
	}
	defer func() {
		if err := relays.Close(); err != nil {
			logger.Warn("closing relays", zap.Error(err))
		}
	}()

	ingestOpts := []ingest.Option{ingest.WithLogger(logger.Named("ingest"))}
	if relays.Len() > 0 {
		ingestOpts = append(ingestOpts, ingest.WithRelay(relays))
	}
	handler := ingest.NewHandler(store, hub, ingestOpts...)

	mqttOpts, err := cfg.MQTT.ClientOptions()
	if err != nil {
		return err
	}
	sub := mqtt.NewSubscriber(mqttOpts, handler.Handle, logger.Named("mqtt"), handler.Topics()...)
	if err := sub.Start(ctx); err != nil {
		return err
	}

	router := httputil.NewRouter(
		httputil.WithLogger(logger.Named("http")),
		httputil.WithMaxConns(cfg.HTTP.MaxConns),
	)
	router.Use(
		middleware.RequestID,
		middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: logger.Named("access")}),
		middleware.Metrics,
	)
	if len(cfg.HTTP.AllowedOrigins) > 0 {
		router.Wrap(middleware.CORSWithOptions(&middleware.CORSOptions{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Accept", middleware.RequestIDHeader},
		}))
	}

	apiOpts := []api.Option{
		api.WithLogger(logger.Named("api")),
		api.WithHealth(pool),
		api.WithBroker(sub),
		api.WithPush(hub),
	}
	if cfg.HTTP.StaticDir != "" {
		apiOpts = append(apiOpts, api.WithStatic(os.DirFS(cfg.HTTP.StaticDir)))
	}
	api.NewServer(store, apiOpts...).Register(router)

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(metricsCtx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.ListenAddr,
			Logger: logger.Named("metrics"),
		})
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- router.ListenAndServe(cfg.HTTP.ListenAddr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	// HTTP, metrics, MQTT, push clients, relays, pool
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	stopMetrics()
	sub.Stop()
	stopHub()
	wg.Wait()

	logger.Info("quakebridge stopped")
	return runErr
}
