package httputil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

// Middleware wraps an http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// RouterOptions configures a Router.
type RouterOptions func(*Router)

// Router is a ServeMux with middleware, route groups and a managed http.Server.
type Router struct {
	mux        *http.ServeMux
	server     *http.Server
	logger     *zap.Logger
	prefix     string
	middleware []Middleware
	outer      []Middleware
	maxConns   int
	mu         sync.RWMutex
}

// NewRouter creates a new instance of Router with the given options.
func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		mux: http.NewServeMux(),
		server: &http.Server{
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithServerOptions returns a RouterOptions function that sets custom http.Server options.
func WithServerOptions(opts ...func(*http.Server)) RouterOptions {
	return func(r *Router) {
		for _, opt := range opts {
			opt(r.server)
		}
	}
}

// WithLogger sets the logger used for server lifecycle messages.
func WithLogger(logger *zap.Logger) RouterOptions {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxConns caps the number of simultaneously accepted connections. n <= 0 means no limit.
// Long-lived push connections count against the cap.
func WithMaxConns(n int) RouterOptions {
	return func(r *Router) { r.maxConns = n }
}

// Use adds one or more middleware to the router. Middleware functions are applied in the order
// they are added, and only to routes registered after the call.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	r.middleware = append(r.middleware, additional...)
}

// Wrap adds middleware around the whole mux, so it also sees requests no route matches,
// such as CORS preflights for GET-only routes. It applies to ServeHTTP and Serve on the
// router it is called on.
func (r *Router) Wrap(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outer = append(r.outer, mw)
	r.outer = append(r.outer, additional...)
}

// Group creates a sub-router with a specified prefix that inherits the parent's middleware.
func (r *Router) Group(prefix string) *Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Router{
		mux:        r.mux,
		middleware: slices.Clone(r.middleware),
		server:     r.server,
		logger:     r.logger,
		prefix:     r.prefix + prefix,
	}
}

// Handle registers handler for a Go 1.22 `METHOD /pattern`. On a group with /prefix the route
// resolves to `METHOD /prefix/pattern`. It panics on a pattern without a method, like
// http.ServeMux does on invalid patterns.
func (r *Router) Handle(methodPattern string, handler http.Handler) {
	method, pattern, ok := strings.Cut(methodPattern, " ")
	if !ok || method == "" || !strings.HasPrefix(pattern, "/") {
		panic(fmt.Sprintf("httputil: invalid method pattern %q", methodPattern))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	r.mux.Handle(fmt.Sprintf("%s %s%s", method, r.prefix, pattern), chain(handler, r.middleware))
}

// HandleFunc is Handle for a plain function.
func (r *Router) HandleFunc(methodPattern string, fn http.HandlerFunc) {
	r.Handle(methodPattern, fn)
}

// ServeHTTP dispatches to the registered routes through the Wrap middleware.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler().ServeHTTP(w, req)
}

func (r *Router) handler() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return chain(r.mux, r.outer)
}

// chain applies middlewares so that the first one is the outermost wrapper.
func chain(h http.Handler, middlewares []Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// ListenAndServe binds addr and serves until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (r *Router) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return r.Serve(ln)
}

// Serve accepts connections on ln.
func (r *Router) Serve(ln net.Listener) error {
	if r.maxConns > 0 {
		ln = netutil.LimitListener(ln, r.maxConns)
	}
	r.server.Handler = r.handler()
	r.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()), zap.Int("max_conns", r.maxConns))
	return r.server.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (r *Router) Shutdown(ctx context.Context) error {
	r.logger.Info("shutting down HTTP server")
	if err := r.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
