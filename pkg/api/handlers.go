package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/edgeflare/quakebridge/pkg/httputil"
	"github.com/edgeflare/quakebridge/pkg/metrics"
	"go.uber.org/zap"
)

const (
	recentLimit     = 10
	historicalLimit = 10
	allAlertsLimit  = 20

	healthTimeout = 2 * time.Second
)

const (
	msgFetchAlerts    = "Failed to fetch alerts"
	msgFetchHeartbeat = "Failed to fetch heartbeat data"
	msgFetchMagnitude = "Failed to fetch magnitude data"
	msgFetchData      = "Failed to fetch data"
)

type errorBody struct {
	Error string `json:"error"`
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// parseLimit reads the leading integer of ?limit=, so "3.7" and "3abc" both mean 3.
// A 0x prefix reads hex. No digits, overflow or a value <= 0 yield def.
func parseLimit(r *http.Request, def int) int {
	s := strings.TrimLeftFunc(r.URL.Query().Get("limit"), unicode.IsSpace)
	sign := ""
	if s != "" && (s[0] == '+' || s[0] == '-') {
		sign, s = s[:1], s[1:]
	}
	base, digits := 10, "0123456789"
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base, digits, s = 16, "0123456789abcdefABCDEF", s[2:]
	}
	end := 0
	for end < len(s) && strings.IndexByte(digits, s[end]) >= 0 {
		end++
	}
	n, err := strconv.ParseInt(sign+s[:end], base, strconv.IntSize)
	if err != nil || n <= 0 {
		return def
	}
	return int(n)
}

// log prefers the request-scoped logger so failures carry the request id.
func (s *Server) log(r *http.Request) *zap.Logger {
	return httputil.Logger(r, s.logger)
}

func (s *Server) storeFailure(r *http.Request, op string, err error) {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	s.log(r).Error("query failed", zap.String("op", op), zap.String("path", r.URL.Path), zap.Error(err))
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "Test route works!"})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.LatestAlerts(r.Context(), recentLimit)
	if err != nil {
		s.storeFailure(r, "latest_alerts", err)
		httputil.JSON(w, http.StatusInternalServerError, errorBody{msgFetchAlerts})
		return
	}
	httputil.JSON(w, http.StatusOK, rows)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.LatestHeartbeat(r.Context(), recentLimit)
	if err != nil {
		s.storeFailure(r, "latest_heartbeat", err)
		httputil.JSON(w, http.StatusInternalServerError, errorBody{msgFetchHeartbeat})
		return
	}
	httputil.JSON(w, http.StatusOK, rows)
}

func (s *Server) handleMagnitude(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.LatestMagnitude(r.Context(), recentLimit)
	if err != nil {
		s.storeFailure(r, "latest_magnitude", err)
		httputil.JSON(w, http.StatusInternalServerError, errorBody{msgFetchMagnitude})
		return
	}
	httputil.JSON(w, http.StatusOK, rows)
}

func (s *Server) handleLatestData(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Latest(r.Context())
	if err != nil {
		s.storeFailure(r, "latest_snapshot", err)
		httputil.JSON(w, http.StatusInternalServerError, envelope{Error: msgFetchData})
		return
	}
	httputil.JSON(w, http.StatusOK, envelope{Success: true, Data: snap})
}

func (s *Server) handleHistoricalData(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.LatestMagnitude(r.Context(), parseLimit(r, historicalLimit))
	if err != nil {
		s.storeFailure(r, "historical_magnitude", err)
		httputil.JSON(w, http.StatusInternalServerError, envelope{Error: msgFetchData})
		return
	}
	httputil.JSON(w, http.StatusOK, envelope{Success: true, Data: rows})
}

func (s *Server) handleAllAlerts(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.LatestAlerts(r.Context(), parseLimit(r, allAlertsLimit))
	if err != nil {
		s.storeFailure(r, "all_alerts", err)
		httputil.JSON(w, http.StatusInternalServerError, envelope{Error: msgFetchAlerts})
		return
	}
	httputil.JSON(w, http.StatusOK, envelope{Success: true, Data: rows})
}

type healthBody struct {
	Status      string `json:"status"`
	Broker      string `json:"broker,omitempty"`
	PushClients *int   `json:"pushClients,omitempty"`
}

// handleHealth fails only on the database. A lost broker connection is reported but
// paho keeps reconnecting on its own.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var body healthBody
	if s.broker != nil {
		body.Broker = "disconnected"
		if s.broker.Connected() {
			body.Broker = "connected"
		}
	}
	if c, ok := s.push.(clientCounter); ok {
		n := c.Clients()
		body.PushClients = &n
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.health.Ping(ctx); err != nil {
		s.log(r).Warn("health check failed", zap.Error(err))
		body.Status = "unavailable"
		httputil.JSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body.Status = "ok"
	httputil.JSON(w, http.StatusOK, body)
}
