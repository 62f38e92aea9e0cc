package middleware

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgeflare/quakebridge/pkg/httputil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	return logger, logs
}

func TestLoggerWithOptions(t *testing.T) {
	logger, logs := newTestLogger()
	options := &LoggerOptions{
		Logger: logger,
		Format: func(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field {
			return []zap.Field{
				zap.String("test", "log"),
			}
		},
	}
	middleware := LoggerWithOptions(options)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "response", logs.All()[0].Message)
	assert.Equal(t, "log", logs.All()[0].ContextMap()["test"])
}

func TestLoggerDefaultFormat(t *testing.T) {
	logger, logs := newTestLogger()
	handler := LoggerWithOptions(&LoggerOptions{Logger: logger})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.WriteHeader(http.StatusOK) // superfluous, ignored by the recorder
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/alerts", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, int64(http.StatusInternalServerError), fields["status"])
	assert.Equal(t, uuid.Nil.String(), fields["req_id"])
}

func TestLoggerNilOptions(t *testing.T) {
	handler := LoggerWithOptions(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestLoggerWithRequestID(t *testing.T) {
	logger, logs := newTestLogger()
	middleware := LoggerWithOptions(&LoggerOptions{Logger: logger})

	var inner *zap.Logger
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = httputil.Logger(r, nil)
		inner.Info("inside")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil)
	reqID := uuid.New().String()
	req = req.WithContext(context.WithValue(req.Context(), httputil.RequestIDCtxKey, reqID))

	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "inside", logs.All()[0].Message)
	assert.Equal(t, reqID, logs.All()[0].ContextMap()["req_id"])
	assert.Equal(t, "response", logs.All()[1].Message)
	assert.Equal(t, reqID, logs.All()[1].ContextMap()["req_id"])
}

type hijackableWriter struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestResponseRecorderHijack(t *testing.T) {
	rec := NewResponseRecorder(httptest.NewRecorder())
	_, _, err := rec.Hijack()
	assert.Error(t, err)

	w := &hijackableWriter{ResponseRecorder: httptest.NewRecorder()}
	rec = NewResponseRecorder(w)
	_, _, err = rec.Hijack()
	require.NoError(t, err)
	assert.True(t, w.hijacked)
	assert.Equal(t, http.StatusSwitchingProtocols, rec.StatusCode)
	assert.Same(t, w, rec.Unwrap())
}
