package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch alerts"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Failed to fetch alerts"}`, w.Body.String())
}

func TestContextAccessors(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, RequestID(r))
	assert.NotNil(t, Logger(r, nil))

	fallback := zap.NewExample()
	assert.Same(t, fallback, Logger(r, fallback))

	logger := zap.NewExample()
	ctx := context.WithValue(r.Context(), RequestIDCtxKey, "abc")
	ctx = context.WithValue(ctx, LogEntryCtxKey, logger)
	r = r.WithContext(ctx)
	assert.Equal(t, "abc", RequestID(r))
	assert.Same(t, logger, Logger(r, fallback))
}
