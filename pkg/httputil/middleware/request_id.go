package middleware

import (
	"context"
	"net/http"

	"github.com/edgeflare/quakebridge/pkg/httputil"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// RequestID assigns every request an id, reusing a valid incoming X-Request-Id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := httputil.RequestID(r)
		if reqID == "" {
			if incoming, err := uuid.Parse(r.Header.Get(RequestIDHeader)); err == nil {
				reqID = incoming.String()
			} else {
				reqID = uuid.NewString()
			}
		}

		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID)))
	})
}
