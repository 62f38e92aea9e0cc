package middleware

import (
	"net/http"
	"strconv"

	"github.com/edgeflare/quakebridge/pkg/metrics"
)

// Metrics observes request durations labeled by the matched route pattern, so it must run
// inside a route registered on the router rather than around the whole mux.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, ok := w.(*ResponseRecorder)
		if !ok {
			rec = NewResponseRecorder(w)
		}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(route, strconv.Itoa(rec.StatusCode)).
			Observe(rec.Elapsed().Seconds())
	})
}
