package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hszk-dev/lumina/internal/infrastructure/metrics"
)

// Metrics records request counts and latency labelled by chi route pattern,
// keeping label cardinality bounded by the route table rather than by IDs.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		route := routePattern(r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
