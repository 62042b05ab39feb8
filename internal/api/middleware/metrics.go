package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mcoot/quizwordz/internal/metrics"
)

// Metrics counts requests and observes latency per route template
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := wrap(w)
			next.ServeHTTP(wrapped, r)

			route := routeName(r)
			m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.Status())).Inc()
			m.HTTPRequestLength.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
