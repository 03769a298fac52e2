// Package middleware holds the HTTP middleware wrapped around the lookup API:
// request IDs, CORS, per-client rate limiting, Prometheus instrumentation and
// request timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/metrics"
)

// routeLabels lists the paths recorded under their own label. Anything else
// is folded into "other" so scanners probing random URLs cannot grow the
// series count.
var routeLabels = map[string]bool{
	"/api/v1/lookup":        true,
	"/api/v1/index/stats":   true,
	"/api/v1/index/runs":    true,
	"/api/v1/index/rebuild": true,
	"/health/live":          true,
	"/health/ready":         true,
}

// Metrics records request count, latency and in-flight requests per route.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			route := routeLabel(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.Status())).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// statusRecorder remembers the first status code written. A handler that
// only calls Write implicitly sends 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

func routeLabel(path string) string {
	path = strings.TrimSuffix(path, "/")
	if routeLabels[path] {
		return path
	}
	return "other"
}
