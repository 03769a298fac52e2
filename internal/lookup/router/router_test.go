package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/handler"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/middleware"
)

func TestRouter(t *testing.T) {
	current := &lookup.Current{}
	idx := index.New()
	require.NoError(t, idx.AddFile("a.txt", []string{"alpha"}))
	current.Swap(&lookup.Generation{RunID: "g", Index: idx})

	checker := health.NewChecker()
	checker.Register("index", health.ReadyCheck(current.Ready, nil))
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	cfg := config.Default().Server
	cfg.RateLimit = 2
	h := New(handler.New(handler.Options{Current: current}), checker, NewLimiter(cfg), m, cfg)

	get := func(target string, header http.Header) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		for k, v := range header {
			req.Header[k] = v
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/api/v1/lookup?q=alpha", http.Header{middleware.RequestIDHeader: {"req-42"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))

	rec = get("/api/v1/lookup?q=alpha", http.Header{"Origin": {"http://ui.local"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://ui.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = get("/api/v1/lookup?q=alpha", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = get("/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/lookup", "200")))
}

func TestNewLimiter_Disabled(t *testing.T) {
	cfg := config.Default().Server
	cfg.RateLimit = 0
	assert.Nil(t, NewLimiter(cfg))
}
