// Package router wires the lookup API routes and applies the middleware
// chain (RequestID → CORS → RateLimit → Metrics → Timeout).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/handler"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/middleware"
)

// New builds the HTTP handler for the serve command.
//
// Route table:
//
//	GET    /api/v1/lookup         → token lookup
//	GET    /api/v1/index/stats    → current generation and cache stats
//	GET    /api/v1/index/runs     → run ledger
//	POST   /api/v1/index/rebuild  → start a background rebuild
//	GET    /health/live           → liveness
//	GET    /health/ready          → readiness
//
// limiter and m may be nil.
func New(h *handler.Handler, checker *health.Checker, limiter *middleware.Limiter, m *metrics.Metrics, cfg config.ServerConfig) http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	chain = middleware.Timeout(timeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	if limiter != nil {
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)
	return chain
}

// NewLimiter returns the per-client limiter for cfg, or nil when rate
// limiting is disabled.
func NewLimiter(cfg config.ServerConfig) *middleware.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	return middleware.NewLimiter(cfg.RateLimit, time.Minute)
}
