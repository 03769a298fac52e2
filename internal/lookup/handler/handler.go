// Package handler serves the lookup API: token queries against the current
// index generation, index statistics, run history and rebuild requests.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/executor"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/parser"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/runstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/middleware"
)

// Rebuilder starts background rebuilds.
type Rebuilder interface {
	Trigger(ctx context.Context, roots []string) (string, error)
	Running() bool
}

// RunLister returns recent runs, newest first.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]runstore.Run, error)
}

// Options wires a Handler. Cache, Rebuilder, Runs and Metrics may be nil.
type Options struct {
	Current      *lookup.Current
	Executor     *executor.Executor
	Cache        *cache.QueryCache
	Rebuilder    Rebuilder
	Runs         RunLister
	Metrics      *metrics.Metrics
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Handler {
	if opts.Executor == nil {
		opts.Executor = executor.New()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.MaxResults < opts.DefaultLimit {
		opts.MaxResults = opts.DefaultLimit
	}
	return &Handler{
		opts:   opts,
		logger: slog.Default().With("component", "lookup-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/lookup", h.Lookup)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/index/runs", h.Runs)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
}

// Lookup answers GET /api/v1/lookup?q=&limit=.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, ok := h.parseLimit(w, r, h.opts.DefaultLimit, h.opts.MaxResults)
	if !ok {
		return
	}

	gen := h.opts.Current.Load()
	if gen == nil {
		h.writeErr(w, apperrors.ErrIndexNotReady)
		return
	}

	plan := parser.Parse(query)
	if plan.Empty() {
		h.record("empty", "none", start)
		h.writeJSON(w, http.StatusOK, &executor.Result{
			Query:      query,
			Generation: gen.RunID,
			Files:      []string{},
			TermStats:  map[string]int{},
		})
		return
	}

	compute := func() (*executor.Result, error) {
		return h.opts.Executor.Execute(ctx, gen.Index, plan, limit)
	}
	var (
		result *executor.Result
		err    error
	)
	cacheStatus := "disabled"
	if h.opts.Cache != nil {
		var tier cache.Tier
		result, tier, err = h.opts.Cache.GetOrCompute(ctx, gen.RunID, plan, limit, compute)
		cacheStatus = string(tier)
		if tier == cache.TierNone {
			cacheStatus = "miss"
		}
	} else {
		result, err = compute()
	}
	if err != nil {
		log.Error("lookup failed", "query", query, "error", err)
		h.writeErr(w, err)
		return
	}

	out := *result
	out.Query = query
	out.Generation = gen.RunID

	resultType := "hits"
	if out.TotalHits == 0 {
		resultType = "no_hits"
	}
	h.record(resultType, cacheStatus, start)
	log.Info("lookup completed",
		"query", query,
		"total_hits", out.TotalHits,
		"returned", len(out.Files),
		"cache", cacheStatus,
		"generation", gen.RunID,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, &out)
}

// IndexStats answers GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	gen := h.opts.Current.Load()
	if gen == nil {
		h.writeErr(w, apperrors.ErrIndexNotReady)
		return
	}
	stats := gen.Index.Stats()
	body := map[string]any{
		"generation":  gen.RunID,
		"roots":       gen.Roots,
		"built_at":    gen.BuiltAt.UTC().Format(time.RFC3339),
		"interrupted": gen.Interrupted,
		"terms":       stats.Terms,
		"files":       stats.Files,
		"occurrences": stats.Occurrences,
		"rebuilding":  h.opts.Rebuilder != nil && h.opts.Rebuilder.Running(),
	}
	if h.opts.Cache != nil {
		hits, misses := h.opts.Cache.Stats()
		var hitRate float64
		if total := hits + misses; total > 0 {
			hitRate = float64(hits) / float64(total) * 100
		}
		body["cache"] = map[string]any{
			"hits":     hits,
			"misses":   misses,
			"entries":  h.opts.Cache.Len(),
			"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		}
	}
	h.writeJSON(w, http.StatusOK, body)
}

// Runs answers GET /api/v1/index/runs?limit=.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.opts.Runs == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"runs": []runstore.Run{}})
		return
	}
	limit, ok := h.parseLimit(w, r, 20, 200)
	if !ok {
		return
	}
	runs, err := h.opts.Runs.Recent(r.Context(), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing runs failed", "error", err)
		h.writeErr(w, fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

type rebuildRequest struct {
	Roots []string `json:"roots"`
}

// Rebuild answers POST /api/v1/index/rebuild with 202 and the new run id.
// An optional JSON body {"roots": [...]} overrides the configured roots.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.opts.Rebuilder == nil {
		h.writeError(w, http.StatusServiceUnavailable, "rebuilds are disabled")
		return
	}
	var req rebuildRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, root := range req.Roots {
		if root == "" {
			h.writeError(w, http.StatusBadRequest, "roots must not be empty strings")
			return
		}
	}
	runID, err := h.opts.Rebuilder.Trigger(r.Context(), req.Roots)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	logger.FromContext(r.Context()).Info("rebuild accepted", "run_id", runID, "roots", req.Roots)
	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id":     runID,
		"status":     "accepted",
		"request_id": middleware.GetRequestID(r.Context()),
	})
}

func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request, def, max int) (int, bool) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return def, true
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed < 1 {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if parsed > max {
		parsed = max
	}
	return parsed, true
}

func (h *Handler) record(resultType, cacheStatus string, start time.Time) {
	if h.opts.Metrics == nil {
		return
	}
	h.opts.Metrics.LookupQueriesTotal.WithLabelValues(resultType).Inc()
	h.opts.Metrics.LookupLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
}
