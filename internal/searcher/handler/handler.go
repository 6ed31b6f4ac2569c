// Package handler exposes the search index over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

type SearchExecutor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.SearchResult, error)
}

// IndexInfo is the read side of IndexStore used for stats and cache keys.
type IndexInfo interface {
	Stats() indexer.Stats
	Generation() uint64
}

type Reloader interface {
	Reload(ctx context.Context, reason string) (reload.Outcome, error)
}

type LoadHistory interface {
	Recent(ctx context.Context, n int) ([]reload.Outcome, error)
}

type Config struct {
	DefaultLimit int
	MaxResults   int
}

// Deps holds the collaborators. Cache, Collector, History and Metrics are
// optional.
type Deps struct {
	Executor  SearchExecutor
	Index     IndexInfo
	Reloader  Reloader
	Cache     *cache.QueryCache
	Collector *analytics.Collector
	History   LoadHistory
	Metrics   *metrics.Metrics
}

type Handler struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

func New(deps Deps, cfg Config) *Handler {
	return &Handler{
		deps:   deps,
		cfg:    cfg,
		logger: slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/index/history", h.IndexHistory)
	mux.HandleFunc("POST /api/v1/index/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Search serves GET /api/v1/search?q=&limit=&category=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	q := r.URL.Query()
	req := executor.Request{
		Query:    q.Get("q"),
		Limit:    h.cfg.DefaultLimit,
		Category: strings.TrimSpace(q.Get("category")),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, r, &apperrors.InvalidQueryError{Reason: "limit must be a positive integer"})
			return
		}
		req.Limit = min(n, h.cfg.MaxResults)
	}

	var (
		result   *executor.SearchResult
		err      error
		cacheHit bool
	)
	if h.deps.Cache != nil && strings.TrimSpace(req.Query) != "" {
		key := cache.Key{
			Generation: h.deps.Index.Generation(),
			Terms:      tokenizer.Unique(req.Query),
			Limit:      req.Limit,
			Category:   req.Category,
		}
		result, cacheHit, err = h.deps.Cache.GetOrCompute(ctx, key, func() (*executor.SearchResult, error) {
			return h.deps.Executor.Execute(ctx, req)
		})
		if err == nil {
			// entries are shared by every query with the same terms
			shared := *result
			shared.Query = req.Query
			result = &shared
		}
	} else {
		result, err = h.deps.Executor.Execute(ctx, req)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	elapsed := time.Since(start)
	if m := h.deps.Metrics; m != nil {
		status := "miss"
		if cacheHit {
			status = "hit"
		}
		m.SearchLatency.WithLabelValues(status).Observe(elapsed.Seconds())
	}
	log.Info("search completed",
		"query", req.Query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency", elapsed,
	)
	if h.deps.Collector != nil {
		h.deps.Collector.Track(analytics.QueryEvent{
			Query:      req.Query,
			Terms:      result.Terms,
			Category:   req.Category,
			TotalHits:  result.TotalHits,
			Returned:   len(result.Results),
			LatencyMs:  float64(elapsed.Microseconds()) / 1000,
			CacheHit:   cacheHit,
			Generation: result.Generation,
			RequestID:  logger.RequestID(ctx),
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.deps.Index.Stats())
}

// Reload serves POST /api/v1/index/reload. A rejected payload answers 422
// and leaves the current index in place.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	reason := "api"
	if v := strings.TrimSpace(r.URL.Query().Get("reason")); v != "" {
		reason = v
	}
	out, err := h.deps.Reloader.Reload(r.Context(), reason)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		logger.FromContext(r.Context()).Warn("reload request failed", "status", status, "error", err)
		h.writeJSON(w, status, map[string]any{"error": err.Error(), "outcome": out})
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// IndexHistory serves GET /api/v1/index/history?limit=.
func (h *Handler) IndexHistory(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	n := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer, got %q", s))
			return
		}
		n = min(v, 500)
	}
	loads, err := h.deps.History.Recent(r.Context(), n)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"loads": loads})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.deps.Cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	deleted, err := h.deps.Cache.Invalidate(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status. Server-side failures are logged and
// answered with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
