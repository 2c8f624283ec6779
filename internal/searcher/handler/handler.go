package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/astra-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/tracing"
)

// Searcher runs one validated search request.
type Searcher interface {
	Search(ctx context.Context, req executor.Request) (*executor.Result, error)
}

// Tracker receives one analytics event per served request.
type Tracker interface {
	Track(event analytics.SearchEvent)
}

type Handler struct {
	searcher Searcher
	cfg      config.SearchConfig
	cache    *cache.QueryCache
	tracker  Tracker
	checker  *health.Checker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithTracker(t Tracker) Option {
	return func(h *Handler) { h.tracker = t }
}

func WithHealth(c *health.Checker) Option {
	return func(h *Handler) { h.checker = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(s Searcher, cfg config.SearchConfig, opts ...Option) *Handler {
	h := &Handler{
		searcher: s,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the search API on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
	if h.checker != nil {
		mux.HandleFunc("GET /health/live", h.checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", h.checker.ReadyHandler())
	}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logger.FromContext(r.Context())

	req, err := h.parseRequest(r)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.PublicMessage(err))
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "search", logger.RequestID(r.Context()))
	span.SetAttr("query", req.Query)

	var result *executor.Result
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, req, func(ctx context.Context) (*executor.Result, error) {
			return h.searcher.Search(ctx, req)
		})
	} else {
		result, err = h.searcher.Search(ctx, req)
	}
	span.SetAttr("cache_hit", cacheHit)
	span.End()
	span.Log(log)

	latency := time.Since(start)
	h.observe(req, result, cacheHit, err, latency, logger.RequestID(r.Context()))

	if err != nil {
		log.Error("search failed", "query", req.Query, "error", err)
		h.writeError(w, http.StatusInternalServerError, apperrors.PublicMessage(err))
		return
	}

	log.Info("search completed",
		"query", req.Query,
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.cache != nil {
		w.Header().Set("X-Cache", cacheHeader(cacheHit))
	}
	h.writeJSON(w, http.StatusOK, result)
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

func (h *Handler) observe(req executor.Request, result *executor.Result, cacheHit bool, err error, latency time.Duration, requestID string) {
	if h.metrics != nil {
		status := "miss"
		switch {
		case h.cache == nil:
			status = "disabled"
		case cacheHit:
			status = "hit"
		}
		h.metrics.SearchLatency.WithLabelValues(status).Observe(latency.Seconds())
	}
	if h.tracker == nil {
		return
	}
	event := analytics.SearchEvent{
		Query:     req.Query,
		K:         req.K,
		Page:      req.Page,
		PageSize:  req.PageSize,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
	if result != nil {
		event.TotalHits = result.TotalHits
		event.Returned = len(result.Hits)
	}
	event.Type = analytics.Classify(cacheHit, event.TotalHits, err)
	h.tracker.Track(event)
}

// parseRequest validates query parameters against the configured bounds.
func (h *Handler) parseRequest(r *http.Request) (executor.Request, error) {
	q := r.URL.Query()
	req := executor.Request{Query: q.Get("q")}
	if strings.TrimSpace(req.Query) == "" {
		return req, apperrors.Invalid("query parameter 'q' is required")
	}

	var err error
	if req.K, err = intParam(q.Get("k"), "k", h.cfg.DefaultK, 1, h.cfg.MaxK); err != nil {
		return req, err
	}
	if req.Page, err = intParam(q.Get("page"), "page", 1, 1, 0); err != nil {
		return req, err
	}
	pageSize := q.Get("pageSize")
	if pageSize == "" {
		pageSize = q.Get("page_size")
	}
	if req.PageSize, err = intParam(pageSize, "pageSize", h.cfg.DefaultPageSize, 1, h.cfg.MaxPageSize); err != nil {
		return req, err
	}
	return req, nil
}

// intParam parses raw, falling back to def when empty. A max of zero means
// no upper bound.
func intParam(raw, name string, def, minVal, maxVal int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Invalid("%s must be an integer", name)
	}
	switch {
	case maxVal > 0 && (v < minVal || v > maxVal):
		return 0, apperrors.Invalid("%s must be between %d and %d", name, minVal, maxVal)
	case v < minVal:
		return 0, apperrors.Invalid("%s must be at least %d", name, minVal)
	}
	return v, nil
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	breaker := h.cache.Breaker()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  breaker.State.String(),
		"rejected": breaker.Rejected,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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
