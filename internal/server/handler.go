// Package server exposes the search engine over HTTP: document ingest,
// query, runtime configuration, and usage statistics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pzhine/js-worker-search/internal/analytics"
	"github.com/pzhine/js-worker-search/internal/ingest"
	"github.com/pzhine/js-worker-search/internal/querycache"
	pkgerrors "github.com/pzhine/js-worker-search/pkg/errors"
	"github.com/pzhine/js-worker-search/pkg/logger"
	"github.com/pzhine/js-worker-search/pkg/metrics"
	"github.com/pzhine/js-worker-search/search"
	"github.com/pzhine/js-worker-search/search/worker"
)

// Handler serves the search API. The cache, publisher, collector, and
// aggregator are optional; a nil field disables that path and the handler
// degrades to direct engine access.
type Handler struct {
	proxy      *worker.Proxy
	cache      *querycache.QueryCache
	publisher  *ingest.Publisher
	collector  *analytics.Collector
	aggregator *analytics.Aggregator
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Handler around the engine proxy.
func New(
	proxy *worker.Proxy,
	cache *querycache.QueryCache,
	publisher *ingest.Publisher,
	collector *analytics.Collector,
	aggregator *analytics.Aggregator,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		proxy:      proxy,
		cache:      cache,
		publisher:  publisher,
		collector:  collector,
		aggregator: aggregator,
		metrics:    m,
		logger:     slog.Default().With("component", "search-handler"),
	}
}

// RegisterRoutes attaches the API endpoints to mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/documents", h.IndexDocument)
	mux.HandleFunc("GET /api/v1/config", h.GetConfig)
	mux.HandleFunc("PUT /api/v1/config", h.UpdateConfig)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
}

type searchResponse struct {
	Query     string   `json:"query"`
	Count     int      `json:"count"`
	UIDs      []string `json:"uids"`
	CacheHit  bool     `json:"cache_hit"`
	LatencyMS int64    `json:"latency_ms"`
}

// Search resolves the q parameter against the index. An empty or missing q
// returns every indexed identifier, matching the engine's contract.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")

	var (
		uids     []string
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		uids, cacheHit, err = h.cache.GetOrCompute(ctx, query, func() ([]string, error) {
			return h.proxy.Search(ctx, query)
		})
	} else {
		uids, err = h.proxy.Search(ctx, query)
	}
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		h.metrics.SearchesTotal.WithLabelValues("error").Inc()
		h.writeError(w, pkgerrors.HTTPStatusCode(err), "search failed")
		return
	}
	if uids == nil {
		uids = []string{}
	}

	latency := time.Since(start)
	h.metrics.SearchesTotal.WithLabelValues(resultType(query, uids)).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus(h.cache, cacheHit)).Observe(latency.Seconds())
	h.metrics.SearchResultsCount.Observe(float64(len(uids)))
	if h.cache != nil {
		if cacheHit {
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
	}

	if h.collector != nil {
		h.collector.Track(analytics.NewSearchEvent(query, len(uids), latency, cacheHit))
	} else if h.aggregator != nil {
		h.aggregator.Record(analytics.NewSearchEvent(query, len(uids), latency, cacheHit))
	}

	log.Info("search completed",
		"query", query,
		"count", len(uids),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, searchResponse{
		Query:     query,
		Count:     len(uids),
		UIDs:      uids,
		CacheHit:  cacheHit,
		LatencyMS: latency.Milliseconds(),
	})
}

// IndexDocument accepts a document for indexing. With Kafka configured the
// document is published to the ingest topic and picked up by the consumer;
// otherwise it is handed to the engine directly.
func (h *Handler) IndexDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingest.IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := ingest.ValidateIndexRequest(&req); err != nil {
		var verr *ingest.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, &req); err != nil {
			log.Error("ingest publish failed", "uid", req.UID, "error", err)
			h.writeError(w, http.StatusServiceUnavailable, "ingest pipeline unavailable")
			return
		}
		h.writeJSON(w, http.StatusAccepted, ingest.IndexResponse{UID: req.UID, Status: ingest.StatusQueued})
		return
	}

	h.proxy.IndexDocument(req.UID, req.Text)
	h.metrics.DocsIndexedTotal.Inc()
	h.metrics.IngestEventsTotal.WithLabelValues("inline").Inc()
	h.refreshIndexGauges(ctx)

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			log.Warn("cache invalidation failed", "error", err)
		}
	}
	if h.collector != nil {
		h.collector.Track(analytics.NewIndexEvent(req.UID, len(req.Text)))
	} else if h.aggregator != nil {
		h.aggregator.Record(analytics.NewIndexEvent(req.UID, len(req.Text)))
	}

	log.Info("document indexed", "uid", req.UID, "text_size", len(req.Text))
	h.writeJSON(w, http.StatusCreated, ingest.IndexResponse{UID: req.UID, Status: ingest.StatusIndexed})
}

type configPayload struct {
	IndexMode       *string `json:"index_mode,omitempty"`
	TokenizePattern *string `json:"tokenize_pattern,omitempty"`
	CaseSensitive   *bool   `json:"case_sensitive,omitempty"`
}

type configResponse struct {
	IndexMode       string `json:"index_mode"`
	TokenizePattern string `json:"tokenize_pattern"`
	CaseSensitive   bool   `json:"case_sensitive"`
}

// GetConfig returns the engine's active configuration.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	snap, err := h.proxy.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, pkgerrors.HTTPStatusCode(err), "engine unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, configResponse{
		IndexMode:       string(snap.IndexMode),
		TokenizePattern: snap.TokenizePattern,
		CaseSensitive:   snap.CaseSensitive,
	})
}

// UpdateConfig applies the fields present in the payload. Changing the index
// mode after any document has been indexed is rejected with 409.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload configPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if payload.IndexMode != nil {
		mode, err := search.ParseIndexMode(*payload.IndexMode)
		if err == nil {
			err = h.proxy.SetIndexMode(ctx, mode)
		}
		if err != nil {
			h.writeError(w, pkgerrors.HTTPStatusCode(err), err.Error())
			return
		}
	}
	if payload.TokenizePattern != nil {
		if err := h.proxy.SetTokenizePattern(ctx, *payload.TokenizePattern); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if payload.CaseSensitive != nil {
		if err := h.proxy.SetCaseSensitive(ctx, *payload.CaseSensitive); err != nil {
			h.writeError(w, pkgerrors.HTTPStatusCode(err), err.Error())
			return
		}
	}

	snap, err := h.proxy.Snapshot(ctx)
	if err != nil {
		h.writeError(w, pkgerrors.HTTPStatusCode(err), "engine unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, configResponse{
		IndexMode:       string(snap.IndexMode),
		TokenizePattern: snap.TokenizePattern,
		CaseSensitive:   snap.CaseSensitive,
	})
}

type statsResponse struct {
	DocumentCount int              `json:"document_count"`
	TokenCount    int              `json:"token_count"`
	IndexMode     string           `json:"index_mode"`
	Cache         *cacheStats      `json:"cache,omitempty"`
	Usage         *analytics.Stats `json:"usage,omitempty"`
}

type cacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Stats reports index sizes alongside cache and usage statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.proxy.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, pkgerrors.HTTPStatusCode(err), "engine unavailable")
		return
	}
	h.metrics.KnownDocuments.Set(float64(snap.DocumentCount))
	h.metrics.IndexedTokens.Set(float64(snap.TokenCount))

	resp := statsResponse{
		DocumentCount: snap.DocumentCount,
		TokenCount:    snap.TokenCount,
		IndexMode:     string(snap.IndexMode),
	}
	if h.cache != nil {
		hits, misses := h.cache.Stats()
		resp.Cache = &cacheStats{Hits: hits, Misses: misses}
	}
	if h.aggregator != nil {
		usage := h.aggregator.Stats()
		resp.Usage = &usage
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) refreshIndexGauges(ctx context.Context) {
	snap, err := h.proxy.Snapshot(ctx)
	if err != nil {
		return
	}
	h.metrics.KnownDocuments.Set(float64(snap.DocumentCount))
	h.metrics.IndexedTokens.Set(float64(snap.TokenCount))
}

func resultType(query string, uids []string) string {
	switch {
	case query == "":
		return "all_documents"
	case len(uids) == 0:
		return "zero_result"
	default:
		return "hit"
	}
}

func cacheStatus(cache *querycache.QueryCache, hit bool) string {
	switch {
	case cache == nil:
		return "bypass"
	case hit:
		return "hit"
	default:
		return "miss"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
