// Package integration contains tests that wire the real HTTP handlers,
// middleware chain, and search worker together. External dependencies
// (Redis) are exercised only when reachable; tests skip otherwise.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pzhine/js-worker-search/internal/analytics"
	"github.com/pzhine/js-worker-search/internal/querycache"
	"github.com/pzhine/js-worker-search/internal/server"
	"github.com/pzhine/js-worker-search/pkg/config"
	"github.com/pzhine/js-worker-search/pkg/health"
	"github.com/pzhine/js-worker-search/pkg/metrics"
	"github.com/pzhine/js-worker-search/pkg/middleware"
	pkgredis "github.com/pzhine/js-worker-search/pkg/redis"
	"github.com/pzhine/js-worker-search/search"
	"github.com/pzhine/js-worker-search/search/worker"
)

// Shared across tests: the default Prometheus registry rejects duplicate
// collector registration within one process.
var testMetrics = metrics.New()

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// skipIfNoRedis skips the test when Redis is unreachable.
func skipIfNoRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	client, err := pkgredis.NewClient(config.RedisConfig{
		Addr:     envOrDefault("TEST_REDIS_ADDR", "localhost:6379"),
		PoolSize: 5,
	})
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// newSearchdServer wires the full request path: middleware chain, API
// handlers, and health endpoints around a live search worker.
func newSearchdServer(t *testing.T, opts search.Options, cache *querycache.QueryCache) *httptest.Server {
	t.Helper()

	proxy, err := worker.New(opts)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	t.Cleanup(proxy.Close)

	h := server.New(proxy, cache, nil, nil, analytics.NewAggregator(), testMetrics)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	checker := health.NewChecker()
	checker.Register("search_worker", func(ctx context.Context) health.ComponentHealth {
		if _, err := proxy.Snapshot(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(5 * time.Second)(chain)
	chain = middleware.Metrics(testMetrics)(chain)
	chain = middleware.RequestID(chain)

	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)
	return srv
}

func TestIndexSearchFlow(t *testing.T) {
	srv := newSearchdServer(t, search.Options{IndexMode: search.IndexModeAllSubstrings}, nil)

	docs := map[string]string{
		"doc-1": "the quick brown fox",
		"doc-2": "pack my box with five dozen liquor jugs",
	}
	for uid, text := range docs {
		body, _ := json.Marshal(map[string]string{"uid": uid, "text": text})
		resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json",
			strings.NewReader(string(body)))
		if err != nil {
			t.Fatalf("POST documents: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("index %s: status = %d", uid, resp.StatusCode)
		}
	}

	resp, err := http.Get(srv.URL + "/api/v1/search?q=box")
	if err != nil {
		t.Fatalf("GET search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Error("missing X-Request-ID header on response")
	}

	var result struct {
		Count int      `json:"count"`
		UIDs  []string `json:"uids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decoding search response: %v", err)
	}
	if result.Count != 1 || result.UIDs[0] != "doc-2" {
		t.Errorf("search result = %+v, want [doc-2]", result)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newSearchdServer(t, search.Options{}, nil)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestQueryCacheAgainstRedis(t *testing.T) {
	client := skipIfNoRedis(t)
	ctx := context.Background()

	cache := querycache.New(client, 30*time.Second)
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatalf("priming invalidate: %v", err)
	}

	computed := 0
	compute := func() ([]string, error) {
		computed++
		return []string{"doc-1", "doc-2"}, nil
	}

	uids, hit, err := cache.GetOrCompute(ctx, "fox", compute)
	if err != nil || hit {
		t.Fatalf("first lookup: uids=%v hit=%v err=%v", uids, hit, err)
	}
	uids, hit, err = cache.GetOrCompute(ctx, "fox", compute)
	if err != nil || !hit {
		t.Fatalf("second lookup: uids=%v hit=%v err=%v", uids, hit, err)
	}
	if computed != 1 {
		t.Errorf("compute ran %d times, want 1", computed)
	}
	if len(uids) != 2 || uids[0] != "doc-1" {
		t.Errorf("cached uids = %v", uids)
	}

	if err := cache.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, hit, _ := cache.GetOrCompute(ctx, "fox", compute); hit {
		t.Error("lookup after invalidation reported a cache hit")
	}
}

func TestSearchdThroughCacheServesConsistentResults(t *testing.T) {
	client := skipIfNoRedis(t)
	cache := querycache.New(client, 30*time.Second)
	if err := cache.Invalidate(context.Background()); err != nil {
		t.Fatalf("priming invalidate: %v", err)
	}

	srv := newSearchdServer(t, search.Options{IndexMode: search.IndexModePrefixes}, cache)

	body := `{"uid":"doc-1","text":"cathode ray tube"}`
	resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST documents: %v", err)
	}
	resp.Body.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Get(srv.URL + "/api/v1/search?q=cat")
		if err != nil {
			t.Fatalf("GET search: %v", err)
		}
		var result struct {
			UIDs     []string `json:"uids"`
			CacheHit bool     `json:"cache_hit"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("decoding search response: %v", err)
		}
		resp.Body.Close()
		if len(result.UIDs) != 1 || result.UIDs[0] != "doc-1" {
			t.Fatalf("attempt %d: uids = %v, want [doc-1]", i+1, result.UIDs)
		}
		if i == 1 && !result.CacheHit {
			t.Error("second identical query was not served from cache")
		}
	}
}
