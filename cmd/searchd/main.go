// searchd serves the in-memory full-text search engine over HTTP: document
// ingest (inline or via Kafka), substring search with an optional Redis
// query cache, runtime engine configuration, and usage statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/pzhine/js-worker-search/internal/analytics"
	"github.com/pzhine/js-worker-search/internal/auth"
	"github.com/pzhine/js-worker-search/internal/auth/apikey"
	"github.com/pzhine/js-worker-search/internal/auth/ratelimit"
	"github.com/pzhine/js-worker-search/internal/ingest"
	"github.com/pzhine/js-worker-search/internal/querycache"
	"github.com/pzhine/js-worker-search/internal/server"
	"github.com/pzhine/js-worker-search/pkg/config"
	"github.com/pzhine/js-worker-search/pkg/health"
	"github.com/pzhine/js-worker-search/pkg/kafka"
	"github.com/pzhine/js-worker-search/pkg/logger"
	"github.com/pzhine/js-worker-search/pkg/metrics"
	"github.com/pzhine/js-worker-search/pkg/middleware"
	"github.com/pzhine/js-worker-search/pkg/postgres"
	pkgredis "github.com/pzhine/js-worker-search/pkg/redis"
	"github.com/pzhine/js-worker-search/search/worker"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting searchd",
		"port", cfg.Server.Port,
		"index_mode", cfg.Engine.IndexMode,
	)

	opts, err := cfg.Engine.EngineOptions()
	if err != nil {
		slog.Error("invalid engine configuration", "error", err)
		os.Exit(1)
	}
	proxy, err := worker.New(opts)
	if err != nil {
		slog.Error("failed to start search worker", "error", err)
		os.Exit(1)
	}
	defer proxy.Close()

	m := metrics.New()

	var queryCache *querycache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = querycache.New(redisClient, cfg.Redis.CacheTTL)
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	aggregator := analytics.NewAggregator()

	var (
		publisher *ingest.Publisher
		collector *analytics.Collector
	)
	if cfg.Kafka.Enabled() {
		publisher = ingest.NewPublisher(kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest))

		collector = analytics.NewCollector(kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents))
		collector.Start(ctx)
		defer collector.Close()

		var invalidator ingest.Invalidator
		if queryCache != nil {
			invalidator = queryCache
		}
		ingestConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
			ingest.HandleMessage(proxy, invalidator, m))
		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents,
			aggregator.HandleMessage())

		group.Go(func() error { return ingestConsumer.Start(ctx) })
		group.Go(func() error { return analyticsConsumer.Start(ctx) })
		slog.Info("kafka ingest pipeline started",
			"brokers", cfg.Kafka.Brokers,
			"ingest_topic", cfg.Kafka.Topics.DocumentIngest,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}

	var pgClient *postgres.Client
	var keyStore *apikey.Store
	if cfg.Auth.Enabled {
		pgClient, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("auth enabled but postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pgClient.Close()
		keyStore = apikey.NewStore(pgClient)
		slog.Info("api key authentication enabled")
	}

	checker := health.NewChecker()
	checker.Register("search_worker", func(ctx context.Context) health.ComponentHealth {
		if _, err := proxy.Snapshot(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if pgClient != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := pgClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	h := server.New(proxy, queryCache, publisher, collector, aggregator, m)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	var chain http.Handler = mux
	if keyStore != nil {
		chain = auth.Middleware(keyStore, ratelimit.New(cfg.Auth.RateLimitWindow))(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	group.Go(func() error {
		slog.Info("searchd listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		slog.Error("searchd exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("searchd stopped")
}
