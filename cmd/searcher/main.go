package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

const analyticsSnapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting search service", "port", cfg.Server.Port, "source", cfg.Source.URI)
	m := metrics.New(nil)
	store := indexer.New()
	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if store.State() != indexer.StateReady {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no index loaded"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("generation %d", store.Generation())}
	})

	openSource := func(uri string) (source.Source, error) {
		return source.Open(uri, cfg.Source, m.ObserveBreaker)
	}
	src, err := openSource(cfg.Source.URI)
	if err != nil {
		return fmt.Errorf("opening payload source: %w", err)
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.Ping(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var (
		history        *reload.PostgresHistory
		analyticsStore *aggregator.Store
	)
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, load history disabled", "error", err)
		} else {
			defer pg.Close()
			history = reload.NewPostgresHistory(pg.DB)
			analyticsStore = aggregator.NewStore(pg.DB)
			checker.Register("postgres", health.Ping(pg.Ping, true))
		}
	}

	agg := analytics.NewAggregator()
	if analyticsStore != nil {
		if err := analyticsStore.Restore(ctx, agg); err != nil {
			slog.Warn("restoring analytics failed", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var (
		queryPublisher  analytics.Publisher = agg
		reloadPublisher analytics.Publisher = agg
	)
	if cfg.Kafka.Enabled {
		perHost := perHostGroup(cfg.Kafka, "analytics")
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		reloadProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexReloaded)
		defer reloadProducer.Close()
		queryPublisher, reloadPublisher = analyticsProducer, reloadProducer

		for _, topic := range []string{cfg.Kafka.Topics.AnalyticsEvents, cfg.Kafka.Topics.IndexReloaded} {
			consumer := kafka.NewConsumer(perHost, topic, agg.HandleMessage)
			g.Go(func() error { return consumer.Run(gctx) })
		}
		slog.Info("kafka enabled", "brokers", cfg.Kafka.Brokers, "group", perHost.ConsumerGroup)
	}

	reloader := reload.New(store, src, reload.Options{
		LastGood: source.NewLastGood(cfg.Source.CacheDir),
		History:  nilIfNoHistory(history),
		Events:   reloadPublisher,
		Cache:    nilIfNoCache(queryCache),
		Metrics:  m,
		Open:     openSource,
	})
	if _, err := reloader.LoadInitial(ctx); err != nil {
		slog.Error("initial index load failed, serving empty index until next reload", "error", err)
	}

	if cfg.Kafka.Enabled {
		trigger := kafka.NewConsumer(perHostGroup(cfg.Kafka, "reload"), cfg.Kafka.Topics.PayloadUpdated, reloader.HandleTrigger())
		g.Go(func() error { return trigger.Run(gctx) })
	}

	collector := analytics.NewCollector(queryPublisher, analytics.CollectorConfig{}, m)
	g.Go(func() error {
		collector.Run(gctx)
		return nil
	})
	g.Go(func() error {
		reloader.StartLoop(gctx, cfg.Source.RefreshInterval)
		return nil
	})
	if analyticsStore != nil {
		g.Go(func() error {
			analyticsStore.Run(gctx, agg, analyticsSnapshotInterval)
			return nil
		})
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})

	h := handler.New(handler.Deps{
		Executor:  executor.New(store, m),
		Index:     store,
		Reloader:  reloader,
		Cache:     queryCache,
		Collector: collector,
		History:   nilIfNoLoadHistory(history),
		Metrics:   m,
	}, handler.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", m.Handler())

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.CORS(middleware.DefaultCORSConfig()),
			middleware.Metrics(m),
			middleware.RateLimit(limiter, m),
			middleware.Timeout(cfg.Server.WriteTimeout),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		shutdownMetrics := m.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// perHostGroup gives each replica its own consumer group, since every
// replica must reload and aggregate independently.
func perHostGroup(cfg config.KafkaConfig, role string) config.KafkaConfig {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "local"
	}
	cfg.ConsumerGroup = cfg.ConsumerGroup + "-" + role + "-" + hostname
	return cfg
}

// The reloader and handler take interfaces; a nil pointer must become a
// nil interface so that their nil checks see it.

func nilIfNoHistory(h *reload.PostgresHistory) reload.History {
	if h == nil {
		return nil
	}
	return h
}

func nilIfNoLoadHistory(h *reload.PostgresHistory) handler.LoadHistory {
	if h == nil {
		return nil
	}
	return h
}

func nilIfNoCache(c *cache.QueryCache) reload.Invalidator {
	if c == nil {
		return nil
	}
	return c
}
