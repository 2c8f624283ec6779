// Package main runs the search API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/astra-search/pkg/redis"
	"github.com/spf13/cobra"
)

var (
	configPath string
	port       int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "searcher",
	Short: "Astra search API",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve ranked search over HTTP",
	Long: `Serve GET /search backed by the BM25 index.

Redis result caching is used when redis.enabled is set, and Kafka is used
for cache invalidation and analytics when brokers are configured.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	serveCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "driver", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, "searcher")
		metricsServer.Start()
		defer metricsServer.Shutdown(context.Background())
	}

	checker := health.NewChecker()
	checker.Register("store", health.PingCheck(store))

	tok := tokenizer.New(cfg.Search.MinTokenLen)
	exec := executor.New(ranker.New(store, cfg.Search.Ranking), store, tok, cfg.Search, m)
	opts := []handler.Option{handler.WithMetrics(m), handler.WithHealth(checker)}

	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			checker.Register("redis", health.Optional(health.PingCheck(redisClient)))
			queryCache := cache.New(redisClient, store, cfg.Redis.CacheTTL, m,
				cache.WithBreaker(cfg.Redis.BreakerThreshold, cfg.Redis.BreakerCooldown))
			opts = append(opts, handler.WithCache(queryCache))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)

			if cfg.Kafka.Enabled() {
				invalidations := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, "searcher-cache", queryCache.HandleIndexComplete())
				go func() {
					if err := invalidations.Start(ctx); err != nil {
						slog.Error("index-complete consumer stopped", "error", err)
					}
				}()
				replacements := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, "searcher-cache-docs", queryCache.HandleDocumentIngest(store))
				go func() {
					if err := replacements.Start(ctx); err != nil {
						slog.Error("document-ingest consumer stopped", "error", err)
					}
				}()
			}
		}
	}

	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 100, 5*time.Second)
		collectorCtx, cancelCollector := context.WithCancel(context.Background())
		collector.Start(collectorCtx)
		defer func() {
			cancelCollector()
			collector.Close()
		}()
		opts = append(opts, handler.WithTracker(collector))
	}

	mux := http.NewServeMux()
	handler.New(exec, cfg.Search, opts...).Routes(mux)

	mws := []func(http.Handler) http.Handler{
		middleware.Recover,
		middleware.RequestID,
		middleware.Metrics(m),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		mws = append(mws, middleware.CORS(middleware.NewCORSConfig(cfg.Server.CORSOrigins)))
	}
	if cfg.Server.RateLimitRPS > 0 {
		mws = append(mws, middleware.RateLimit(middleware.NewClientRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("search service stopped")
	return nil
}
