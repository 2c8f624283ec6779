// Package main runs the analytics service. It consumes the search events the
// searcher publishes, aggregates them in memory and serves the totals on
// GET /api/v1/analytics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/middleware"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Aggregate search events from Kafka and serve the totals",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Kafka.Enabled() {
		return errors.New("analytics requires kafka.brokers")
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.AnalyticsPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, "analytics", aggregator.HandleEvent())
	var consumerStopped atomic.Bool
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer stopped", "error", err)
		}
		consumerStopped.Store(true)
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	checker := health.NewChecker()
	checker.Register("consumer", func(context.Context) health.ComponentHealth {
		if consumerStopped.Load() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "consumer stopped"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	analytics.NewHandler(aggregator).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.AnalyticsPort),
		Handler:      middleware.Chain(mux, middleware.Recover, middleware.RequestID),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("analytics service stopped")
	return nil
}
