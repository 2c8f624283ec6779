// Package main runs the document feed service. It accepts documents on
// POST /api/v1/documents, stores them and announces them on the
// document-ingest topic for the indexer.
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

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/metrics"
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
	Use:   "ingestion",
	Short: "Accept documents over HTTP and queue them for indexing",
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
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.IngestPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, "ingestion")
		metricsServer.Start()
		defer metricsServer.Shutdown(context.Background())
	}

	var events kafka.Publisher
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer producer.Close()
		events = producer
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIngest)
	} else {
		slog.Info("kafka not configured, documents are indexed by polling only")
	}

	mux := http.NewServeMux()
	handler.New(publisher.New(store, events, m)).Routes(mux)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.IngestPort),
		Handler: middleware.Chain(mux,
			middleware.Recover,
			middleware.RequestID,
			middleware.Metrics(m),
		),
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

	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("ingestion service stopped")
	return nil
}
