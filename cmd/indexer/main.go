// Package main runs incremental indexing passes over the document store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	configPath string
	batchSize  int
	interval   time.Duration
	once       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Build postings for documents that have not been indexed yet",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Index every pending document and exit",
	Long: `Index pending documents in passes of at most --batch-size documents
until none are left. With --once only a single pass runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndexer(func(ctx context.Context, runner *indexer.Runner, _ *config.Config) error {
			pass := runner.Drain
			if once {
				pass = runner.Trigger
			}
			n, err := pass(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents\n", n)
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Index pending documents on an interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndexer(func(ctx context.Context, runner *indexer.Runner, cfg *config.Config) error {
			every := cfg.Indexer.WatchInterval
			if interval > 0 {
				every = interval
			}
			return runner.Watch(ctx, every)
		})
	},
}

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Index after every document-ingest event from Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndexer(func(ctx context.Context, runner *indexer.Runner, cfg *config.Config) error {
			if !cfg.Kafka.Enabled() {
				return fmt.Errorf("kafka.brokers must be set to consume ingest events")
			}
			if _, err := runner.Drain(ctx); err != nil {
				return fmt.Errorf("initial indexing pass: %w", err)
			}
			c := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, "indexer", consumer.HandleMessage(runner))
			slog.Info("indexer consuming from kafka",
				"topic", cfg.Kafka.Topics.DocumentIngest,
				"group", cfg.Kafka.ConsumerGroup,
			)
			return c.Start(ctx)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0, "maximum documents per pass (overrides indexer.batchSize; 0 keeps config)")
	runCmd.Flags().BoolVar(&once, "once", false, "run a single pass")
	watchCmd.Flags().DurationVar(&interval, "interval", 0, "time between passes (overrides indexer.watchInterval)")
	rootCmd.AddCommand(runCmd, watchCmd, consumeCmd)
}

// withIndexer loads config, opens the store and hands fn a runner wired
// with metrics and, when Kafka is configured, index-complete publishing.
func withIndexer(fn func(ctx context.Context, runner *indexer.Runner, cfg *config.Config) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, "indexer")
		checker := health.NewChecker()
		checker.Register("store", health.PingCheck(store))
		metricsServer.Handle("/health/live", checker.LiveHandler())
		metricsServer.Handle("/health/ready", checker.ReadyHandler())
		metricsServer.Start()
		defer metricsServer.Shutdown(context.Background())
	}

	size := cfg.Indexer.BatchSize
	if batchSize > 0 {
		size = batchSize
	}
	opts := []indexer.Option{indexer.WithMetrics(m)}
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		opts = append(opts, indexer.WithPublisher(producer))
	}

	ix := indexer.New(store, tokenizer.New(cfg.Search.MinTokenLen), size, opts...)
	return fn(ctx, indexer.NewRunner(ix), cfg)
}
