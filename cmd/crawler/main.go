// Package main crawls allowed domains and stores the pages it finds.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/crawler"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	configPath     string
	seeds          []string
	allowedDomains []string
	maxPages       int
	maxDepth       int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crawler",
	Short: "Crawl seed URLs within an allowlist of domains",
	Long: `Crawl breadth-first from the seed URLs, staying on the allowed domains
(and their sub-domains), honouring robots.txt and the configured crawl delay.
Fetched pages are stored for the indexer.

Examples:
  crawler --seeds https://go.dev/doc/ --allowed-domains go.dev --max-pages 50`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.Flags().StringSliceVar(&seeds, "seeds", nil, "comma-separated seed URLs")
	rootCmd.Flags().StringSliceVar(&allowedDomains, "allowed-domains", nil, "comma-separated domain allowlist")
	rootCmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum pages to fetch (overrides crawler.maxPages)")
	rootCmd.Flags().IntVar(&maxDepth, "max-depth", -1, "maximum link depth (overrides crawler.maxDepth)")
	_ = rootCmd.MarkFlagRequired("seeds")
	_ = rootCmd.MarkFlagRequired("allowed-domains")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if maxPages > 0 {
		cfg.Crawler.MaxPages = maxPages
	}
	if maxDepth >= 0 {
		cfg.Crawler.MaxDepth = maxDepth
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	var events kafka.Publisher
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer producer.Close()
		events = producer
	}

	c := crawler.New(publisher.New(store, events, m), cfg.Crawler, allowedDomains, crawler.WithMetrics(m))
	slog.Info("crawl starting",
		"seeds", seeds,
		"allowed_domains", allowedDomains,
		"max_pages", cfg.Crawler.MaxPages,
		"max_depth", cfg.Crawler.MaxDepth,
	)
	results, err := c.Crawl(ctx, seeds)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("crawling: %w", err)
	}

	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored=%d skipped=%d error=%d\n",
		counts[crawler.StatusStored], counts[crawler.StatusSkipped], counts[crawler.StatusError])
	return nil
}
