// Package indexer turns stored documents into postings. A run fetches one
// batch of documents that carry no indexed marker, writes each document's
// postings and marker as one transaction, and appends a new statistics row
// once the batch is done.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/metrics"
)

// IndexStore is the part of the store the indexer writes through.
type IndexStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	CurrentStats(ctx context.Context) (storage.Stats, error)
	ListUnindexed(ctx context.Context, limit int) *storage.DocumentIterator
	EnsureTermID(ctx context.Context, term string) (int64, error)
	UpsertPosting(ctx context.Context, p storage.Posting) error
	MarkIndexed(ctx context.Context, docID, version int64) error
	RecomputeStats(ctx context.Context) (storage.Stats, error)
}

// IndexCompleteEvent is published after a run that indexed documents.
type IndexCompleteEvent struct {
	IndexVersion int64     `json:"index_version"`
	IndexedDocs  int       `json:"indexed_docs"`
	CompletedAt  time.Time `json:"completed_at"`
}

type Indexer struct {
	store     IndexStore
	tok       *tokenizer.Tokenizer
	batchSize int
	metrics   *metrics.Metrics
	publisher kafka.Publisher
	logger    *slog.Logger
}

// Option configures optional collaborators of an Indexer.
type Option func(*Indexer)

func WithMetrics(m *metrics.Metrics) Option {
	return func(ix *Indexer) { ix.metrics = m }
}

// WithPublisher announces completed runs on the index-complete topic.
func WithPublisher(p kafka.Publisher) Option {
	return func(ix *Indexer) { ix.publisher = p }
}

// New creates an Indexer. batchSize <= 0 processes every pending document
// in one run.
func New(store IndexStore, tok *tokenizer.Tokenizer, batchSize int, opts ...Option) *Indexer {
	ix := &Indexer{
		store:     store,
		tok:       tok,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Run indexes one batch and returns how many documents it processed. A
// failing document stops the run; documents committed before it stay
// indexed and the failing one is retried by the next run.
func (ix *Indexer) Run(ctx context.Context) (int, error) {
	start := time.Now()
	stats, err := ix.store.CurrentStats(ctx)
	if err != nil {
		ix.recordRun("error")
		return 0, fmt.Errorf("reading index version: %w", err)
	}
	version := stats.IndexVersion

	it := ix.store.ListUnindexed(ctx, ix.batchSize)
	defer it.Close()

	indexed := 0
	for it.Next() {
		doc := it.Document()
		if err := ix.indexDocument(ctx, doc, version); err != nil {
			ix.recordRun("error")
			ix.logger.Error("indexing run aborted",
				"doc_id", doc.ID,
				"indexed", indexed,
				"error", err,
			)
			return indexed, fmt.Errorf("indexing document %d: %w", doc.ID, err)
		}
		indexed++
		if ix.metrics != nil {
			ix.metrics.DocsIndexedTotal.Inc()
		}
	}
	if err := it.Err(); err != nil {
		ix.recordRun("error")
		return indexed, fmt.Errorf("fetching batch: %w", err)
	}

	if indexed == 0 {
		ix.recordRun("empty")
		ix.logger.Debug("nothing to index")
		return 0, nil
	}

	next, err := ix.store.RecomputeStats(ctx)
	if err != nil {
		ix.recordRun("error")
		return indexed, fmt.Errorf("recomputing stats: %w", err)
	}
	ix.recordRun("indexed")
	if ix.metrics != nil {
		ix.metrics.IndexVersion.Set(float64(next.IndexVersion))
	}
	ix.logger.Info("indexing run complete",
		"indexed", indexed,
		"index_version", next.IndexVersion,
		"doc_count", next.DocCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	ix.announce(ctx, next, indexed)
	return indexed, nil
}

func (ix *Indexer) indexDocument(ctx context.Context, doc storage.Document, version int64) error {
	titleCounts := ix.tok.CountTerms(doc.Title)
	bodyCounts := ix.tok.CountTerms(doc.Body)
	terms := unionTerms(titleCounts, bodyCounts)

	err := ix.store.InTx(ctx, func(ctx context.Context) error {
		for _, term := range terms {
			termID, err := ix.store.EnsureTermID(ctx, term)
			if err != nil {
				return err
			}
			err = ix.store.UpsertPosting(ctx, storage.Posting{
				TermID:  termID,
				DocID:   doc.ID,
				TFTitle: titleCounts[term],
				TFBody:  bodyCounts[term],
			})
			if err != nil {
				return err
			}
		}
		return ix.store.MarkIndexed(ctx, doc.ID, version)
	})
	if err != nil {
		return err
	}
	ix.logger.Debug("document indexed",
		"doc_id", doc.ID,
		"url", doc.URL,
		"terms", len(terms),
	)
	return nil
}

func (ix *Indexer) announce(ctx context.Context, stats storage.Stats, indexed int) {
	if ix.publisher == nil {
		return
	}
	event := IndexCompleteEvent{
		IndexVersion: stats.IndexVersion,
		IndexedDocs:  indexed,
		CompletedAt:  stats.CreatedAt,
	}
	err := ix.publisher.Publish(ctx, kafka.Event{
		Key:   strconv.FormatInt(stats.IndexVersion, 10),
		Value: event,
	})
	if err != nil {
		ix.logger.Warn("failed to publish index-complete event",
			"index_version", stats.IndexVersion,
			"error", err,
		)
	}
}

func (ix *Indexer) recordRun(status string) {
	if ix.metrics != nil {
		ix.metrics.IndexRunsTotal.WithLabelValues(status).Inc()
	}
}

// unionTerms returns the distinct terms of both fields in sorted order.
func unionTerms(a, b map[string]int) []string {
	terms := make([]string, 0, len(a)+len(b))
	for t := range a {
		terms = append(terms, t)
	}
	for t := range b {
		if _, ok := a[t]; !ok {
			terms = append(terms, t)
		}
	}
	sort.Strings(terms)
	return terms
}
