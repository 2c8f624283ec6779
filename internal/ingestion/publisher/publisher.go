// Package publisher stores feed documents and announces them on the
// document-ingest topic so the indexer can pick them up.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/metrics"
)

// DocumentStore is the write side of the document store.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, url, title, body string, fetchedAt time.Time) (int64, error)
}

// Publisher coordinates document persistence and Kafka event production.
type Publisher struct {
	store    DocumentStore
	producer kafka.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Publisher. producer may be nil when Kafka is not configured;
// documents are then only stored and indexed by polling.
func New(store DocumentStore, producer kafka.Publisher, m *metrics.Metrics) *Publisher {
	return &Publisher{
		store:    store,
		producer: producer,
		metrics:  m,
		logger:   slog.Default().With("component", "publisher"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ingest upserts the document and publishes an IngestEvent. The document is
// durable once stored, so a failed publish is logged and not returned.
func (p *Publisher) Ingest(ctx context.Context, url, title, body string, fetchedAt time.Time) (*ingestion.IngestResponse, error) {
	docID, err := p.store.UpsertDocument(ctx, url, title, body, fetchedAt)
	if err != nil {
		p.count("error")
		return nil, fmt.Errorf("storing document: %w", err)
	}
	p.count(ingestion.StatusStored)

	if p.producer != nil {
		event := kafka.Event{
			Key: strconv.FormatInt(docID, 10),
			Value: ingestion.IngestEvent{
				DocID:      docID,
				URL:        url,
				FetchedAt:  fetchedAt.UTC(),
				IngestedAt: p.now(),
			},
		}
		if err := p.producer.Publish(ctx, event); err != nil {
			p.logger.Error("failed to publish ingest event, document waits for the next poll",
				"doc_id", docID,
				"url", url,
				"error", err,
			)
		}
	}

	return &ingestion.IngestResponse{
		DocID:  docID,
		URL:    url,
		Status: ingestion.StatusStored,
	}, nil
}

// Reject records a request that failed validation.
func (p *Publisher) Reject() {
	p.count("rejected")
}

func (p *Publisher) count(status string) {
	if p.metrics != nil {
		p.metrics.DocsIngestedTotal.WithLabelValues(status).Inc()
	}
}
