// Package consumer drives indexing from the document-ingest topic: every
// ingest event triggers an indexing pass over whatever is still unindexed.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/kafka"
)

// Trigger runs one indexing pass. *indexer.Runner satisfies it.
type Trigger interface {
	Trigger(ctx context.Context) (int, error)
}

// HandleMessage returns a Kafka MessageHandler that indexes after each
// ingest event. Undecodable events are logged and committed so they do not
// block the partition; a failed pass leaves the message uncommitted.
func HandleMessage(runner Trigger) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		logger.Debug("processing ingest event",
			"doc_id", event.DocID,
			"url", event.URL,
		)

		n, err := runner.Trigger(ctx)
		if err != nil {
			return fmt.Errorf("indexing after ingest of document %d: %w", event.DocID, err)
		}
		if n > 0 {
			logger.Info("documents indexed", "count", n, "trigger_doc_id", event.DocID)
		}
		return nil
	}
}
