// Package ingestion defines the request/response types and Kafka event
// schema of the document feed.
package ingestion

import "time"

// IngestRequest is the JSON body accepted by the document feed. FetchedAt
// is an ISO-8601 timestamp; empty means now.
type IngestRequest struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	FetchedAt string `json:"fetched_at"`
}

// IngestResponse is returned once the document is stored.
type IngestResponse struct {
	DocID  int64  `json:"doc_id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

// IngestEvent is published after a document is stored and awaits indexing.
type IngestEvent struct {
	DocID      int64     `json:"doc_id"`
	URL        string    `json:"url"`
	FetchedAt  time.Time `json:"fetched_at"`
	IngestedAt time.Time `json:"ingested_at"`
}

const StatusStored = "stored"
