package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventCacheHit   EventType = "cache_hit"
	EventZeroResult EventType = "zero_result"
	EventError      EventType = "search_error"
)

// SearchEvent describes one served search request.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	K         int       `json:"k"`
	Page      int       `json:"page"`
	PageSize  int       `json:"page_size"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Classify picks the event type for a finished request.
func Classify(cacheHit bool, totalHits int, err error) EventType {
	switch {
	case err != nil:
		return EventError
	case totalHits == 0:
		return EventZeroResult
	case cacheHit:
		return EventCacheHit
	default:
		return EventSearch
	}
}
