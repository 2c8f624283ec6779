// Package cache keeps search result pages in Redis. Keys include the index
// version, so a new indexing run makes older entries unreachable; they are
// also flushed eagerly when an index-complete event arrives.
//
// Re-upserting an indexed document does not move the index version, yet its
// new title and body change hits and phrase matches. HandleDocumentIngest
// flushes the cache for those events; without a Kafka consumer running it,
// such pages stay cached until the TTL or the next indexing run.
//
// Redis calls go through a breaker and every Redis failure degrades to a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/astra-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Backend is the key-value store behind the cache; *redis.Client implements
// it. Get reports absent keys with pkgredis.ErrMiss.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// MarkerSource reports whether a document has been indexed.
type MarkerSource interface {
	IndexedMarker(ctx context.Context, docID int64) (*storage.IndexedMarker, error)
}

// VersionSource reports the current index version.
type VersionSource interface {
	CurrentStats(ctx context.Context) (storage.Stats, error)
}

type QueryCache struct {
	backend  Backend
	versions VersionSource
	ttl      time.Duration
	breaker  *resilience.Breaker
	metrics  *metrics.Metrics
	group    singleflight.Group
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
}

// Option configures a QueryCache.
type Option func(*options)

type options struct {
	breaker resilience.BreakerConfig
}

// WithBreaker sets how many consecutive Redis failures stop cache traffic
// and how long it stays stopped before a trial call.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(o *options) {
		o.breaker.Threshold = threshold
		o.breaker.Cooldown = cooldown
	}
}

// New creates a QueryCache. m may be nil.
func New(backend Backend, versions VersionSource, ttl time.Duration, m *metrics.Metrics, opts ...Option) *QueryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.breaker.Benign = func(err error) bool { return errors.Is(err, pkgredis.ErrMiss) }
	o.breaker.OnStateChange = func(name string, to resilience.State) {
		if m != nil {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &QueryCache{
		backend:  backend,
		versions: versions,
		ttl:      ttl,
		breaker:  resilience.NewBreaker("redis-cache", o.breaker),
		metrics:  m,
		logger:   slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute returns a cached page for req or computes it. Concurrent
// misses on the same key share one computation. The bool reports a hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req executor.Request,
	compute func(ctx context.Context) (*executor.Result, error),
) (*executor.Result, bool, error) {
	stats, err := c.versions.CurrentStats(ctx)
	if err != nil {
		c.logger.Warn("index version unavailable, bypassing cache", "error", err)
		result, err := compute(ctx)
		return result, false, err
	}
	key := buildKey(req, stats.IndexVersion)

	if result, ok := c.get(ctx, key); ok {
		c.recordHit()
		return withQuery(result, req.Query), true, nil
	}
	c.recordMiss()

	val, err, _ := c.group.Do(key, func() (any, error) {
		if result, ok := c.get(ctx, key); ok {
			return result, nil
		}
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return withQuery(val.(*executor.Result), req.Query), false, nil
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.Result, bool) {
	var data []byte
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.backend.Get(ctx, key)
		return err
	})
	switch {
	case errors.Is(err, pkgredis.ErrMiss), errors.Is(err, resilience.ErrBreakerOpen):
		return nil, false
	case err != nil:
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrBreakerOpen) {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Invalidate removes every cached page.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// HandleIndexComplete returns a Kafka handler that flushes the cache after
// each completed indexing run.
func (c *QueryCache) HandleIndexComplete() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[indexer.IndexCompleteEvent](value)
		if err != nil {
			c.logger.Error("failed to decode index-complete event", "error", err, "key", string(key))
			return nil
		}
		c.logger.Info("index advanced", "index_version", event.IndexVersion, "indexed_docs", event.IndexedDocs)
		return c.Invalidate(ctx)
	}
}

// HandleDocumentIngest returns a Kafka handler for document-ingest events.
// Only documents that were indexed before can appear in a cached page, so
// the cache is flushed when the stored document already has a marker, or
// when the marker cannot be read.
func (c *QueryCache) HandleDocumentIngest(markers MarkerSource) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			c.logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			return nil
		}
		marker, err := markers.IndexedMarker(ctx, event.DocID)
		switch {
		case err != nil:
			c.logger.Warn("indexed marker unavailable, flushing cache", "doc_id", event.DocID, "error", err)
		case marker == nil:
			return nil
		default:
			c.logger.Info("indexed document replaced", "doc_id", event.DocID, "url", event.URL)
		}
		return c.Invalidate(ctx)
	}
}

// Stats returns hit and miss counts since start.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Breaker reports the state of the breaker guarding Redis.
func (c *QueryCache) Breaker() resilience.BreakerSnapshot {
	return c.breaker.Snapshot()
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(req executor.Request, version int64) string {
	raw := fmt.Sprintf("v=%d|q=%s|k=%d|p=%d|ps=%d",
		version, normalizeQuery(req.Query), req.K, req.Page, req.PageSize)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery folds case and outer whitespace. Inner whitespace is kept
// because it is significant inside phrases.
func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// withQuery copies a shared result and echoes the caller's own query text.
func withQuery(result *executor.Result, query string) *executor.Result {
	out := *result
	out.Query = query
	return &out
}
