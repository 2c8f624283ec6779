// Package crawler walks a set of allowed domains breadth-first and feeds
// every HTML page it can read into the document store. It honours
// robots.txt and spaces requests to each host by the configured crawl delay.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	StatusStored  = ingestion.StatusStored
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Sink stores a crawled page; *publisher.Publisher implements it.
type Sink interface {
	Ingest(ctx context.Context, url, title, body string, fetchedAt time.Time) (*ingestion.IngestResponse, error)
}

// Result is the outcome for one visited URL. Reason explains skipped and
// failed pages.
type Result struct {
	URL    string
	DocID  int64
	Status string
	Reason string
}

type Crawler struct {
	sink     Sink
	cfg      config.CrawlerConfig
	allowed  map[string]bool
	client   *http.Client
	robots   *robotsCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type Option func(*Crawler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Crawler) { c.metrics = m }
}

// WithHTTPClient replaces the default client built from the config timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Crawler) { c.client = client }
}

func New(sink Sink, cfg config.CrawlerConfig, allowedDomains []string, opts ...Option) *Crawler {
	allowed := make(map[string]bool, len(allowedDomains))
	for _, d := range allowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allowed[d] = true
		}
	}
	c := &Crawler{
		sink:     sink,
		cfg:      cfg,
		allowed:  allowed,
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger:   logger.WithComponent("crawler"),
		now:      func() time.Time { return time.Now().UTC() },
		limiters: make(map[string]*rate.Limiter),
	}
	if c.cfg.MaxPages <= 0 {
		c.cfg.MaxPages = 200
	}
	for _, opt := range opts {
		opt(c)
	}
	c.robots = newRobotsCache(c.client, cfg.UserAgent)
	return c
}

type queued struct {
	url   string
	depth int
}

// Crawl visits seeds and the links reachable from them, up to MaxPages
// fetched pages and MaxDepth link hops. Per-page failures are reported in
// the results; only context cancellation stops the crawl early.
func (c *Crawler) Crawl(ctx context.Context, seeds []string) ([]Result, error) {
	seen := make(map[string]bool)
	var queue []queued
	for _, s := range seeds {
		u, ok := Normalize(s, "")
		if !ok || !hostAllowed(u, c.allowed) || seen[u] {
			continue
		}
		seen[u] = true
		queue = append(queue, queued{url: u})
	}

	var results []Result
	pages := 0
	for len(queue) > 0 && pages < c.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		item := queue[0]
		queue = queue[1:]

		allowed, delay := c.robots.allowed(ctx, item.url)
		if !allowed {
			results = append(results, c.record(Result{URL: item.url, Status: StatusSkipped, Reason: "robots"}))
			continue
		}
		if err := c.wait(ctx, item.url, delay); err != nil {
			return results, err
		}

		result, page, fetched := c.visit(ctx, item.url)
		if fetched {
			pages++
		}
		results = append(results, c.record(result))
		if page == nil || item.depth >= c.cfg.MaxDepth {
			continue
		}
		for _, href := range page.Links {
			link, ok := Normalize(item.url, href)
			if !ok || seen[link] || !hostAllowed(link, c.allowed) {
				continue
			}
			seen[link] = true
			queue = append(queue, queued{url: link, depth: item.depth + 1})
		}
	}

	c.logger.Info("crawl finished", "pages", pages, "results", len(results), "pending", len(queue))
	return results, nil
}

// visit fetches and stores one page. It returns the extracted page when it
// was stored, so its links can be followed, and whether an HTTP response
// was received.
func (c *Crawler) visit(ctx context.Context, pageURL string) (Result, *Page, bool) {
	result := Result{URL: pageURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		result.Status, result.Reason = StatusError, err.Error()
		return result, nil, false
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		result.Status, result.Reason = StatusError, err.Error()
		return result, nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		result.Status, result.Reason = StatusError, fmt.Sprintf("http_%d", resp.StatusCode)
		return result, nil, true
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		result.Status, result.Reason = StatusSkipped, "non_html"
		return result, nil, true
	}

	limit := c.cfg.MaxResponseBytes
	if limit <= 0 {
		limit = 2_000_000
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		result.Status, result.Reason = StatusError, err.Error()
		return result, nil, true
	}
	page, err := Extract(bytes.NewReader(raw))
	if err != nil {
		result.Status, result.Reason = StatusError, err.Error()
		return result, nil, true
	}
	if page.Body == "" {
		result.Status, result.Reason = StatusSkipped, "empty_body"
		return result, nil, true
	}

	title := page.Title
	if title == "" {
		title = pageURL
	}
	stored, err := c.sink.Ingest(ctx, pageURL, title, page.Body, c.now())
	if err != nil {
		result.Status, result.Reason = StatusError, err.Error()
		return result, nil, true
	}
	result.Status, result.DocID = StatusStored, stored.DocID
	c.logger.Info("crawled", "url", pageURL, "doc_id", stored.DocID)
	return result, page, true
}

// wait blocks until the host's limiter admits another request. A robots
// crawl delay longer than the configured one wins.
func (c *Crawler) wait(ctx context.Context, pageURL string, robotsDelay time.Duration) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	delay := max(c.cfg.CrawlDelay, robotsDelay)

	c.mu.Lock()
	limiter, ok := c.limiters[host]
	if !ok {
		limit := rate.Inf
		if delay > 0 {
			limit = rate.Every(delay)
		}
		limiter = rate.NewLimiter(limit, 1)
		c.limiters[host] = limiter
	}
	c.mu.Unlock()
	return limiter.Wait(ctx)
}

func (c *Crawler) record(r Result) Result {
	if c.metrics != nil {
		c.metrics.CrawlPagesTotal.WithLabelValues(r.Status).Inc()
	}
	if r.Status != StatusStored {
		c.logger.Debug("page not stored", "url", r.URL, "status", r.Status, "reason", r.Reason)
	}
	return r
}
