package crawler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const maxRobotsBytes = 512 << 10

// robotsCache fetches robots.txt once per scheme and host.
type robotsCache struct {
	client    *http.Client
	userAgent string
	mu        sync.Mutex
	rules     map[string]*robotstxt.RobotsData
}

func newRobotsCache(client *http.Client, userAgent string) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		rules:     make(map[string]*robotstxt.RobotsData),
	}
}

// allowed reports whether the crawler may fetch rawURL and the host's
// requested crawl delay. An unreachable robots.txt allows everything.
func (c *robotsCache) allowed(ctx context.Context, rawURL string) (bool, time.Duration) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, 0
	}
	data := c.lookup(ctx, u)
	if data == nil {
		return true, 0
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	var delay time.Duration
	if group := data.FindGroup(c.userAgent); group != nil {
		delay = group.CrawlDelay
	}
	return data.TestAgent(path, c.userAgent), delay
}

func (c *robotsCache) lookup(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	base := u.Scheme + "://" + u.Host

	c.mu.Lock()
	data, ok := c.rules[base]
	c.mu.Unlock()
	if ok {
		return data
	}

	data = c.fetch(ctx, base)
	c.mu.Lock()
	c.rules[base] = data
	c.mu.Unlock()
	return data
}

// fetch returns nil when robots.txt cannot be retrieved or parsed.
func (c *robotsCache) fetch(ctx context.Context, base string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil
	}
	return data
}
