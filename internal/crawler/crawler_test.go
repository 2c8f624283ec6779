package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storedPage struct {
	url, title, body string
}

type recordingSink struct {
	mu    sync.Mutex
	pages []storedPage
}

func (s *recordingSink) Ingest(_ context.Context, url, title, body string, _ time.Time) (*ingestion.IngestResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, storedPage{url, title, body})
	return &ingestion.IngestResponse{DocID: int64(len(s.pages)), URL: url, Status: ingestion.StatusStored}, nil
}

func testSite(t *testing.T, robots string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		if robots == "" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, robots)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Home</title></head><body>
<nav>menu</nav>
<main><p>Welcome to the home page</p><script>var x = 1;</script></main>
<a href="/a">A</a>
<a href="/a?utm_source=newsletter#top">A again</a>
<a href="/private/secret">Private</a>
<a href="/image.png">Image</a>
<a href="/missing">Missing</a>
<a href="http://other.example/">Elsewhere</a>
<a href="mailto:someone@example.com">Mail</a>
</body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Page A text</p><a href="/b">B</a></body></html>`)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Page B text</p></body></html>`)
	})
	mux.HandleFunc("/private/secret", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>secret</body></html>`)
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(maxPages, maxDepth int) config.CrawlerConfig {
	cfg := config.Default().Crawler
	cfg.CrawlDelay = 0
	cfg.HTTPTimeout = 2 * time.Second
	cfg.MaxPages = maxPages
	cfg.MaxDepth = maxDepth
	return cfg
}

func byURL(results []Result) map[string]Result {
	out := make(map[string]Result, len(results))
	for _, r := range results {
		out[r.URL] = r
	}
	return out
}

func TestCrawlFollowsRulesAndDepth(t *testing.T) {
	srv := testSite(t, "User-agent: *\nDisallow: /private\n")
	sink := &recordingSink{}
	c := New(sink, testConfig(50, 1), []string{"127.0.0.1"})

	results, err := c.Crawl(context.Background(), []string{srv.URL + "/"})
	require.NoError(t, err)
	got := byURL(results)

	home := got[srv.URL+"/"]
	assert.Equal(t, StatusStored, home.Status)
	assert.Equal(t, StatusStored, got[srv.URL+"/a"].Status)
	assert.Equal(t, Result{URL: srv.URL + "/private/secret", Status: StatusSkipped, Reason: "robots"}, got[srv.URL+"/private/secret"])
	assert.Equal(t, "non_html", got[srv.URL+"/image.png"].Reason)
	assert.Equal(t, StatusError, got[srv.URL+"/missing"].Status)
	assert.Equal(t, "http_404", got[srv.URL+"/missing"].Reason)
	assert.NotContains(t, got, srv.URL+"/b", "links beyond max depth are not followed")
	assert.Len(t, results, 5, "duplicate and off-domain links are dropped")

	require.Len(t, sink.pages, 2)
	assert.Equal(t, storedPage{srv.URL + "/", "Home", "Welcome to the home page"}, sink.pages[0])
	assert.Equal(t, srv.URL+"/a", sink.pages[1].title, "untitled pages fall back to their URL")
}

func TestCrawlStopsAtMaxPages(t *testing.T) {
	srv := testSite(t, "")
	sink := &recordingSink{}
	c := New(sink, testConfig(1, 3), []string{"127.0.0.1"})

	results, err := c.Crawl(context.Background(), []string{srv.URL})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, srv.URL+"/", results[0].URL)
}

func TestMissingRobotsAllowsEverything(t *testing.T) {
	srv := testSite(t, "")
	c := New(&recordingSink{}, testConfig(50, 1), []string{"127.0.0.1"})

	results, err := c.Crawl(context.Background(), []string{srv.URL + "/private/secret"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusStored, results[0].Status)
}

func TestSeedsOutsideAllowedDomainsAreIgnored(t *testing.T) {
	srv := testSite(t, "")
	c := New(&recordingSink{}, testConfig(50, 1), []string{"example.org"})

	results, err := c.Crawl(context.Background(), []string{srv.URL, "ftp://example.org/file"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCrawlHonoursCancellation(t *testing.T) {
	srv := testSite(t, "")
	c := New(&recordingSink{}, testConfig(50, 1), []string{"127.0.0.1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Crawl(ctx, []string{srv.URL})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHostAllowed(t *testing.T) {
	allowed := map[string]bool{"example.com": true}
	assert.True(t, hostAllowed("http://example.com/x", allowed))
	assert.True(t, hostAllowed("https://docs.example.com/", allowed))
	assert.True(t, hostAllowed("http://EXAMPLE.com:8080/", allowed))
	assert.False(t, hostAllowed("http://notexample.com/", allowed))
	assert.False(t, hostAllowed("http://example.com.evil.io/", allowed))
}
