// Package main drives concurrent GET /search traffic against a running
// searcher and prints throughput, latency percentiles and cache hit counts.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

var defaultQueries = []string{
	"search engine",
	"inverted index",
	"bm25 ranking",
	`"hello world"`,
	"python -snake",
	"web crawler",
	"query cache",
	"document store",
	"robots txt",
	"tokenizer stop words",
}

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	k           int
	pageSize    int
	queriesFile string
}

var opts options

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Generate search traffic and report latency",
	RunE:  run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.baseURL, "url", "http://localhost:8000", "searcher base URL")
	f.IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	f.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	f.IntVar(&opts.k, "k", 10, "k sent with each query")
	f.IntVar(&opts.pageSize, "page-size", 10, "pageSize sent with each query")
	f.StringVar(&opts.queriesFile, "queries", "", "file with one query per line (default: built-in set)")
}

func run(cmd *cobra.Command, args []string) error {
	if opts.concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1")
	}
	queries := defaultQueries
	if opts.queriesFile != "" {
		loaded, err := loadQueries(opts.queriesFile)
		if err != nil {
			return err
		}
		queries = loaded
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== Astra Search Load Test ===")
	fmt.Fprintf(out, "Target:      %s\n", opts.baseURL)
	fmt.Fprintf(out, "Concurrency: %d\n", opts.concurrency)
	fmt.Fprintf(out, "Duration:    %s\n", opts.duration)
	fmt.Fprintf(out, "Queries:     %d unique\n\n", len(queries))

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.duration)
	defer cancel()
	stats := runLoad(ctx, opts, queries)
	stats.report(out, opts.duration)

	if stats.total.Load() == 0 {
		return fmt.Errorf("no requests completed; is the searcher running at %s?", opts.baseURL)
	}
	return nil
}

func loadQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening queries file: %w", err)
	}
	defer f.Close()

	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading queries file: %w", err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("queries file %s is empty", path)
	}
	return queries, nil
}

func searchURL(o options, query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("k", strconv.Itoa(o.k))
	v.Set("pageSize", strconv.Itoa(o.pageSize))
	return strings.TrimRight(o.baseURL, "/") + "/search?" + v.Encode()
}

func runLoad(ctx context.Context, o options, queries []string) *loadStats {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        o.concurrency * 2,
			MaxIdleConnsPerHost: o.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var wg sync.WaitGroup
	for w := 0; w < o.concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				target := searchURL(o, queries[next%len(queries)])
				next++

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					stats.record(0, 0, false, err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(elapsed, 0, false, err)
					}
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, resp.Header.Get("X-Cache") == "HIT", nil)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

type loadStats struct {
	total     atomic.Int64
	success   atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newLoadStats() *loadStats {
	return &loadStats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
	}
}

func (s *loadStats) record(d time.Duration, status int, cacheHit bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.failed.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[status]++
	s.mu.Unlock()
}

func (s *loadStats) report(w io.Writer, duration time.Duration) {
	total := s.total.Load()
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", s.success.Load())
	fmt.Fprintf(w, "Errors:          %d\n", s.failed.Load())
	fmt.Fprintf(w, "Cache Hits:      %d\n", s.cacheHits.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.failed.Load())/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	s.mu.Lock()
	latencies := make([]time.Duration, len(s.latencies))
	copy(latencies, s.latencies)
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(s.codes))
	for code, n := range s.codes {
		counts[code] = n
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		var sq float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sq += diff * diff
		}

		fmt.Fprintln(w, "\n=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sq/float64(len(latencies)))))
	}

	sort.Ints(codes)
	fmt.Fprintln(w, "\n=== Status Codes ===")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, counts[code])
	}
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
