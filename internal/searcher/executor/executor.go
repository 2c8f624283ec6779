// Package executor runs a search end to end: BM25 candidates with
// over-fetch, phrase filtering, pagination and snippets.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/tracing"
)

// Ranker returns the top k documents for keyword terms.
type Ranker interface {
	Rank(ctx context.Context, terms []string, k int) ([]ranker.ScoredDoc, error)
}

// DocumentSource loads documents in the order of ids.
type DocumentSource interface {
	GetDocuments(ctx context.Context, ids []int64) ([]storage.Document, error)
}

// Request is one validated search call.
type Request struct {
	Query    string
	K        int
	Page     int
	PageSize int
}

type Hit struct {
	DocID   int64   `json:"docId"`
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Result is one page of hits. TotalHits counts the phrase-filtered
// candidates within the over-fetch window, not the whole corpus.
type Result struct {
	Query     string `json:"query"`
	K         int    `json:"k"`
	Page      int    `json:"page"`
	PageSize  int    `json:"pageSize"`
	TotalHits int    `json:"totalHits"`
	Hits      []Hit  `json:"hits"`
}

type Executor struct {
	ranker     Ranker
	docs       DocumentSource
	tok        *tokenizer.Tokenizer
	overFetch  int
	snippetLen int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates an Executor. m may be nil.
func New(r Ranker, docs DocumentSource, tok *tokenizer.Tokenizer, cfg config.SearchConfig, m *metrics.Metrics) *Executor {
	overFetch := cfg.OverFetchFactor
	if overFetch < 1 {
		overFetch = 5
	}
	snippetLen := cfg.SnippetLength
	if snippetLen < 1 {
		snippetLen = DefaultSnippetLength
	}
	return &Executor{
		ranker:     r,
		docs:       docs,
		tok:        tok,
		overFetch:  overFetch,
		snippetLen: snippetLen,
		metrics:    m,
		logger:     slog.Default().With("component", "query-executor"),
	}
}

// MaxCandidates caps the ranker request of a single search. Pages past the
// capped window come back empty.
const MaxCandidates = 10000

// CandidateLimit is how many ranked documents a request asks the ranker for:
// max(K, (Page+1)*PageSize) times the over-fetch factor, saturated at
// MaxCandidates.
func (e *Executor) CandidateLimit(req Request) int {
	window := max(req.K, 0)
	if req.PageSize > 0 {
		if req.Page >= MaxCandidates/req.PageSize {
			return MaxCandidates
		}
		window = max(window, (max(req.Page, 0)+1)*req.PageSize)
	}
	if window > MaxCandidates/e.overFetch {
		return MaxCandidates
	}
	return window * e.overFetch
}

// pageBounds returns the [start, end) slice of n results shown on a page.
// Offsets past n are clamped without computing (page-1)*pageSize when that
// product would exceed n.
func pageBounds(page, pageSize, n int) (int, int) {
	if page < 1 || pageSize < 1 || page-1 > n/pageSize {
		return n, n
	}
	start := min((page-1)*pageSize, n)
	return start, min(start+pageSize, n)
}

// Search runs req. Storage failures are returned as-is; no partial page is
// produced.
func (e *Executor) Search(ctx context.Context, req Request) (*Result, error) {
	result, err := e.search(ctx, req)
	if e.metrics != nil {
		switch {
		case err != nil:
			e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		case result.TotalHits == 0:
			e.metrics.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
		default:
			e.metrics.SearchQueriesTotal.WithLabelValues("hit").Inc()
		}
		if err == nil {
			e.metrics.SearchResultsCount.Observe(float64(len(result.Hits)))
		}
	}
	return result, err
}

func (e *Executor) search(ctx context.Context, req Request) (*Result, error) {
	query := parser.Parse(req.Query, e.tok)
	terms := query.Terms
	preK := e.CandidateLimit(req)

	rankCtx, rankSpan := tracing.StartChildSpan(ctx, "rank")
	ranked, err := e.ranker.Rank(rankCtx, terms, preK)
	rankSpan.SetAttr("candidates", len(ranked))
	rankSpan.End()
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}

	ids := make([]int64, len(ranked))
	for i, s := range ranked {
		ids[i] = s.DocID
	}
	loadCtx, loadSpan := tracing.StartChildSpan(ctx, "load_documents")
	docs, err := e.docs.GetDocuments(loadCtx, ids)
	loadSpan.End()
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	byID := make(map[int64]storage.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	filtered := make([]ranker.ScoredDoc, 0, len(ranked))
	for _, s := range ranked {
		doc, ok := byID[s.DocID]
		if !ok {
			continue
		}
		if phrasesMatch(query.Phrases, doc.Title, doc.Body) {
			filtered = append(filtered, s)
		}
	}

	start, end := pageBounds(req.Page, req.PageSize, len(filtered))

	snippetTerm := ""
	if query.HasTerms() {
		snippetTerm = query.Terms[0]
	}
	hits := make([]Hit, 0, end-start)
	for _, s := range filtered[start:end] {
		doc := byID[s.DocID]
		hits = append(hits, Hit{
			DocID:   doc.ID,
			URL:     doc.URL,
			Title:   doc.Title,
			Snippet: Snippet(doc.Body, snippetTerm, e.snippetLen),
			Score:   s.Score,
		})
	}

	e.logger.Debug("query executed",
		"query", req.Query,
		"terms", terms,
		"phrases", query.Phrases,
		"pre_k", preK,
		"candidates", len(ranked),
		"filtered", len(filtered),
		"returned", len(hits),
	)
	return &Result{
		Query:     req.Query,
		K:         req.K,
		Page:      req.Page,
		PageSize:  req.PageSize,
		TotalHits: len(filtered),
		Hits:      hits,
	}, nil
}

// phrasesMatch requires every phrase to occur, ignoring case, in the title
// or the body.
func phrasesMatch(phrases []string, title, body string) bool {
	if len(phrases) == 0 {
		return true
	}
	hayTitle := strings.ToLower(title)
	hayBody := strings.ToLower(body)
	for _, p := range phrases {
		needle := strings.ToLower(p)
		if !strings.Contains(hayTitle, needle) && !strings.Contains(hayBody, needle) {
			return false
		}
	}
	return true
}
