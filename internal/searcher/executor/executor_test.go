package executor_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage/storagetest"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	url, title, body string
}

func setup(t *testing.T, docs ...doc) (*executor.Executor, *storage.Store) {
	t.Helper()
	ctx := context.Background()
	store := storagetest.New(t)
	for _, d := range docs {
		_, err := store.UpsertDocument(ctx, d.url, d.title, d.body, time.Now())
		require.NoError(t, err)
	}

	cfg := config.Default().Search
	tok := tokenizer.New(cfg.MinTokenLen)
	_, err := indexer.New(store, tok, 0).Run(ctx)
	require.NoError(t, err)

	rk := ranker.New(store, cfg.Ranking)
	return executor.New(rk, store, tok, cfg, nil), store
}

func request(q string) executor.Request {
	return executor.Request{Query: q, K: 10, Page: 1, PageSize: 10}
}

func TestSearchHelloWorldEndToEnd(t *testing.T) {
	exec, _ := setup(t,
		doc{"http://x/a", "Hello World", "This is a hello world document"},
		doc{"http://x/b", "Other", "Completely unrelated text"},
	)

	res, err := exec.Search(context.Background(), request("hello world"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.TotalHits, 1)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "http://x/a", res.Hits[0].URL)
	assert.Equal(t, "Hello World", res.Hits[0].Title)
	assert.Contains(t, res.Hits[0].Snippet, "hello world")
	assert.Equal(t, "hello world", res.Query)
	assert.Equal(t, 10, res.K)
}

func TestSearchRanksTitleAndBodyMatchFirst(t *testing.T) {
	exec, _ := setup(t,
		doc{"http://x/a", "FastAPI tutorial", "FastAPI is great for APIs"},
		doc{"http://x/b", "Cooking pasta", "Boil water and add pasta"},
	)

	res, err := exec.Search(context.Background(), request("fastapi api"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "http://x/a", res.Hits[0].URL)
	for _, h := range res.Hits[1:] {
		assert.Greater(t, res.Hits[0].Score, h.Score)
	}
}

func TestSearchPhraseFilter(t *testing.T) {
	exec, _ := setup(t,
		doc{"http://x/a", "ML intro", "Machine learning makes search fast"},
		doc{"http://x/b", "Search", "Learning about machine shops makes search fast"},
		doc{"http://x/c", "Machine Learning Search", "fast results"},
	)

	res, err := exec.Search(context.Background(), request(`"machine learning" search`))
	require.NoError(t, err)
	urls := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		urls = append(urls, h.URL)
	}
	assert.ElementsMatch(t, []string{"http://x/a", "http://x/c"}, urls)
	assert.Equal(t, 2, res.TotalHits)
}

func TestSearchPhraseOnlyQueryIsEmpty(t *testing.T) {
	exec, _ := setup(t,
		doc{"http://x/a", "Exact", "the exact match lives here"},
		doc{"http://x/b", "Loose", "match is not exact in this one"},
	)

	// Phrases only filter keyword candidates; with no keywords nothing ranks.
	res, err := exec.Search(context.Background(), request(`"exact match"`))
	require.NoError(t, err)
	assert.Zero(t, res.TotalHits)
	assert.NotNil(t, res.Hits)
	assert.Empty(t, res.Hits)
}

func TestSearchPagination(t *testing.T) {
	var docs []doc
	for i := 0; i < 7; i++ {
		docs = append(docs, doc{fmt.Sprintf("http://x/%d", i), "Gopher", "gopher facts"})
	}
	exec, _ := setup(t, docs...)
	ctx := context.Background()

	page1, err := exec.Search(ctx, executor.Request{Query: "gopher", K: 10, Page: 1, PageSize: 3})
	require.NoError(t, err)
	page3, err := exec.Search(ctx, executor.Request{Query: "gopher", K: 10, Page: 3, PageSize: 3})
	require.NoError(t, err)
	page9, err := exec.Search(ctx, executor.Request{Query: "gopher", K: 10, Page: 9, PageSize: 3})
	require.NoError(t, err)

	assert.Equal(t, 7, page1.TotalHits)
	assert.Len(t, page1.Hits, 3)
	assert.Len(t, page3.Hits, 1)
	assert.Empty(t, page9.Hits)
	assert.Equal(t, 7, page9.TotalHits)

	// Equal scores are ordered by ascending doc id across pages.
	assert.Less(t, page1.Hits[0].DocID, page1.Hits[1].DocID)
	assert.Less(t, page1.Hits[2].DocID, page3.Hits[0].DocID)
}

func TestSearchHugePageIsEmpty(t *testing.T) {
	exec, _ := setup(t,
		doc{"http://x/a", "Gopher", "gopher facts"},
		doc{"http://x/b", "Gopher", "more gopher facts"},
	)

	for _, req := range []executor.Request{
		{Query: "gopher", K: 10, Page: 1 << 60, PageSize: 100},
		{Query: "gopher", K: 10, Page: math.MaxInt, PageSize: 1},
		{Query: "gopher", K: 10, Page: math.MaxInt / 7, PageSize: 7},
	} {
		require.NotPanics(t, func() {
			res, err := exec.Search(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, 2, res.TotalHits)
			assert.NotNil(t, res.Hits)
			assert.Empty(t, res.Hits)
			assert.Equal(t, req.Page, res.Page)
		})
	}
}

func TestCandidateLimitSaturates(t *testing.T) {
	exec, _ := setup(t)

	assert.Equal(t, 50, exec.CandidateLimit(executor.Request{K: 10, Page: 1, PageSize: 3}))
	assert.Equal(t, 60, exec.CandidateLimit(executor.Request{K: 1, Page: 2, PageSize: 4}))
	assert.Equal(t, executor.MaxCandidates, exec.CandidateLimit(executor.Request{K: 10, Page: 1 << 60, PageSize: 100}))
	assert.Equal(t, executor.MaxCandidates, exec.CandidateLimit(executor.Request{K: 10, Page: math.MaxInt, PageSize: math.MaxInt}))
	assert.Equal(t, executor.MaxCandidates, exec.CandidateLimit(executor.Request{K: math.MaxInt, Page: 1, PageSize: 10}))
}

func TestTotalHitsIsBoundedByOverFetchWindow(t *testing.T) {
	var docs []doc
	for i := 0; i < 15; i++ {
		docs = append(docs, doc{fmt.Sprintf("http://x/%d", i), "Widget", "widget catalogue entry"})
	}
	exec, _ := setup(t, docs...)

	req := executor.Request{Query: "widget", K: 1, Page: 1, PageSize: 1}
	preK := exec.CandidateLimit(req)
	require.Equal(t, 10, preK)

	res, err := exec.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, preK, res.TotalHits, "total hits cap at the candidate window, not the 15 matching documents")
}

func TestSearchNoMatches(t *testing.T) {
	exec, _ := setup(t, doc{"http://x/a", "Hello", "world"})

	res, err := exec.Search(context.Background(), request("zebra"))
	require.NoError(t, err)
	assert.Zero(t, res.TotalHits)
	assert.NotNil(t, res.Hits)
	assert.Empty(t, res.Hits)
}

type failingRanker struct{ err error }

func (f failingRanker) Rank(context.Context, []string, int) ([]ranker.ScoredDoc, error) {
	return nil, f.err
}

func TestSearchPropagatesRankerFailure(t *testing.T) {
	boom := errors.New("storage unavailable")
	store := storagetest.New(t)
	exec := executor.New(failingRanker{boom}, store, tokenizer.New(2), config.Default().Search, nil)

	res, err := exec.Search(context.Background(), request("anything"))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)
}
