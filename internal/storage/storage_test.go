package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fetched = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func collect(t *testing.T, it *storage.DocumentIterator) []int64 {
	t.Helper()
	defer it.Close()
	var ids []int64
	for it.Next() {
		ids = append(ids, it.Document().ID)
	}
	require.NoError(t, it.Err())
	return ids
}

func TestUpsertDocumentIsIdempotent(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()

	first, err := store.UpsertDocument(ctx, "http://x/a", "Title", "one two  three", fetched)
	require.NoError(t, err)
	second, err := store.UpsertDocument(ctx, "http://x/a", "Title", "one two  three", fetched)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	n, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	doc, err := store.GetDocument(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, 3, doc.Length)
	assert.True(t, fetched.Equal(doc.FetchedAt))
}

func TestUpsertDocumentReplacesFieldsAndKeepsID(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()

	id, err := store.UpsertDocument(ctx, "http://x/a", "Old", "old body", fetched)
	require.NoError(t, err)
	again, err := store.UpsertDocument(ctx, "http://x/a", "New", "a much longer new body", fetched.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, id, again)

	doc, err := store.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "New", doc.Title)
	assert.Equal(t, 5, doc.Length)
}

func TestGetDocumentMissingReturnsNil(t *testing.T) {
	store := storagetest.New(t)
	doc, err := store.GetDocument(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestGetDocumentsPreservesOrderAndDropsMissing(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()

	a, _ := store.UpsertDocument(ctx, "http://x/a", "A", "a", fetched)
	b, _ := store.UpsertDocument(ctx, "http://x/b", "B", "b", fetched)
	c, _ := store.UpsertDocument(ctx, "http://x/c", "C", "c", fetched)

	docs, err := store.GetDocuments(ctx, []int64{c, 999, a, b})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{docs[0].Title, docs[1].Title, docs[2].Title})

	empty, err := store.GetDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListUnindexedSkipsMarkedDocuments(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()

	var ids []int64
	for _, u := range []string{"http://x/1", "http://x/2", "http://x/3", "http://x/4"} {
		id, err := store.UpsertDocument(ctx, u, "t", "body", fetched)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, store.MarkIndexed(ctx, ids[1], 1))

	assert.Equal(t, []int64{ids[0], ids[2], ids[3]}, collect(t, store.ListUnindexed(ctx, 0)))
	assert.Equal(t, []int64{ids[0], ids[2]}, collect(t, store.ListUnindexed(ctx, 2)))
}

func TestEnsureTermIDIsStable(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()

	first, err := store.EnsureTermID(ctx, "search")
	require.NoError(t, err)
	second, err := store.EnsureTermID(ctx, "search")
	require.NoError(t, err)
	other, err := store.EnsureTermID(ctx, "engine")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)

	ids, err := store.LookupTermIDs(ctx, []string{"search", "engine", "search", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"search": first, "engine": other}, ids)
}

func TestPostingsJoinDocumentLength(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()

	doc, _ := store.UpsertDocument(ctx, "http://x/a", "t", "one two three four", fetched)
	term, _ := store.EnsureTermID(ctx, "one")
	require.NoError(t, store.UpsertPosting(ctx, storage.Posting{TermID: term, DocID: doc, TFTitle: 1, TFBody: 2}))
	require.NoError(t, store.UpsertPosting(ctx, storage.Posting{TermID: term, DocID: doc, TFTitle: 0, TFBody: 3}))

	postings, err := store.Postings(ctx, []int64{term, 12345})
	require.NoError(t, err)
	require.Len(t, postings[term], 1)
	assert.Equal(t, storage.Posting{TermID: term, DocID: doc, TFTitle: 0, TFBody: 3, DocLength: 4}, postings[term][0])
	assert.NotContains(t, postings, int64(12345))

	empty, err := store.Postings(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStatsBootstrapAndRecompute(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()

	st, err := store.CurrentStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, st.DocCount)
	assert.Zero(t, st.AvgDocLen)
	assert.EqualValues(t, 1, st.IndexVersion)

	a, _ := store.UpsertDocument(ctx, "http://x/a", "t", "one two", fetched)
	_, _ = store.UpsertDocument(ctx, "http://x/b", "t", "one two three four", fetched)
	require.NoError(t, store.MarkIndexed(ctx, a, 1))

	next, err := store.RecomputeStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, next.DocCount, "unindexed documents count too")
	assert.InDelta(t, 3.0, next.AvgDocLen, 1e-9)
	assert.EqualValues(t, 2, next.IndexVersion)

	current, err := store.CurrentStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, current.IndexVersion)
}

func TestBulkLookupsSpanManyBatches(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()

	a, err := store.UpsertDocument(ctx, "http://x/a", "A", "a", fetched)
	require.NoError(t, err)
	b, err := store.UpsertDocument(ctx, "http://x/b", "B", "b", fetched)
	require.NoError(t, err)

	ids := make([]int64, 0, 1202)
	for i := int64(0); i < 1200; i++ {
		ids = append(ids, 100000+i)
	}
	ids = append(ids, b, a)

	docs, err := store.GetDocuments(ctx, ids)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, b, docs[0].ID)
	assert.Equal(t, a, docs[1].ID)

	termID, err := store.EnsureTermID(ctx, "needle")
	require.NoError(t, err)
	terms := make([]string, 0, 1201)
	for i := 0; i < 1200; i++ {
		terms = append(terms, fmt.Sprintf("absent%d", i))
	}
	terms = append(terms, "needle")
	found, err := store.LookupTermIDs(ctx, terms)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"needle": termID}, found)

	require.NoError(t, store.UpsertPosting(ctx, storage.Posting{TermID: termID, DocID: a, TFBody: 1}))
	termIDs := make([]int64, 0, 1201)
	for i := int64(0); i < 1200; i++ {
		termIDs = append(termIDs, 500000+i)
	}
	termIDs = append(termIDs, termID)
	postings, err := store.Postings(ctx, termIDs)
	require.NoError(t, err)
	require.Len(t, postings[termID], 1)
	assert.Equal(t, a, postings[termID][0].DocID)
}

func TestMigrateIsRepeatable(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	st, err := store.CurrentStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.IndexVersion)
}

func TestInTxRollsBackComposedWrites(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(ctx context.Context) error {
		doc, err := store.UpsertDocument(ctx, "http://x/a", "t", "body", fetched)
		require.NoError(t, err)
		require.NoError(t, store.MarkIndexed(ctx, doc, 1))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkerRoundTrip(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()

	doc, _ := store.UpsertDocument(ctx, "http://x/a", "t", "body", fetched)
	m, err := store.IndexedMarker(ctx, doc)
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, store.MarkIndexed(ctx, doc, 7))
	m, err = store.IndexedMarker(ctx, doc)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.EqualValues(t, 7, m.IndexVersion)
}
