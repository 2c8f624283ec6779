package indexer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage/storagetest"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected posting failure")

// flakyStore fails UpsertPosting for one document after letting the first
// posting of that document through, so a partial write would be visible.
type flakyStore struct {
	*storage.Store
	failDoc int64
	seen    int
}

func (f *flakyStore) UpsertPosting(ctx context.Context, p storage.Posting) error {
	if p.DocID == f.failDoc {
		f.seen++
		if f.seen > 1 {
			return errInjected
		}
	}
	return f.Store.UpsertPosting(ctx, p)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func seed(t *testing.T, store *storage.Store, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := store.UpsertDocument(context.Background(),
			fmt.Sprintf("http://example.com/%d", i),
			fmt.Sprintf("Title %d golang", i),
			fmt.Sprintf("body text number %d about search engines", i),
			time.Now())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func unindexed(t *testing.T, store *storage.Store) []int64 {
	t.Helper()
	it := store.ListUnindexed(context.Background(), 0)
	defer it.Close()
	var ids []int64
	for it.Next() {
		ids = append(ids, it.Document().ID)
	}
	require.NoError(t, it.Err())
	return ids
}

func TestRunIndexesEveryPendingDocument(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()
	ids := seed(t, store, 5)

	n, err := indexer.New(store, tokenizer.New(2), 0).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Empty(t, unindexed(t, store))

	for _, id := range ids {
		marker, err := store.IndexedMarker(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, marker)
		assert.EqualValues(t, 1, marker.IndexVersion, "markers carry the version read at run start")
	}

	stats, err := store.CurrentStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.IndexVersion)
	assert.EqualValues(t, 5, stats.DocCount)
}

func TestRunWritesTitleAndBodyFrequencies(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()
	id, err := store.UpsertDocument(ctx, "http://x/a", "Go Go", "go gopher go go", time.Now())
	require.NoError(t, err)

	_, err = indexer.New(store, tokenizer.New(2), 0).Run(ctx)
	require.NoError(t, err)

	ids, err := store.LookupTermIDs(ctx, []string{"go", "gopher"})
	require.NoError(t, err)
	postings, err := store.PostingsForDocument(ctx, id)
	require.NoError(t, err)
	require.Len(t, postings, 2)

	byTerm := map[int64]storage.Posting{}
	for _, p := range postings {
		byTerm[p.TermID] = p
	}
	assert.Equal(t, 2, byTerm[ids["go"]].TFTitle)
	assert.Equal(t, 3, byTerm[ids["go"]].TFBody)
	assert.Equal(t, 0, byTerm[ids["gopher"]].TFTitle)
	assert.Equal(t, 1, byTerm[ids["gopher"]].TFBody)
}

func TestRunWithNothingPendingKeepsVersion(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()

	n, err := indexer.New(store, tokenizer.New(2), 0).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	stats, err := store.CurrentStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.IndexVersion)
}

func TestFailureMidDocumentLeavesNoPartialState(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()
	ids := seed(t, store, 3)

	flaky := &flakyStore{Store: store, failDoc: ids[1]}
	n, err := indexer.New(flaky, tokenizer.New(2), 0).Run(ctx)
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, 1, n)

	first, err := store.IndexedMarker(ctx, ids[0])
	require.NoError(t, err)
	assert.NotNil(t, first, "documents before the failure stay committed")

	failed, err := store.IndexedMarker(ctx, ids[1])
	require.NoError(t, err)
	assert.Nil(t, failed)
	postings, err := store.PostingsForDocument(ctx, ids[1])
	require.NoError(t, err)
	assert.Empty(t, postings, "no partial postings for the failed document")

	stats, err := store.CurrentStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.IndexVersion, "stats are not bumped by a failed run")

	n, err = indexer.New(store, tokenizer.New(2), 0).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the retry picks up the failed document")
	assert.Empty(t, unindexed(t, store))
}

func TestReindexingChangedDocumentKeepsStalePostings(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()
	id, err := store.UpsertDocument(ctx, "http://x/a", "Original", "apples", time.Now())
	require.NoError(t, err)

	ix := indexer.New(store, tokenizer.New(2), 0)
	_, err = ix.Run(ctx)
	require.NoError(t, err)

	_, err = store.UpsertDocument(ctx, "http://x/a", "Changed", "oranges", time.Now())
	require.NoError(t, err)
	n, err := ix.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "the marker is presence-only, so changed content is not reindexed")

	ids, err := store.LookupTermIDs(ctx, []string{"apples", "oranges"})
	require.NoError(t, err)
	assert.Contains(t, ids, "apples")
	assert.NotContains(t, ids, "oranges")

	postings, err := store.PostingsForDocument(ctx, id)
	require.NoError(t, err)
	require.Len(t, postings, 2)
}

func TestRunRespectsBatchSizeAndPublishesCompletion(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()
	seed(t, store, 5)

	pub := &recordingPublisher{}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	ix := indexer.New(store, tokenizer.New(2), 2, indexer.WithPublisher(pub), indexer.WithMetrics(m))

	n, err := ix.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, unindexed(t, store), 3)

	require.Len(t, pub.events, 1)
	event, ok := pub.events[0].Value.(indexer.IndexCompleteEvent)
	require.True(t, ok)
	assert.EqualValues(t, 2, event.IndexVersion)
	assert.Equal(t, 2, event.IndexedDocs)

	total, err := indexer.NewRunner(ix).Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, unindexed(t, store))

	assert.Equal(t, 5.0, gathered(t, reg, "docs_indexed_total", ""))
	assert.Equal(t, 3.0, gathered(t, reg, "index_runs_total", "indexed"))
	assert.Equal(t, 1.0, gathered(t, reg, "index_runs_total", "empty"))
	assert.Equal(t, 4.0, gathered(t, reg, "index_version", ""))
}

// gathered reads a counter or gauge from reg; status selects the series of
// a status-labelled vector.
func gathered(t *testing.T, reg *prometheus.Registry, name, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			match := status == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "status" && lp.GetValue() == status {
					match = true
				}
			}
			if !match {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestWatchStopsOnCancel(t *testing.T) {
	store := storagetest.New(t)
	seed(t, store, 2)
	runner := indexer.NewRunner(indexer.New(store, tokenizer.New(2), 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Watch(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return len(unindexed(t, store)) == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
