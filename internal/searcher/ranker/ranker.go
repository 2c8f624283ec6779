// Package ranker scores documents against query terms with BM25 over the
// stored postings and the current index statistics.
package ranker

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
)

// PostingSource is the part of the store the ranker reads.
type PostingSource interface {
	CurrentStats(ctx context.Context) (storage.Stats, error)
	LookupTermIDs(ctx context.Context, terms []string) (map[string]int64, error)
	Postings(ctx context.Context, termIDs []int64) (map[int64][]storage.Posting, error)
}

type ScoredDoc struct {
	DocID int64
	Score float64
}

type Ranker struct {
	source PostingSource
	params config.RankingConfig
}

func New(source PostingSource, params config.RankingConfig) *Ranker {
	return &Ranker{source: source, params: params}
}

// Rank returns at most k documents by descending score. Equal scores are
// ordered by ascending document id. Terms missing from the dictionary
// contribute nothing; repeated terms are scored once.
func (r *Ranker) Rank(ctx context.Context, terms []string, k int) ([]ScoredDoc, error) {
	if len(terms) == 0 || k <= 0 {
		return []ScoredDoc{}, nil
	}

	stats, err := r.source.CurrentStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	totalDocs := float64(max(stats.DocCount, 1))
	avgDocLen := stats.AvgDocLen
	if avgDocLen <= 0 {
		avgDocLen = 1
	}

	termIDs, err := r.source.LookupTermIDs(ctx, terms)
	if err != nil {
		return nil, fmt.Errorf("resolving terms: %w", err)
	}
	if len(termIDs) == 0 {
		return []ScoredDoc{}, nil
	}
	ids := make([]int64, 0, len(termIDs))
	for _, id := range termIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	postingsPerTerm, err := r.source.Postings(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading postings: %w", err)
	}

	scores := make(map[int64]float64)
	for _, id := range ids {
		postings := postingsPerTerm[id]
		if len(postings) == 0 {
			continue
		}
		idf := computeIDF(totalDocs, float64(len(postings)))
		for _, p := range postings {
			docLen := float64(p.DocLength)
			if docLen <= 0 {
				docLen = 1
			}
			tf := float64(p.TFBody) + r.params.TitleBoost*float64(p.TFTitle)
			scores[p.DocID] += idf * r.computeTFNorm(tf, docLen, avgDocLen)
		}
	}

	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if len(result) > k {
		result = result[:k]
	}
	return result, nil
}

// computeIDF is the smoothed BM25 idf; it stays positive when a term
// appears in most documents.
func computeIDF(totalDocs, docFreq float64) float64 {
	return math.Log(1 + (totalDocs-docFreq+0.5)/(docFreq+0.5))
}

func (r *Ranker) computeTFNorm(tf, docLen, avgDocLen float64) float64 {
	k1, b := r.params.K1, r.params.B
	denominator := tf + k1*(1-b+b*docLen/avgDocLen)
	return (tf * (k1 + 1)) / denominator
}
