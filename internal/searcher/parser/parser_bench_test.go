package parser

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer/tokenizer"
)

func BenchmarkParse(b *testing.B) {
	tok := tokenizer.New(2)
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "search engine"},
		{"phrase", `"hello world"`},
		{"mixed", `python "machine learning" tutorial`},
		{"unmatched_quote", `the "quick brown fox`},
		{"long", "distributed search analytics platform indexing query processing ranking caching crawling"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Parse(q.query, tok)
			}
		})
	}
}
