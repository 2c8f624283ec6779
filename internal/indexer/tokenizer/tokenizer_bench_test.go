package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Search engines map every term to the documents that contain it. At query
        time the postings for each term are scored with BM25, which balances term
        frequency against document length and how rare the term is across the whole
        collection. A title match counts more than a body match.`,
	"long": strings.Repeat(`Information retrieval systems form the backbone of modern search.
        Tokenization and stop word removal normalize text into searchable terms, the
        inverted index records per-document frequencies, and a result cache keyed by
        the index version keeps repeated queries cheap. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	tok := New(2)
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tok.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	tok := New(2)
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tok.Tokenize(text)
		}
	})
}

func BenchmarkCountTermsVaryingSize(b *testing.B) {
	tok := New(2)
	base := "search engine inverted index ranking "
	for _, size := range []int{10, 100, 1000, 10000} {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tok.CountTerms(text)
			}
		})
	}
}
