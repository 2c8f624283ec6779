package parser

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer/tokenizer"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tok := tokenizer.New(2)
	tests := []struct {
		name    string
		raw     string
		terms   []string
		phrases []string
	}{
		{"phrase and terms", `"machine learning" fast api`, []string{"fast", "api"}, []string{"machine learning"}},
		{"terms only", "Hello World", []string{"hello", "world"}, []string{}},
		{"phrase only", `"exact match"`, []string{}, []string{"exact match"}},
		{"two phrases", `"a b" go "  c d  " rust`, []string{"go", "rust"}, []string{"a b", "c d"}},
		{"blank phrase dropped", `"   " golang`, []string{"golang"}, []string{}},
		{"unmatched quote", `"open ended search`, []string{"open", "ended", "search"}, []string{}},
		{"stop words removed", "the art of war", []string{"art", "war"}, []string{}},
		{"empty", "", []string{}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Parse(tt.raw, tok)
			assert.Equal(t, tt.raw, q.Raw)
			assert.Equal(t, tt.terms, q.Terms)
			assert.Equal(t, tt.phrases, q.Phrases)
			assert.Equal(t, len(tt.terms) > 0, q.HasTerms())
		})
	}
}

func TestParsePhraseTextDoesNotLeakIntoTerms(t *testing.T) {
	q := Parse(`"machine learning" fast api`, tokenizer.New(2))
	assert.NotContains(t, q.Terms, "machine")
	assert.NotContains(t, q.Terms, "learning")
}
