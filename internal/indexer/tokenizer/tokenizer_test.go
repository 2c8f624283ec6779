package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeDropsStopWordsAndLowercases(t *testing.T) {
	tok := New(2)
	tokens := tok.Tokenize("The Quick brown fox jumps over the lazy dog.")

	assert.Contains(t, tokens, "quick")
	assert.Contains(t, tokens, "brown")
	assert.NotContains(t, tokens, "the")
	assert.Equal(t, []string{"quick", "brown", "fox", "jumps", "over", "lazy", "dog"}, tokens)
}

func TestTokenizeTokenProperties(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"C++ and Go 1.22 -- héllo wörld!!",
		"x y z AB cd_EF gh-ij",
		"THIS IS NOT A TEST, it's 42",
	}
	for _, minLen := range []int{1, 2, 4} {
		tok := New(minLen)
		for _, in := range inputs {
			for _, token := range tok.Tokenize(in) {
				assert.GreaterOrEqual(t, len(token), minLen, "token %q from %q", token, in)
				assert.False(t, IsStopWord(token), "stop word %q from %q", token, in)
				for _, r := range token {
					assert.True(t, (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'), "rune %q in %q", r, token)
				}
			}
		}
	}
}

func TestTokenizeSplitsOnNonASCII(t *testing.T) {
	assert.Equal(t, []string{"caf", "latte"}, New(2).Tokenize("Café latte"))
}

func TestNewDefaultsMinLen(t *testing.T) {
	assert.Equal(t, DefaultMinLen, New(0).MinLen)
}

func TestCountTerms(t *testing.T) {
	counts := New(2).CountTerms("Go go GO gopher and the gopher")
	assert.Equal(t, map[string]int{"go": 3, "gopher": 2}, counts)
}

func BenchmarkTokenizeSentence(b *testing.B) {
	tok := New(2)
	text := "Distributed search engines build an inverted index over crawled documents and rank them with BM25. "
	for i := 0; i < b.N; i++ {
		tok.Tokenize(text)
	}
}
