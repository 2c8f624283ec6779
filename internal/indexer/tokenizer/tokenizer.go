// Package tokenizer provides text tokenisation shared by indexing and search.
// It lower-cases input, splits on runs of ASCII letters and digits, drops
// short tokens and removes a fixed stop-word set.
package tokenizer

import (
	"strings"
)

// DefaultMinLen is the shortest token kept when no minimum is configured.
const DefaultMinLen = 2

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"if": {}, "then": {}, "else": {}, "when": {}, "while": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "for": {}, "from": {}, "with": {},
	"as": {}, "at": {}, "by": {}, "about": {},
	"it": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"i": {}, "you": {}, "he": {}, "she": {}, "we": {}, "they": {}, "them": {},
	"us": {}, "our": {}, "your": {},
	"not": {}, "no": {}, "yes": {},
	"do": {}, "does": {}, "did": {}, "doing": {},
	"can": {}, "could": {}, "should": {}, "would": {}, "may": {}, "might": {},
	"will": {}, "just": {},
}

// IsStopWord reports whether the lowercase word is filtered out.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

type Tokenizer struct {
	MinLen int
}

func New(minLen int) *Tokenizer {
	if minLen < 1 {
		minLen = DefaultMinLen
	}
	return &Tokenizer{MinLen: minLen}
}

// Tokenize returns the tokens of text in order of appearance. Every token is
// lowercase alphanumeric, at least MinLen bytes long and not a stop-word.
func (t *Tokenizer) Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isAlnum(r)
	})
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < t.MinLen {
			continue
		}
		if IsStopWord(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// CountTerms returns the frequency of each token in text.
func (t *Tokenizer) CountTerms(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range t.Tokenize(text) {
		counts[tok]++
	}
	return counts
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
