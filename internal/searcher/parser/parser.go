// Package parser splits a raw search query into keyword terms and
// double-quoted phrases.
package parser

import (
	"regexp"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/astra-search/internal/indexer/tokenizer"
)

var phrasePattern = regexp.MustCompile(`"([^"]+)"`)

type Query struct {
	Raw     string
	Terms   []string
	Phrases []string
}

// HasTerms reports whether the query carries any keyword term.
func (q *Query) HasTerms() bool {
	return len(q.Terms) > 0
}

// Parse extracts quoted phrases (trimmed, empty ones dropped) and tokenizes
// the text left after removing them. An unmatched quote is ordinary text.
func Parse(raw string, tok *tokenizer.Tokenizer) *Query {
	q := &Query{
		Raw:     raw,
		Terms:   make([]string, 0),
		Phrases: make([]string, 0),
	}
	for _, m := range phrasePattern.FindAllStringSubmatch(raw, -1) {
		if phrase := strings.TrimSpace(m[1]); phrase != "" {
			q.Phrases = append(q.Phrases, phrase)
		}
	}
	rest := phrasePattern.ReplaceAllString(raw, " ")
	q.Terms = append(q.Terms, tok.Tokenize(rest)...)
	return q
}
