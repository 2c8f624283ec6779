package executor

import (
	"strings"
	"unicode"
)

const (
	// DefaultSnippetLength is the window size in characters.
	DefaultSnippetLength = 220
	snippetLead          = 60
	ellipsis             = "…"
)

// Snippet extracts a window of body around the first case-insensitive
// occurrence of term: up to 60 characters before it and maxLen characters
// from its start, with an ellipsis on each cut side. With an empty term, or
// a term that does not occur, it returns the first maxLen characters.
// Whitespace runs are collapsed first. Lengths count runes.
func Snippet(body, term string, maxLen int) string {
	text := []rune(strings.Join(strings.Fields(body), " "))

	idx := -1
	if term != "" {
		idx = indexFold(text, []rune(term))
	}
	if idx < 0 {
		if len(text) <= maxLen {
			return string(text)
		}
		return string(text[:maxLen]) + ellipsis
	}

	start := max(0, idx-snippetLead)
	end := min(len(text), idx+maxLen)
	snippet := strings.TrimSpace(string(text[start:end]))
	if start > 0 {
		snippet = ellipsis + snippet
	}
	if end < len(text) {
		snippet += ellipsis
	}
	return snippet
}

// indexFold finds needle in hay comparing runes case-insensitively and
// returns the rune offset, or -1.
func indexFold(hay, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(hay); i++ {
		for j, r := range needle {
			if unicode.ToLower(hay[i+j]) != unicode.ToLower(r) {
				continue outer
			}
		}
		return i
	}
	return -1
}
