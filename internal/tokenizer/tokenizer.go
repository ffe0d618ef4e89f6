// Package tokenizer provides the default deterministic tokenizer used
// by the BM25 index and the dedup/classifier heuristics.
package tokenizer

import "strings"

// Tokenizer is any deterministic function from text to a token multiset
// (returned as a slice; duplicates carry frequency information).
type Tokenizer func(text string) []string

// Default lowercases, splits on any non-alphanumeric rune, and drops
// tokens shorter than 2 characters. It is pure and deterministic, as
// required of any custom tokenizer supplied in its place.
func Default(text string) []string {
	lower := strings.ToLower(text)
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() >= 2 {
			tokens = append(tokens, b.String())
		}
		b.Reset()
	}
	for _, r := range lower {
		if isAlphaNumeric(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func isAlphaNumeric(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	default:
		return false
	}
}

// TermFrequencies reduces a token slice to a term -> count map.
func TermFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}
