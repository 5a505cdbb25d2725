// Package tokenizer turns free text into index terms.
//
// The same function is used when building the index and when parsing queries,
// so any change here requires a full index rebuild.
package tokenizer

import (
	"strings"
	"unicode"
)

// MinTermLength is the shortest token kept as a term.
const MinTermLength = 3

// stopWords are dropped regardless of length: articles, prepositions,
// pronouns, question words and greetings.
var stopWords = map[string]struct{}{
	"the": {}, "is": {}, "a": {}, "an": {}, "in": {}, "on": {}, "at": {}, "for": {},
	"of": {}, "to": {}, "and": {}, "or": {}, "with": {}, "by": {}, "this": {},
	"that": {}, "it": {}, "as": {}, "be": {}, "are": {}, "was": {}, "were": {},
	"what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "who": {},
	"which": {}, "from": {}, "about": {},
	"you": {}, "your": {}, "our": {}, "they": {}, "them": {}, "their": {},
	"she": {}, "his": {}, "her": {}, "its": {},
	"hello": {}, "hey": {},
}

// IsStopWord reports whether term is in the fixed stop-word set.
func IsStopWord(term string) bool {
	_, ok := stopWords[term]
	return ok
}

// Tokenize lower-cases text, blanks out everything except ASCII letters,
// digits and whitespace, splits on whitespace and drops stop words and
// tokens shorter than MinTermLength. Order and duplicates are preserved.
func Tokenize(text string) []string {
	normalized := strings.Map(normalizeRune, strings.ToLower(text))

	fields := strings.Fields(normalized)
	terms := fields[:0]
	for _, f := range fields {
		if len(f) < MinTermLength || IsStopWord(f) {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// TermFrequencies counts occurrences of each term in text.
func TermFrequencies(text string) map[string]int {
	tf := make(map[string]int)
	for _, term := range Tokenize(text) {
		tf[term]++
	}
	return tf
}

func normalizeRune(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return r
	case unicode.IsSpace(r):
		return r
	default:
		return ' '
	}
}
