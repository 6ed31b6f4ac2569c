// Package tokenizer provides text tokenisation for the search index.
// It lower-cases input and splits it on every rune that is not a letter or a
// digit, so "Eikonal.brgc" yields "eikonal" and "brgc" and "sub-tuples"
// yields "sub" and "tuples". There is no stop-word removal and no stemming:
// tokens match by whole-word equality.
package tokenizer

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Casers carry state and must not be shared between goroutines.
var lowerPool = sync.Pool{
	New: func() any {
		c := cases.Lower(language.Und)
		return &c
	},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Normalize lower-cases text using Unicode case mapping.
func Normalize(text string) string {
	c := lowerPool.Get().(*cases.Caser)
	defer lowerPool.Put(c)
	return c.String(text)
}

// Tokenize breaks text into lowercased Tokens in order of appearance.
func Tokenize(text string) []Token {
	words := Terms(text)
	tokens := make([]Token, len(words))
	for i, w := range words {
		tokens[i] = Token{Term: w, Position: i}
	}
	return tokens
}

// Terms returns the lowercased terms of text in order of appearance,
// including repeats.
func Terms(text string) []string {
	if text == "" {
		return nil
	}
	return strings.FieldsFunc(Normalize(text), isSeparator)
}

// Frequencies counts the occurrences of each term across all fields.
func Frequencies(fields ...string) map[string]int {
	freqs := make(map[string]int)
	for _, f := range fields {
		for _, term := range Terms(f) {
			freqs[term]++
		}
	}
	return freqs
}

// Unique returns the distinct terms of text in order of first appearance.
func Unique(text string) []string {
	terms := Terms(text)
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
