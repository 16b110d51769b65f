// Package analysis provides the text analyzers used at both index and query
// time. Every analyzer is deterministic and pure: analyzing the same text
// twice yields identical tokens. Case folding is done once here, via
// strings.ToLower over the full input, and applied consistently to every
// field and every query.
package analysis

import (
	"strings"
	"unicode"

	"pubfinder/internal/record"
)

// Token is a single normalised term and its position in the source text.
type Token struct {
	Term     string
	Position int
}

// Analyzer turns raw field text into a sequence of normalised tokens.
type Analyzer interface {
	Analyze(text string) []Token
}

// ForField returns the analyzer used for a scored field. Index and query
// sides must use the same mapping: a term that would not survive indexing
// is never a valid query term.
func ForField(field string) Analyzer {
	switch field {
	case record.FieldAuthors:
		return Keyword{}
	case record.FieldTitleNgram:
		return NewNGram(3, 6)
	default:
		return Standard{}
	}
}

// Terms runs the field's analyzer and returns just the term strings.
func Terms(field, text string) []string {
	tokens := ForField(field).Analyze(text)
	if len(tokens) == 0 {
		return nil
	}
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Standard lower-cases input, splits on non-alphanumeric boundaries, drops
// stop-words and single-rune tokens, and applies a suffix-stripping stemmer.
// Used for titles and publication types.
type Standard struct{}

func (Standard) Analyze(text string) []Token {
	words := splitWords(text)
	tokens := make([]Token, 0, len(words)/2)
	pos := 0
	for _, word := range words {
		if len(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		stemmed := stem(word)
		if stemmed == "" {
			continue
		}
		tokens = append(tokens, Token{Term: stemmed, Position: pos})
		pos++
	}
	return tokens
}

// Keyword lower-cases and trims each comma-separated value, emitting one
// token per value. Used for author names, where "Jane Doe" must match as a
// whole rather than as two stemmed words.
type Keyword struct{}

func (Keyword) Analyze(text string) []Token {
	parts := strings.Split(text, ",")
	tokens := make([]Token, 0, len(parts))
	pos := 0
	for _, part := range parts {
		term := strings.ToLower(strings.TrimSpace(part))
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{Term: term, Position: pos})
		pos++
	}
	return tokens
}

// NGram splits input into words like Standard (without stop-word removal or
// stemming) and emits every character n-gram of length min..max from each
// word. Backs substring matching on titles.
type NGram struct {
	min int
	max int
}

// NewNGram creates an NGram analyzer for gram sizes min through max.
func NewNGram(min, max int) NGram {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return NGram{min: min, max: max}
}

func (n NGram) Analyze(text string) []Token {
	words := splitWords(text)
	tokens := make([]Token, 0, len(words)*4)
	pos := 0
	for _, word := range words {
		runes := []rune(word)
		for size := n.min; size <= n.max && size <= len(runes); size++ {
			for start := 0; start+size <= len(runes); start++ {
				tokens = append(tokens, Token{
					Term:     string(runes[start : start+size]),
					Position: pos,
				})
				pos++
			}
		}
	}
	return tokens
}

// splitWords lower-cases text and splits it on every rune that is neither a
// letter nor a digit.
func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
