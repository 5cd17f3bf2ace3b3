package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Tokenize splits a free-text note into a set of normalized word
// tokens: NFC-composed (Vietnamese notes arrive in both composed and
// decomposed forms depending on the client), lowercased, with anything
// that is not a letter or digit treated as a separator.
func Tokenize(note string) map[string]struct{} {
	normalized := strings.ToLower(norm.NFC.String(note))

	tokens := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[field] = struct{}{}
	}
	return tokens
}

// commonCount returns the size of the intersection of two token sets.
func commonCount(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}
