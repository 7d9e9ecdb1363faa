// Package search provides text normalisation helpers used to build and query
// diacritic-insensitive search fields.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases the term, strips combining diacritical marks, and collapses
// internal whitespace. Vietnamese names such as "Nguyễn Văn A" fold to
// "nguyen van a" so stored and queried values compare consistently.
func Fold(term string) string {
	folded, _, err := transform.String(foldTransformer, term)
	if err != nil {
		folded = term
	}
	folded = strings.ToLower(folded)
	return strings.Join(strings.Fields(folded), " ")
}
