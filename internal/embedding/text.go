package embedding

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeQuery applies NFKC normalization, drops control characters and
// collapses runs of whitespace. Full-width and compatibility forms therefore
// embed and cache identically to their plain equivalents.
func NormalizeQuery(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
	return strings.Join(strings.Fields(normed), " ")
}
