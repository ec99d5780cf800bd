// Package endereco implements the address enrichment pipeline: CEP lookup
// payloads are parsed into normalized address fields, neighborhoods are
// resolved or created, and persisted addresses are geocoded after commit.
package endereco

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalize removes diacritics and lower-cases, making names from lookup
// providers comparable to stored reference data ("São Paulo" == "sao paulo").
func normalize(s string) string {
	out, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
