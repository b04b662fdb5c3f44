package publish

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugRunes bounds the product slug in object keys.
const MaxSlugRunes = 50

// fallbackSlug is used when nothing survives sanitization.
const fallbackSlug = "product"

// Slug makes a product name safe for an object key. Diacritics are folded
// to their base letters, every rune outside [A-Za-z0-9_-] becomes '_', and
// the result is cut to MaxSlugRunes.
func Slug(name string) string {
	folded, _, err := transform.String(foldChain(), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	n := 0
	for _, r := range folded {
		if n == MaxSlugRunes {
			break
		}
		if r == 'đ' {
			r = 'd'
		} else if r == 'Đ' {
			r = 'D'
		}
		if !isSlugRune(r) {
			r = '_'
		}
		b.WriteRune(r)
		n++
	}

	slug := b.String()
	if strings.Trim(slug, "_") == "" {
		return fallbackSlug
	}
	return slug
}

// foldChain decomposes text and drops combining marks. Transformers carry
// state so a fresh chain is built per call.
func foldChain() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

func isSlugRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	}
	return false
}
