// Package caption picks and formats the text burned into the top of each
// published video.
package caption

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Font sizes by caption length.
const (
	FontSmall  = 28
	FontMedium = 32
	FontLarge  = 38
)

// FallbackText is used when neither overlay copy nor a product name is usable.
const FallbackText = "Product"

// splitWindow is how far from an even split Wrap looks for a break character.
const splitWindow = 20

// Sanitize normalizes text to NFC, drops control and format characters, and
// collapses runs of whitespace into single spaces.
func Sanitize(s string) string {
	t := transform.Chain(
		norm.NFC,
		runes.Remove(runes.Predicate(func(r rune) bool {
			return (unicode.IsControl(r) && !unicode.IsSpace(r)) || unicode.Is(unicode.Cf, r)
		})),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}

// ChooseText prefers overlay copy and falls back to the product name.
func ChooseText(overlay, productName string) string {
	if t := Sanitize(overlay); t != "" {
		return t
	}
	if t := Sanitize(productName); t != "" {
		return t
	}
	return FallbackText
}

// FontSize picks a font size from the caption length in characters:
// over 70 is small, over 50 is medium, anything shorter is large.
func FontSize(text string) int {
	n := utf8.RuneCountInString(text)
	switch {
	case n > 70:
		return FontSmall
	case n > 50:
		return FontMedium
	default:
		return FontLarge
	}
}

// Wrap splits text into the given number of lines of roughly equal length,
// breaking at the space, comma or dash nearest to each even split point.
func Wrap(text string, lines int) string {
	r := []rune(text)
	if lines <= 1 || len(r) < lines {
		return text
	}

	chunk := len(r) / lines
	out := make([]string, 0, lines)
	pos := 0

	for range lines - 1 {
		target := pos + chunk
		split := target

	search:
		for offset := range splitWindow {
			for _, p := range [2]int{target + offset, target - offset} {
				if p > pos && p < len(r) && isBreak(r[p]) {
					split = p
					break search
				}
			}
		}

		if split > len(r) {
			split = len(r)
		}
		out = append(out, strings.TrimSpace(string(r[pos:split])))
		pos = split
	}
	out = append(out, strings.TrimSpace(string(r[pos:])))

	return strings.Join(out, "\n")
}

func isBreak(r rune) bool {
	return r == ' ' || r == ',' || r == '-'
}
