package textutil

import (
	"strings"
	"unicode"
)

// NormalizeTitle reduces a title to a comparison key: lowercase with symbols
// folded to words and everything but letters and digits removed. Release
// names like "Show-Name!!" and metadata names like "Show Name!!" normalize
// to the same key.
func NormalizeTitle(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	normalized := strings.ToLower(input)
	normalized = strings.ReplaceAll(normalized, "&", "and")
	normalized = strings.ReplaceAll(normalized, "+", "and")

	var builder strings.Builder
	for _, r := range normalized {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
