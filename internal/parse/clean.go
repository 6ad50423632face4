package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	leadingGroupRE = regexp.MustCompile(`^\[.*?\]\s*`)
	seasonNoiseRE  = regexp.MustCompile(`(?i)\s+(?:2nd|3rd|4th|final|first)?\s*(?:season|part)\s*\d*|\s+S\d+\b`)
	yearRE         = regexp.MustCompile(`\s\((\d{4})\)`)
	seasonTextRE   = regexp.MustCompile(`(?i)(?:season|part)\s*(\d{1,2})|S(\d{1,2})\b|(\d{1,2})(?:nd|rd|th)\s+season`)
	digitsRE       = regexp.MustCompile(`\d+`)
)

// cleanTitle strips release noise out of a captured title: a leading group
// bracket, season keywords (already mined for the season number by then),
// a parenthesized year, and bilingual underscore pairs, where the Latin half
// is kept when the trailing part is pure ASCII.
func cleanTitle(text string) string {
	text = leadingGroupRE.ReplaceAllString(text, "")
	text = seasonNoiseRE.ReplaceAllString(text, "")
	text = yearRE.ReplaceAllString(text, "")
	if strings.Contains(text, "_") {
		parts := strings.Split(text, "_")
		last := strings.ReplaceAll(strings.TrimSpace(parts[len(parts)-1]), " ", "")
		if isASCII(last) {
			text = parts[len(parts)-1]
		} else {
			text = parts[0]
		}
	}
	return strings.TrimSpace(text)
}

// releaseYear extracts the parenthesized year from title text, zero when
// absent.
func releaseYear(text string) int {
	match := yearRE.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

// seasonFromText mines a season number out of title text, recognizing
// "Season 3", "Part 2", "S3", and ordinal forms like "2nd Season". Returns
// zero when the text names no season.
func seasonFromText(text string) int {
	match := seasonTextRE.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	for _, group := range match[1:] {
		if group == "" {
			continue
		}
		if n, err := strconv.Atoi(group); err == nil {
			return n
		}
	}
	return 0
}

func isASCII(s string) bool {
	for _, r := range s {
		if r >= 128 {
			return false
		}
	}
	return true
}
