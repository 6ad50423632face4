package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// cjkBrackets folds fullwidth CJK brackets into ASCII ones before matching,
// since fansub groups mix both styles freely.
var cjkBrackets = strings.NewReplacer("【", "[", "】", "]")

// Parse extracts a show title, season, and episode from a release filename.
// It never fails: when no strategy matches, the candidate comes back graded
// unparseable with a title derived from the filename itself.
func Parse(name string) Candidate {
	normalized := cjkBrackets.Replace(name)

	for _, strat := range strategies {
		groups, ok := matchGroups(strat.re, normalized)
		if !ok {
			continue
		}
		rawTitle := strings.TrimSpace(groups["title"])
		return Candidate{
			Title:      cleanTitle(rawTitle),
			Season:     seasonNumber(groups, rawTitle),
			Episode:    episodeNumber(groups["episode"]),
			Year:       releaseYear(rawTitle),
			Confidence: strat.confidence,
			Strategy:   strat.name,
			RawName:    name,
		}
	}

	return Candidate{
		Title:      fallbackTitle(name),
		Confidence: ConfidenceUnparseable,
		RawName:    name,
	}
}

func matchGroups(re *regexp.Regexp, input string) (map[string]string, bool) {
	match := re.FindStringSubmatch(input)
	if match == nil {
		return nil, false
	}
	groups := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(match) {
			groups[name] = match[i]
		}
	}
	return groups, true
}

// seasonNumber resolves the season in priority order: an explicit season
// capture, the digits inside a bracketed season tag, then a rescue pass over
// the title text for forms like "Season 3" or "2nd Season". The rescue pass
// also runs when a pattern captured season one explicitly, because releases
// tagged S01 sometimes carry the real season in the title.
func seasonNumber(groups map[string]string, rawTitle string) int {
	season := 1
	if value := groups["season"]; value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			season = n
		}
	} else if tag := groups["seasonTag"]; tag != "" {
		if digits := digitsRE.FindString(tag); digits != "" {
			if n, err := strconv.Atoi(digits); err == nil {
				season = n
			}
		}
	}
	if season == 1 {
		if rescued := seasonFromText(rawTitle); rescued > 0 {
			season = rescued
		}
	}
	return season
}

// episodeNumber truncates fractional episode markers such as the "24.5"
// recap specials down to their integer part.
func episodeNumber(value string) int {
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return int(f)
}
