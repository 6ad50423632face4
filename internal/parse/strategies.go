package parse

import "regexp"

// Strategy names recorded on candidates so queue listings show which pattern
// claimed a file.
const (
	StrategyDash          = "dash"
	StrategySeasonEpisode = "sxxexx"
	StrategyBrackets      = "brackets"
	StrategyTrailing      = "trailing"
)

type strategy struct {
	name       string
	confidence Confidence
	re         *regexp.Regexp
}

// strategies are tried in order and the first match wins. The order runs from
// the most structured release styles to the loosest, so a name several
// patterns could claim is graded by the strictest one that recognizes it.
var strategies = []strategy{
	// "[Group] Title - 05", with optional explicit season as "- S2 -" and
	// optional v2-style revision markers after the episode number.
	{
		name:       StrategyDash,
		confidence: ConfidenceHigh,
		re:         regexp.MustCompile(`(?i)^.*?\]\s*(?P<title>.+?)\s*(?:-|–)\s*(?:S(?P<season>\d{1,2})\s*(?:-|–)?\s*)?(?P<episode>\d{1,4}(?:\.\d)?)(?:v\d)?(?:\s|\[|\(|$)`),
	},
	// "Title.S02E10" and "Title S02E10".
	{
		name:       StrategySeasonEpisode,
		confidence: ConfidenceHigh,
		re:         regexp.MustCompile(`(?i)(?P<title>.*?)[\s.]S(?P<season>\d{1,2})E(?P<episode>\d{1,3})`),
	},
	// "[Group][Title][S2][05]" where the season bracket is optional and may
	// spell the season out as "Season 2" or "2nd Season".
	{
		name:       StrategyBrackets,
		confidence: ConfidenceMedium,
		re:         regexp.MustCompile(`(?i)^\[(?P<group>[^\]]+)\]\[(?P<title>[^\]]+)\](?:\[(?P<seasonTag>S\d+|Season\s*\d+|part\s*\d+|[^\]]*?Season)\])?\[(?P<episode>\d{1,3})\]`),
	},
	// "Title 05.mkv": a bare trailing episode number right before the
	// extension. Loose enough to misfire, hence the low grade.
	{
		name:       StrategyTrailing,
		confidence: ConfidenceLow,
		re:         regexp.MustCompile(`(?i)(?P<title>.+?)\s+(?P<episode>\d{1,3})(?:v\d)?\.[a-z0-9]+$`),
	},
}
