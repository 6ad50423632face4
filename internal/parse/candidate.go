package parse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Confidence grades how much the resolver should trust a parsed candidate.
type Confidence string

const (
	ConfidenceHigh        Confidence = "high"
	ConfidenceMedium      Confidence = "medium"
	ConfidenceLow         Confidence = "low"
	ConfidenceUnparseable Confidence = "unparseable"
)

// Candidate is the parser's reading of a single release filename. It is
// stored as JSON on the queue item between the parsing and resolving stages.
type Candidate struct {
	Title   string `json:"title"`
	Season  int    `json:"season"`
	Episode int    `json:"episode"`
	// Year is the parenthesized release year when the filename carried one.
	// The resolver passes it through as a search filter.
	Year       int        `json:"year,omitempty"`
	Confidence Confidence `json:"confidence"`
	Strategy   string     `json:"strategy,omitempty"`
	RawName    string     `json:"raw_name"`
}

// CandidateFromJSON decodes a stored candidate, reporting whether it was present.
func CandidateFromJSON(data string) (Candidate, bool) {
	if strings.TrimSpace(data) == "" {
		return Candidate{}, false
	}
	var candidate Candidate
	if err := json.Unmarshal([]byte(data), &candidate); err != nil {
		return Candidate{}, false
	}
	return candidate, candidate.Confidence != ""
}

// ToJSON encodes the candidate for storage on a queue item.
func (c Candidate) ToJSON() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal candidate: %w", err)
	}
	return string(data), nil
}

// Parseable reports whether any strategy produced usable fields.
func (c Candidate) Parseable() bool {
	return c.Confidence != "" && c.Confidence != ConfidenceUnparseable
}

// Label renders the SNNENN episode label used in progress messages and logs.
func (c Candidate) Label() string {
	return fmt.Sprintf("S%02dE%02d", c.Season, c.Episode)
}
