package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata captures the resolved canonical show and episode record carried on
// a queue item between the resolving and linking stages. It is stored as JSON
// so schema growth does not require migrations.
type Metadata struct {
	ShowID          int64   `json:"show_id"`
	ShowTitle       string  `json:"show_title"`
	OriginalTitle   string  `json:"original_title,omitempty"`
	Overview        string  `json:"overview,omitempty"`
	FirstAirDate    string  `json:"first_air_date,omitempty"`
	Rating          float64 `json:"rating,omitempty"`
	PosterURL       string  `json:"poster_url,omitempty"`
	Season          int     `json:"season"`
	Episode         int     `json:"episode"`
	EpisodeTitle    string  `json:"episode_title,omitempty"`
	EpisodeOverview string  `json:"episode_overview,omitempty"`
	EpisodeAirDate  string  `json:"episode_air_date,omitempty"`
	EpisodeRating   float64 `json:"episode_rating,omitempty"`
	StillURL        string  `json:"still_url,omitempty"`
}

// MetadataFromJSON decodes stored metadata, reporting whether it was present.
func MetadataFromJSON(data string) (Metadata, bool) {
	if strings.TrimSpace(data) == "" {
		return Metadata{}, false
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return Metadata{}, false
	}
	return meta, meta.ShowID != 0 || meta.ShowTitle != ""
}

// ToJSON encodes the metadata for storage on a queue item.
func (m Metadata) ToJSON() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

// Label renders the SNNENN episode label used in filenames and logs.
func (m Metadata) Label() string {
	return fmt.Sprintf("S%02dE%02d", m.Season, m.Episode)
}

// Display renders a human-readable show + episode description.
func (m Metadata) Display() string {
	title := strings.TrimSpace(m.ShowTitle)
	if title == "" {
		return m.Label()
	}
	return title + " " + m.Label()
}
