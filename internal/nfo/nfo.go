// Package nfo renders Kodi-compatible sidecar documents for archived
// episodes. The planner embeds the rendered bytes in its plan so the link
// materializer can write them atomically without re-deriving metadata.
package nfo

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"anilink/internal/queue"
)

// showDocument is the <tvshow> root element written once per show directory.
type showDocument struct {
	XMLName       xml.Name `xml:"tvshow"`
	Title         string   `xml:"title"`
	OriginalTitle string   `xml:"originaltitle,omitempty"`
	Plot          string   `xml:"plot,omitempty"`
	Premiered     string   `xml:"premiered,omitempty"`
	Rating        string   `xml:"rating,omitempty"`
	UniqueID      uniqueID `xml:"uniqueid"`
}

// episodeDocument is the <episodedetails> root element written next to each
// linked episode file.
type episodeDocument struct {
	XMLName   xml.Name `xml:"episodedetails"`
	Title     string   `xml:"title"`
	ShowTitle string   `xml:"showtitle"`
	Season    int      `xml:"season"`
	Episode   int      `xml:"episode"`
	Plot      string   `xml:"plot,omitempty"`
	Aired     string   `xml:"aired,omitempty"`
	Rating    string   `xml:"rating,omitempty"`
}

// uniqueID carries an external provider ID; media servers match on the
// type attribute.
type uniqueID struct {
	Type    string `xml:"type,attr"`
	Default string `xml:"default,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// RenderShow renders the tvshow.nfo document for a resolved episode's show.
func RenderShow(meta queue.Metadata) ([]byte, error) {
	doc := showDocument{
		Title:         meta.ShowTitle,
		OriginalTitle: meta.OriginalTitle,
		Plot:          meta.Overview,
		Premiered:     meta.FirstAirDate,
		Rating:        formatRating(meta.Rating),
		UniqueID: uniqueID{
			Type:    "tmdb",
			Default: "true",
			Value:   strconv.FormatInt(meta.ShowID, 10),
		},
	}
	return render(doc)
}

// RenderEpisode renders the per-episode episodedetails document.
func RenderEpisode(meta queue.Metadata) ([]byte, error) {
	title := meta.EpisodeTitle
	if title == "" {
		title = meta.Label()
	}
	doc := episodeDocument{
		Title:     title,
		ShowTitle: meta.ShowTitle,
		Season:    meta.Season,
		Episode:   meta.Episode,
		Plot:      meta.EpisodeOverview,
		Aired:     meta.EpisodeAirDate,
		Rating:    formatRating(meta.EpisodeRating),
	}
	return render(doc)
}

func render(v any) ([]byte, error) {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal nfo document: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(data)+1)
	out = append(out, xml.Header...)
	out = append(out, data...)
	out = append(out, '\n')
	return out, nil
}

// formatRating renders a vote average with one decimal place. Zero means the
// provider reported no rating and the element is omitted.
func formatRating(rating float64) string {
	if rating <= 0 {
		return ""
	}
	return strconv.FormatFloat(rating, 'f', 1, 64)
}
