// Package plan derives the archival layout for a resolved episode. Building
// a plan is pure computation over the source path and resolved metadata, so
// path derivation stays testable without touching the filesystem; the link
// materializer executes the plan's steps.
package plan

import (
	"fmt"
	"path/filepath"
	"strings"

	"anilink/internal/nfo"
	"anilink/internal/queue"
	"anilink/internal/textutil"
)

// Options selects which optional plan steps are emitted. The linker fills it
// from the linker config section.
type Options struct {
	LibraryDir      string
	WriteNFO        bool
	DownloadArtwork bool
}

// Sidecar is a metadata document to write next to the archived file. The
// content is rendered at plan time so materialization never re-derives it.
type Sidecar struct {
	Path string
	Data []byte
}

// ArtworkFetch is an image to download into the library.
type ArtworkFetch struct {
	URL  string
	Path string
}

// Plan describes every step needed to archive one episode: directories to
// create (parent first), the hard link to make, and the sidecars and artwork
// that accompany it. Plans are deterministic: the same source, metadata, and
// options always produce an identical plan.
type Plan struct {
	SourcePath  string
	TargetPath  string
	ShowDir     string
	SeasonDir   string
	Directories []string
	Sidecars    []Sidecar
	Artwork     []ArtworkFetch
}

// Build derives the plan for linking sourcePath into the library under its
// resolved show and episode. Specials land in Season 00; the source file's
// extension is preserved.
func Build(sourcePath string, meta queue.Metadata, opts Options) (Plan, error) {
	if sourcePath == "" {
		return Plan{}, fmt.Errorf("source path is empty")
	}
	if opts.LibraryDir == "" {
		return Plan{}, fmt.Errorf("library directory is not configured")
	}
	if meta.Season < 0 {
		return Plan{}, fmt.Errorf("season %d is negative", meta.Season)
	}
	if meta.Episode <= 0 {
		return Plan{}, fmt.Errorf("episode %d is not positive", meta.Episode)
	}
	title := textutil.SanitizeFileName(meta.ShowTitle)
	if title == "" {
		return Plan{}, fmt.Errorf("show title %q sanitizes to an empty name", meta.ShowTitle)
	}

	showDir := filepath.Join(opts.LibraryDir, title)
	seasonDir := filepath.Join(showDir, fmt.Sprintf("Season %02d", meta.Season))
	base := fmt.Sprintf("%s - %s", title, meta.Label())
	target := filepath.Join(seasonDir, base+filepath.Ext(sourcePath))

	p := Plan{
		SourcePath:  sourcePath,
		TargetPath:  target,
		ShowDir:     showDir,
		SeasonDir:   seasonDir,
		Directories: []string{showDir, seasonDir},
	}

	if opts.WriteNFO {
		showDoc, err := nfo.RenderShow(meta)
		if err != nil {
			return Plan{}, fmt.Errorf("render show sidecar: %w", err)
		}
		episodeDoc, err := nfo.RenderEpisode(meta)
		if err != nil {
			return Plan{}, fmt.Errorf("render episode sidecar: %w", err)
		}
		p.Sidecars = []Sidecar{
			{Path: filepath.Join(showDir, "tvshow.nfo"), Data: showDoc},
			{Path: filepath.Join(seasonDir, base+".nfo"), Data: episodeDoc},
		}
	}

	if opts.DownloadArtwork {
		if meta.PosterURL != "" {
			p.Artwork = append(p.Artwork, ArtworkFetch{
				URL:  meta.PosterURL,
				Path: filepath.Join(showDir, "poster.jpg"),
			})
		}
		if meta.StillURL != "" {
			p.Artwork = append(p.Artwork, ArtworkFetch{
				URL:  meta.StillURL,
				Path: filepath.Join(seasonDir, base+"-thumb.jpg"),
			})
		}
	}

	return p, nil
}

// Describe summarizes the plan for progress messages and logs.
func (p Plan) Describe() string {
	rel, err := filepath.Rel(filepath.Dir(p.ShowDir), p.TargetPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(p.TargetPath)
	}
	return rel
}
