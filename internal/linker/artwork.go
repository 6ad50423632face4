package linker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"anilink/internal/fileutil"
	"anilink/internal/logging"
	"anilink/internal/plan"
)

const (
	artworkTimeout = 30 * time.Second
	// artworkMaxBytes bounds a single artwork download; TMDB posters are a
	// few hundred KB.
	artworkMaxBytes = 20 << 20
)

type artworkFetcher struct {
	client *http.Client
}

func newArtworkFetcher() *artworkFetcher {
	return &artworkFetcher{client: &http.Client{Timeout: artworkTimeout}}
}

// fetchArtwork downloads the plan's artwork set. Failures are logged and
// skipped: a missing poster never blocks the link itself, and the next run
// retries anything absent.
func (l *Linker) fetchArtwork(ctx context.Context, p plan.Plan) {
	logger := logging.WithContext(ctx, l.logger)
	for _, art := range p.Artwork {
		if err := l.artwork.fetch(ctx, art.URL, art.Path); err != nil {
			logger.Warn(
				"artwork fetch failed",
				logging.String("url", art.URL),
				logging.String("path", art.Path),
				logging.Error(err),
			)
		}
	}
}

// fetch downloads url into path unless a non-empty file is already there.
func (f *artworkFetcher) fetch(ctx context.Context, url, path string) error {
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build artwork request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("artwork returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, artworkMaxBytes))
	if err != nil {
		return fmt.Errorf("read artwork: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("artwork response was empty")
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}
