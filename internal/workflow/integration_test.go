package workflow_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"anilink/internal/linker"
	"anilink/internal/notifications"
	"anilink/internal/parse"
	"anilink/internal/queue"
	"anilink/internal/resolve"
	"anilink/internal/resolve/tmdb"
	"anilink/internal/showcache"
	"anilink/internal/testsupport"
	"anilink/internal/workflow"
)

// integrationSearcher serves a single show so the full pipeline can run
// without TMDB access.
type integrationSearcher struct{}

func (integrationSearcher) SearchTV(_ context.Context, _ string, _ tmdb.SearchOptions) (*tmdb.Response, error) {
	return &tmdb.Response{Results: []tmdb.Result{{
		ID:           209867,
		Name:         "Sousou no Frieren",
		OriginalName: "葬送のフリーレン",
		FirstAirDate: "2023-09-29",
		VoteAverage:  8.8,
		VoteCount:    1200,
	}}}, nil
}

func (integrationSearcher) GetTVDetails(_ context.Context, showID int64) (*tmdb.ShowDetails, error) {
	if showID != 209867 {
		return nil, &tmdb.StatusError{Op: "tv details", Code: http.StatusNotFound}
	}
	return &tmdb.ShowDetails{
		ID:              209867,
		Name:            "Sousou no Frieren",
		OriginalName:    "葬送のフリーレン",
		Overview:        "After the party of heroes defeated the Demon King, they scattered.",
		FirstAirDate:    "2023-09-29",
		NumberOfSeasons: 1,
		VoteAverage:     8.8,
		Seasons:         []tmdb.SeasonSummary{{SeasonNumber: 1, EpisodeCount: 28, AirDate: "2023-09-29"}},
	}, nil
}

func (integrationSearcher) GetSeasonDetails(_ context.Context, showID int64, season int) (*tmdb.SeasonDetails, error) {
	if showID != 209867 || season != 1 {
		return nil, &tmdb.StatusError{Op: "season fetch", Code: http.StatusNotFound}
	}
	return &tmdb.SeasonDetails{
		ID:           1,
		SeasonNumber: 1,
		AirDate:      "2023-09-29",
		Episodes: []tmdb.Episode{
			{EpisodeNumber: 4, Name: "The Land Where Souls Rest", AirDate: "2023-10-20", VoteAverage: 8.5},
			{EpisodeNumber: 5, Name: "Killing Magic", Overview: "Frieren and Fern face a mage.", AirDate: "2023-10-27", VoteAverage: 8.6},
		},
	}, nil
}

func TestPipelineArchivesEpisodeEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	cfg.Linker.DownloadArtwork = false
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &stubNotifier{}

	cache := showcache.New(cfg.ShowCachePath(), 24*time.Hour, nil)
	manager := workflow.NewManagerWithNotifier(cfg, store, nil, notifier)
	err := manager.ConfigureStages(workflow.StageSet{
		Parser:   parse.NewParser(cfg, store, nil),
		Resolver: resolve.NewResolverWithDependencies(cfg, store, nil, integrationSearcher{}, cache, nil),
		Linker:   linker.NewLinkerWithDependencies(cfg, store, nil, notifier),
	})
	if err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}

	sourcePath := filepath.Join(cfg.Paths.SourceDir, "[SubsPlease] Sousou no Frieren - 05 [1080p].mkv")
	testsupport.WriteFile(t, sourcePath, 2048)
	item := testsupport.NewItem(t, store, sourcePath, "fp-frieren-05")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := manager.RunUntilDrained(ctx); err != nil {
		t.Fatalf("RunUntilDrained: %v", err)
	}

	got, err := store.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusCompleted {
		t.Fatalf("Status = %q (error %q, review %q), want %q", got.Status, got.ErrorMessage, got.ReviewReason, queue.StatusCompleted)
	}
	if got.DisplayTitle != "Sousou no Frieren S01E05" {
		t.Errorf("DisplayTitle = %q, want %q", got.DisplayTitle, "Sousou no Frieren S01E05")
	}

	wantTarget := filepath.Join(cfg.Paths.LibraryDir, "Sousou no Frieren", "Season 01", "Sousou no Frieren - S01E05.mkv")
	if got.TargetPath != wantTarget {
		t.Errorf("TargetPath = %q, want %q", got.TargetPath, wantTarget)
	}
	sourceInfo, err := os.Stat(sourcePath)
	if err != nil {
		t.Fatalf("stat source: %v", err)
	}
	targetInfo, err := os.Stat(wantTarget)
	if err != nil {
		t.Fatalf("stat target: %v", err)
	}
	if !os.SameFile(sourceInfo, targetInfo) {
		t.Error("target is not a hard link of the source")
	}

	if _, err := os.Stat(filepath.Join(cfg.Paths.LibraryDir, "Sousou no Frieren", "tvshow.nfo")); err != nil {
		t.Errorf("tvshow.nfo missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.LibraryDir, "Sousou no Frieren", "Season 01", "Sousou no Frieren - S01E05.nfo")); err != nil {
		t.Errorf("episode nfo missing: %v", err)
	}

	record, err := store.LinkBySource(context.Background(), sourcePath)
	if err != nil {
		t.Fatalf("LinkBySource: %v", err)
	}
	if record == nil || record.TargetPath != wantTarget {
		t.Errorf("link manifest record = %+v, want target %q", record, wantTarget)
	}

	events, _ := notifier.published()
	completed := 0
	for _, event := range events {
		if event == notifications.EventItemCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("completion events = %d (%v), want 1", completed, events)
	}
}
