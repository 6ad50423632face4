package linker_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"anilink/internal/config"
	"anilink/internal/linker"
	"anilink/internal/notifications"
	"anilink/internal/plan"
	"anilink/internal/queue"
	"anilink/internal/services"
	"anilink/internal/testsupport"
)

type stubNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (s *stubNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.payloads = append(s.payloads, payload)
	return nil
}

func testMetadata() queue.Metadata {
	return queue.Metadata{
		ShowID:          209867,
		ShowTitle:       "Sousou no Frieren",
		OriginalTitle:   "葬送のフリーレン",
		Overview:        "The adventure is over but life goes on.",
		FirstAirDate:    "2023-09-29",
		Rating:          8.8,
		Season:          1,
		Episode:         5,
		EpisodeTitle:    "Killing Magic",
		EpisodeOverview: "Frieren accepts a pupil.",
		EpisodeAirDate:  "2023-10-06",
		EpisodeRating:   8.2,
	}
}

func newSource(t *testing.T, cfg *config.Config, name string) string {
	t.Helper()
	path := filepath.Join(cfg.Paths.SourceDir, name)
	testsupport.WriteFile(t, path, 2048)
	return path
}

func newResolvedItem(t *testing.T, store *queue.Store, sourcePath string, meta queue.Metadata) *queue.Item {
	t.Helper()
	item := testsupport.NewItem(t, store, sourcePath, "fp-"+filepath.Base(sourcePath))
	encoded, err := meta.ToJSON()
	if err != nil {
		t.Fatalf("encode metadata: %v", err)
	}
	item.MetadataJSON = encoded
	item.DisplayTitle = meta.Display()
	item.Status = queue.StatusLinking
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("store.Update: %v", err)
	}
	return item
}

func runLinker(t *testing.T, handler *linker.Linker, item *queue.Item) error {
	t.Helper()
	ctx := context.Background()
	if err := handler.Prepare(ctx, item); err != nil {
		return err
	}
	return handler.Execute(ctx, item)
}

func TestLinkerArchivesEpisode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &stubNotifier{}
	handler := linker.NewLinkerWithDependencies(cfg, store, nil, notifier)

	source := newSource(t, cfg, "[Group] Frieren - 05 [1080p].mkv")
	item := newResolvedItem(t, store, source, testMetadata())

	if err := runLinker(t, handler, item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	target := filepath.Join(cfg.Paths.LibraryDir, "Sousou no Frieren", "Season 01", "Sousou no Frieren - S01E05.mkv")
	if item.TargetPath != target {
		t.Fatalf("item target = %q, want %q", item.TargetPath, target)
	}
	srcInfo, err := os.Stat(source)
	if err != nil {
		t.Fatalf("stat source: %v", err)
	}
	dstInfo, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat target: %v", err)
	}
	if !os.SameFile(srcInfo, dstInfo) {
		t.Fatalf("target is not a hard link of the source")
	}

	showNFO, err := os.ReadFile(filepath.Join(cfg.Paths.LibraryDir, "Sousou no Frieren", "tvshow.nfo"))
	if err != nil {
		t.Fatalf("read tvshow.nfo: %v", err)
	}
	if !strings.Contains(string(showNFO), "<title>Sousou no Frieren</title>") {
		t.Errorf("tvshow.nfo missing canonical title:\n%s", showNFO)
	}
	episodeNFO, err := os.ReadFile(filepath.Join(cfg.Paths.LibraryDir, "Sousou no Frieren", "Season 01", "Sousou no Frieren - S01E05.nfo"))
	if err != nil {
		t.Fatalf("read episode nfo: %v", err)
	}
	if !strings.Contains(string(episodeNFO), "<title>Killing Magic</title>") {
		t.Errorf("episode nfo missing episode title:\n%s", episodeNFO)
	}

	record, err := store.LinkByTarget(context.Background(), target)
	if err != nil {
		t.Fatalf("LinkByTarget: %v", err)
	}
	if record == nil || record.SourcePath != source {
		t.Fatalf("manifest record = %+v, want source %q", record, source)
	}
	if record.Fingerprint == "" {
		t.Errorf("manifest record has no fingerprint")
	}

	if item.ProgressPercent != 100 {
		t.Errorf("progress = %.0f, want 100", item.ProgressPercent)
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventItemCompleted {
		t.Fatalf("events = %v, want one item-completed", notifier.events)
	}
	if got := notifier.payloads[0]["file"]; got != "Sousou no Frieren - S01E05.mkv" {
		t.Errorf("notification file = %q", got)
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := linker.NewLinkerWithDependencies(cfg, store, nil, nil)

	source := newSource(t, cfg, "frieren05.mkv")
	p, err := plan.Build(source, testMetadata(), plan.Options{LibraryDir: cfg.Paths.LibraryDir, WriteNFO: true})
	if err != nil {
		t.Fatalf("plan.Build: %v", err)
	}

	first, err := handler.Materialize(context.Background(), p)
	if err != nil {
		t.Fatalf("first Materialize: %v", err)
	}
	second, err := handler.Materialize(context.Background(), p)
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("second run created a new record: %d vs %d", second.ID, first.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("record timestamp changed on resubmit: %v vs %v", second.CreatedAt, first.CreatedAt)
	}
	records, err := store.Links(context.Background())
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("manifest records = %d, want 1", len(records))
	}
}

func TestMaterializeResumesAfterPartialLink(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := linker.NewLinkerWithDependencies(cfg, store, nil, nil)

	source := newSource(t, cfg, "frieren06.mkv")
	meta := testMetadata()
	meta.Episode = 6
	p, err := plan.Build(source, meta, plan.Options{LibraryDir: cfg.Paths.LibraryDir, WriteNFO: true})
	if err != nil {
		t.Fatalf("plan.Build: %v", err)
	}

	// A crash after the link step leaves the link on disk with no manifest
	// entry; the next run must finish the remaining steps.
	if err := os.MkdirAll(p.SeasonDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Link(source, p.TargetPath); err != nil {
		t.Fatalf("pre-link: %v", err)
	}

	record, err := handler.Materialize(context.Background(), p)
	if err != nil {
		t.Fatalf("Materialize after partial run: %v", err)
	}
	if record.SourcePath != source {
		t.Fatalf("record source = %q, want %q", record.SourcePath, source)
	}
	if _, err := os.Stat(p.Sidecars[1].Path); err != nil {
		t.Fatalf("episode sidecar missing after resume: %v", err)
	}
}

func TestMaterializeCollisionKeepsFirstClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := linker.NewLinkerWithDependencies(cfg, store, nil, nil)

	meta := testMetadata()
	first := newSource(t, cfg, "frieren05-v1.mkv")
	second := newSource(t, cfg, "frieren05-v2.mkv")

	firstPlan, err := plan.Build(first, meta, plan.Options{LibraryDir: cfg.Paths.LibraryDir})
	if err != nil {
		t.Fatalf("plan.Build first: %v", err)
	}
	secondPlan, err := plan.Build(second, meta, plan.Options{LibraryDir: cfg.Paths.LibraryDir})
	if err != nil {
		t.Fatalf("plan.Build second: %v", err)
	}
	if firstPlan.TargetPath != secondPlan.TargetPath {
		t.Fatalf("plans should share a target, got %q vs %q", firstPlan.TargetPath, secondPlan.TargetPath)
	}

	firstRecord, err := handler.Materialize(context.Background(), firstPlan)
	if err != nil {
		t.Fatalf("first Materialize: %v", err)
	}

	_, err = handler.Materialize(context.Background(), secondPlan)
	if !errors.Is(err, services.ErrCollision) {
		t.Fatalf("expected collision, got %v", err)
	}
	if services.FailureStatus(err) != queue.StatusFailed {
		t.Fatalf("collision routed to %s, want failed", services.FailureStatus(err))
	}

	record, err := store.LinkByTarget(context.Background(), firstPlan.TargetPath)
	if err != nil {
		t.Fatalf("LinkByTarget: %v", err)
	}
	if record.SourcePath != first || !record.CreatedAt.Equal(firstRecord.CreatedAt) {
		t.Fatalf("first claim disturbed: %+v", record)
	}
	srcInfo, err := os.Stat(first)
	if err != nil {
		t.Fatalf("stat first source: %v", err)
	}
	dstInfo, err := os.Stat(firstPlan.TargetPath)
	if err != nil {
		t.Fatalf("stat target: %v", err)
	}
	if !os.SameFile(srcInfo, dstInfo) {
		t.Fatalf("target no longer links to the first source")
	}
}

func TestMaterializeRejectsForeignTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := linker.NewLinkerWithDependencies(cfg, store, nil, nil)

	source := newSource(t, cfg, "frieren07.mkv")
	meta := testMetadata()
	meta.Episode = 7
	p, err := plan.Build(source, meta, plan.Options{LibraryDir: cfg.Paths.LibraryDir})
	if err != nil {
		t.Fatalf("plan.Build: %v", err)
	}

	// A file nobody recorded sits at the target path.
	testsupport.WriteFile(t, p.TargetPath, 4096)

	if _, err := handler.Materialize(context.Background(), p); !errors.Is(err, services.ErrCollision) {
		t.Fatalf("expected collision for foreign target, got %v", err)
	}
	info, err := os.Stat(p.TargetPath)
	if err != nil {
		t.Fatalf("stat target: %v", err)
	}
	if info.Size() != 4096 {
		t.Fatalf("foreign target was overwritten, size = %d", info.Size())
	}
}

func TestLinkerDownloadsArtworkOnce(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := linker.NewLinkerWithDependencies(cfg, store, nil, nil)

	meta := testMetadata()
	meta.PosterURL = server.URL + "/poster.jpg"
	meta.StillURL = server.URL + "/still.jpg"
	source := newSource(t, cfg, "frieren08.mkv")
	meta.Episode = 8
	item := newResolvedItem(t, store, source, meta)

	if err := runLinker(t, handler, item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	poster := filepath.Join(cfg.Paths.LibraryDir, "Sousou no Frieren", "poster.jpg")
	thumb := filepath.Join(cfg.Paths.LibraryDir, "Sousou no Frieren", "Season 01", "Sousou no Frieren - S01E08-thumb.jpg")
	for _, path := range []string{poster, thumb} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if string(data) != "jpeg-bytes" {
			t.Fatalf("unexpected artwork content in %s: %q", path, data)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("artwork fetches = %d, want 2", got)
	}

	// Re-running the item leaves existing artwork alone.
	if err := runLinker(t, handler, item); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("artwork fetched again on resubmit: %d hits", got)
	}
}

func TestLinkerRequiresResolvedMetadata(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := linker.NewLinkerWithDependencies(cfg, store, nil, nil)

	source := newSource(t, cfg, "bare.mkv")
	item := testsupport.NewItem(t, store, source, "fp-bare")

	err := runLinker(t, handler, item)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if services.FailureStatus(err) != queue.StatusReview {
		t.Fatalf("missing metadata routed to %s, want review", services.FailureStatus(err))
	}
}

func TestLinkerHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handler := linker.NewLinkerWithDependencies(cfg, store, nil, nil)

	health := handler.HealthCheck(context.Background())
	if !health.Ready {
		t.Fatalf("expected linker ready, detail = %q", health.Detail)
	}

	broken := *cfg
	broken.Paths.LibraryDir = ""
	handler = linker.NewLinkerWithDependencies(&broken, store, nil, nil)
	health = handler.HealthCheck(context.Background())
	if health.Ready {
		t.Fatalf("expected linker unready without library dir")
	}
}
