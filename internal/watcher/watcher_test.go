package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"anilink/internal/config"
	"anilink/internal/queue"
	"anilink/internal/scanner"
	"anilink/internal/testsupport"
	"anilink/internal/watcher"
)

func newWatcher(t *testing.T, cfg *config.Config, store *queue.Store) *watcher.Watcher {
	t.Helper()
	intake := scanner.NewScannerWithNotifier(cfg, store, nil, nil)
	w, err := watcher.New(cfg, intake, nil)
	if err != nil {
		t.Fatalf("watcher.New: %v", err)
	}
	return w
}

func startWatcher(t *testing.T, w *watcher.Watcher) {
	t.Helper()
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
}

func pendingCount(t *testing.T, store *queue.Store) int {
	t.Helper()
	items, err := store.ItemsByStatus(context.Background(), queue.StatusPending)
	if err != nil {
		t.Fatalf("ItemsByStatus: %v", err)
	}
	return len(items)
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", message)
}

func TestWatcherQueuesNewFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watch.DebounceSeconds = 1
	cfg.Watch.RescanInterval = 0
	if err := os.MkdirAll(cfg.Paths.SourceDir, 0o755); err != nil {
		t.Fatalf("mkdir source: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	w := newWatcher(t, cfg, store)
	startWatcher(t, w)

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.SourceDir, "[Grp] Show - 01 [1080p].mkv"), 2048)

	waitFor(t, 15*time.Second, func() bool {
		return pendingCount(t, store) == 1
	}, "watch event to queue the new file")
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watch.DebounceSeconds = 1
	cfg.Watch.RescanInterval = 0
	if err := os.MkdirAll(cfg.Paths.SourceDir, 0o755); err != nil {
		t.Fatalf("mkdir source: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	w := newWatcher(t, cfg, store)
	startWatcher(t, w)

	nested := filepath.Join(cfg.Paths.SourceDir, "new-season")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(300 * time.Millisecond)
	testsupport.WriteFile(t, filepath.Join(nested, "[Grp] Show - 02 [1080p].mkv"), 2048)

	waitFor(t, 15*time.Second, func() bool {
		return pendingCount(t, store) == 1
	}, "file in a new directory to be queued")
}

func TestWatcherDebouncesRepeatedWrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watch.DebounceSeconds = 1
	cfg.Watch.RescanInterval = 0
	if err := os.MkdirAll(cfg.Paths.SourceDir, 0o755); err != nil {
		t.Fatalf("mkdir source: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	w := newWatcher(t, cfg, store)
	startWatcher(t, w)

	path := filepath.Join(cfg.Paths.SourceDir, "[Grp] Show - 03 [1080p].mkv")
	for size := int64(1024); size <= 4096; size += 1024 {
		testsupport.WriteFile(t, path, size)
		time.Sleep(200 * time.Millisecond)
	}

	waitFor(t, 15*time.Second, func() bool {
		return pendingCount(t, store) == 1
	}, "debounced file to be queued once")

	// Quiet period: no further items should appear for the same file.
	time.Sleep(2 * time.Second)
	if n := pendingCount(t, store); n != 1 {
		t.Errorf("pending items = %d after settling, want 1", n)
	}
}

func TestWatcherStartScansBacklog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watch.DebounceSeconds = 1
	cfg.Watch.RescanInterval = 0
	store := testsupport.MustOpenStore(t, cfg)

	// File already present before watch mode starts.
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.SourceDir, "[Grp] Backlog - 04 [1080p].mkv"), 2048)

	w := newWatcher(t, cfg, store)
	startWatcher(t, w)

	if n := pendingCount(t, store); n != 1 {
		t.Errorf("pending items = %d after startup scan, want 1", n)
	}
}

type countingPruner struct {
	calls atomic.Int32
}

func (p *countingPruner) Prune() (int, error) {
	p.calls.Add(1)
	return 0, nil
}

func TestWatcherRescanSweepsCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watch.DebounceSeconds = 1
	cfg.Watch.RescanInterval = 1
	if err := os.MkdirAll(cfg.Paths.SourceDir, 0o755); err != nil {
		t.Fatalf("mkdir source: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	w := newWatcher(t, cfg, store)
	pruner := &countingPruner{}
	w.SetCachePruner(pruner)
	startWatcher(t, w)

	waitFor(t, 10*time.Second, func() bool {
		return pruner.calls.Load() > 0
	}, "rescan cycle to sweep the cache")
}
