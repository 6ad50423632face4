package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"anilink/internal/queue"
	"anilink/internal/testsupport"
)

func TestQueueListShowsItems(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	testsupport.NewItem(t, env.store, filepath.Join(env.cfg.Paths.SourceDir, "alpha-01.mkv"), "fp-alpha")
	beta := testsupport.NewItem(t, env.store, filepath.Join(env.cfg.Paths.SourceDir, "beta-02.mkv"), "fp-beta")
	beta.SetFailed("network unreachable")
	if err := env.store.Update(ctx, beta); err != nil {
		t.Fatalf("update beta: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "alpha-01.mkv")
	requireContains(t, out, "beta-02.mkv")
	requireContains(t, out, "failed")

	out, _, err = runCLI(t, env.configPath, "queue", "list", "--status", "failed")
	if err != nil {
		t.Fatalf("queue list --status: %v", err)
	}
	requireContains(t, out, "beta-02.mkv")
	if strings.Contains(out, "alpha-01.mkv") {
		t.Fatalf("filtered list should omit alpha-01.mkv:\n%s", out)
	}
}

func TestQueueRetryRequeuesFailed(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	item := testsupport.NewItem(t, env.store, filepath.Join(env.cfg.Paths.SourceDir, "gamma-03.mkv"), "fp-gamma")
	item.SetFailed("transient upstream error")
	if err := env.store.Update(ctx, item); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "queue", "retry")
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Requeued 1 failed item(s)")

	updated, err := env.store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if updated.Status != queue.StatusPending {
		t.Fatalf("expected pending after retry, got %s", updated.Status)
	}
}

func TestQueueClearRemovesCompleted(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	done := testsupport.NewItem(t, env.store, filepath.Join(env.cfg.Paths.SourceDir, "done-04.mkv"), "fp-done")
	done.Status = queue.StatusCompleted
	if err := env.store.Update(ctx, done); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	testsupport.NewItem(t, env.store, filepath.Join(env.cfg.Paths.SourceDir, "wip-05.mkv"), "fp-wip")

	out, _, err := runCLI(t, env.configPath, "queue", "clear")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 completed item(s)")

	remaining, err := env.store.List(ctx)
	if err != nil {
		t.Fatalf("list remaining: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Fingerprint != "fp-wip" {
		t.Fatalf("expected only the pending item to remain, got %d items", len(remaining))
	}
}

func TestReviewResolveWritesMappingAndRequeues(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	item := testsupport.NewItem(t, env.store, filepath.Join(env.cfg.Paths.SourceDir, "mystery-ep7.mkv"), "fp-mystery")
	item.SetReview("No TMDB match for Mystery Show")
	if err := env.store.Update(ctx, item); err != nil {
		t.Fatalf("mark review: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "review", "list")
	if err != nil {
		t.Fatalf("review list: %v", err)
	}
	requireContains(t, out, "mystery-ep7.mkv")
	requireContains(t, out, "No TMDB match")

	if _, _, err := runCLI(t, env.configPath, "review", "resolve",
		"999", "--show-id", "209867"); err == nil {
		t.Fatal("expected resolve of missing item to fail")
	}

	out, _, err = runCLI(t, env.configPath, "review", "resolve",
		strconv.FormatInt(item.ID, 10), "--show-id", "209867", "--season", "1", "--episode", "7")
	if err != nil {
		t.Fatalf("review resolve: %v", err)
	}
	requireContains(t, out, "Pinned mystery-ep7.mkv to show 209867")

	updated, err := env.store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if updated.Status != queue.StatusPending {
		t.Fatalf("expected pending after resolve, got %s", updated.Status)
	}

	data, err := os.ReadFile(env.cfg.TMDB.MappingsPath)
	if err != nil {
		t.Fatalf("read mappings file: %v", err)
	}
	var payload struct {
		Rules []struct {
			Filenames []string `json:"filenames"`
			ShowID    int64    `json:"show_id"`
		} `json:"rules"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode mappings file: %v", err)
	}
	if len(payload.Rules) != 1 || payload.Rules[0].ShowID != 209867 {
		t.Fatalf("unexpected mapping rules: %+v", payload.Rules)
	}
}

func TestProcessQueuesWithoutRunning(t *testing.T) {
	env := setupCLITestEnv(t)

	path := filepath.Join(env.cfg.Paths.SourceDir, "[Group] New Show - 01 [1080p].mkv")
	testsupport.WriteFile(t, path, 2048)

	out, _, err := runCLI(t, env.configPath, "process", "--no-run", path)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	requireContains(t, out, "Queued")
	requireContains(t, out, "1 file(s) queued")

	out, _, err = runCLI(t, env.configPath, "process", "--no-run", path)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	requireContains(t, out, "Skipped")

	items, err := env.store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Status != queue.StatusPending {
		t.Fatalf("expected one pending item, got %d", len(items))
	}
}

func TestScanQueuesDiscoveredFiles(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.SourceDir, "show-a-01.mkv"), 2048)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.SourceDir, "show-b-02.mkv"), 2048)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.SourceDir, "notes.txt"), 64)

	out, _, err := runCLI(t, env.configPath, "scan", "--no-run")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	requireContains(t, out, "Queued")

	items, err := env.store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 queued items, got %d", len(items))
	}
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "fresh", "config.toml")
	out, _, err := runCLI(t, env.configPath, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	requireContains(t, string(data), "[paths]")
	requireContains(t, string(data), "[tmdb]")

	if _, _, err := runCLI(t, env.configPath, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}

	out, _, err = runCLI(t, env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "# Config path:")
	requireContains(t, out, "<set>")
}

func TestVersionCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "anilink dev")
}

func TestStatusReportsStoppedDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.NewItem(t, env.store, filepath.Join(env.cfg.Paths.SourceDir, "pending-06.mkv"), "fp-status")

	out, _, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon: stopped")
	requireContains(t, out, "pending")
	requireContains(t, out, "TMDB API")
}
