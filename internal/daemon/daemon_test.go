package daemon_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"anilink/internal/config"
	"anilink/internal/daemon"
	"anilink/internal/queue"
	"anilink/internal/stage"
	"anilink/internal/testsupport"
	"anilink/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Item) error { return nil }
func (noopStage) Execute(context.Context, *queue.Item) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

// testConfig builds a config whose TMDB endpoint points at a local stub so
// the preflight check never leaves the host.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t)
	cfg.TMDB.BaseURL = srv.URL
	cfg.Workflow.QueuePollInterval = 1
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *queue.Store) {
	t.Helper()

	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil)
	if err := mgr.ConfigureStages(workflow.StageSet{
		Parser:   noopStage{},
		Resolver: noopStage{},
		Linker:   noopStage{},
	}); err != nil {
		t.Fatalf("configure stages: %v", err)
	}
	d, err := daemon.New(cfg, store, nil, mgr, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d, store
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(message)
}

func TestDaemonStartProcessesQueue(t *testing.T) {
	cfg := testConfig(t)
	d, store := newDaemon(t, cfg)
	defer d.Stop()

	item := testsupport.NewItem(t, store, filepath.Join(cfg.Paths.SourceDir, "show-01.mkv"), "fp-daemon")

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	if !d.Status(context.Background()).Running {
		t.Fatal("expected daemon to report running")
	}

	waitFor(t, 15*time.Second, func() bool {
		current, err := store.GetByID(context.Background(), item.ID)
		if err != nil {
			return false
		}
		return current.Status == queue.StatusCompleted
	}, "item never completed under daemon")

	d.Stop()
	if d.Status(context.Background()).Running {
		t.Fatal("expected daemon to report stopped")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testConfig(t)
	first, _ := newDaemon(t, cfg)
	defer first.Stop()
	second, _ := newDaemon(t, cfg)
	defer second.Stop()

	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start first daemon: %v", err)
	}
	err := second.Start(context.Background())
	if err == nil {
		t.Fatal("expected second daemon start to fail while lock is held")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("start second daemon after release: %v", err)
	}
}

func TestDaemonPreflightBlocksStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.SourceDir = cfg.Paths.SourceDir + "-missing"
	d, _ := newDaemon(t, cfg)

	err := d.Start(context.Background())
	if err == nil {
		d.Stop()
		t.Fatal("expected start to fail preflight")
	}
	if !strings.Contains(err.Error(), "preflight failed") {
		t.Fatalf("unexpected error: %v", err)
	}

	running, probeErr := daemon.Running(cfg)
	if probeErr != nil {
		t.Fatalf("probe lock: %v", probeErr)
	}
	if running {
		t.Fatal("failed start must not leave the lock held")
	}
}

func TestRunningProbe(t *testing.T) {
	cfg := testConfig(t)

	running, err := daemon.Running(cfg)
	if err != nil {
		t.Fatalf("probe before start: %v", err)
	}
	if running {
		t.Fatal("expected no daemon before start")
	}

	d, _ := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	defer d.Stop()

	running, err = daemon.Running(cfg)
	if err != nil {
		t.Fatalf("probe while running: %v", err)
	}
	if !running {
		t.Fatal("expected probe to see the running daemon")
	}

	d.Stop()
	running, err = daemon.Running(cfg)
	if err != nil {
		t.Fatalf("probe after stop: %v", err)
	}
	if running {
		t.Fatal("expected probe to see the lock released")
	}
}

func TestDaemonStatusPaths(t *testing.T) {
	cfg := testConfig(t)
	d, _ := newDaemon(t, cfg)

	status := d.Status(context.Background())
	if status.QueueDBPath != cfg.QueueDatabasePath() {
		t.Fatalf("unexpected queue db path: %s", status.QueueDBPath)
	}
	if status.LockFilePath != daemon.LockPath(cfg) {
		t.Fatalf("unexpected lock path: %s", status.LockFilePath)
	}
	if status.Running {
		t.Fatal("expected not running before start")
	}
}
