package workflow_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"anilink/internal/config"
	"anilink/internal/notifications"
	"anilink/internal/queue"
	"anilink/internal/stage"
	"anilink/internal/testsupport"
	"anilink/internal/workflow"
)

// stubStage is a scriptable pipeline stage. Execute outcomes are controlled
// through onExecute; every execution is counted per item.
type stubStage struct {
	name      string
	onExecute func(ctx context.Context, item *queue.Item) error

	mu       sync.Mutex
	executed map[int64]int
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name, executed: make(map[int64]int)}
}

func (s *stubStage) Prepare(_ context.Context, item *queue.Item) error {
	item.ProgressMessage = s.name + " underway"
	item.ProgressPercent = 0
	return nil
}

func (s *stubStage) Execute(ctx context.Context, item *queue.Item) error {
	s.mu.Lock()
	s.executed[item.ID]++
	s.mu.Unlock()
	if s.onExecute != nil {
		return s.onExecute(ctx, item)
	}
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return stage.Health{Name: s.name, Ready: true}
}

func (s *stubStage) executions(itemID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed[itemID]
}

// stubNotifier records every published event in order.
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

func (s *stubNotifier) published() ([]notifications.Event, []notifications.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := append([]notifications.Event(nil), s.events...)
	payloads := append([]notifications.Payload(nil), s.payloads...)
	return events, payloads
}

type managerFixture struct {
	cfg      *config.Config
	store    *queue.Store
	manager  *workflow.Manager
	notifier *stubNotifier
	parse    *stubStage
	resolve  *stubStage
	link     *stubStage
}

func newManagerFixture(t *testing.T, opts ...testsupport.ConfigOption) *managerFixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &stubNotifier{}
	fx := &managerFixture{
		cfg:      cfg,
		store:    store,
		manager:  workflow.NewManagerWithNotifier(cfg, store, nil, notifier),
		notifier: notifier,
		parse:    newStubStage("parse"),
		resolve:  newStubStage("resolve"),
		link:     newStubStage("link"),
	}
	err := fx.manager.ConfigureStages(workflow.StageSet{
		Parser:   fx.parse,
		Resolver: fx.resolve,
		Linker:   fx.link,
	})
	if err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}
	return fx
}

func (f *managerFixture) enqueue(t *testing.T, name string) *queue.Item {
	t.Helper()
	return testsupport.NewItem(t, f.store, filepath.Join(f.cfg.Paths.SourceDir, name), "fp-"+name)
}

func (f *managerFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := f.manager.RunUntilDrained(ctx); err != nil {
		t.Fatalf("RunUntilDrained: %v", err)
	}
}

func (f *managerFixture) reload(t *testing.T, id int64) *queue.Item {
	t.Helper()
	item, err := f.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%d): %v", id, err)
	}
	if item == nil {
		t.Fatalf("item %d missing from queue", id)
	}
	return item
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
	t.Fatalf("timed out waiting for %s", message)
}
