package workflow_test

import (
	"context"
	"testing"
	"time"

	"anilink/internal/queue"
	"anilink/internal/testsupport"
	"anilink/internal/workflow"
)

func TestHeartbeatMonitorReclaimsStaleItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "/incoming/stale-01.mkv", "fp-stale-01")
	claimed, err := store.Claim(ctx, item.ID, queue.StatusPending, queue.StatusParsing)
	if err != nil || !claimed {
		t.Fatalf("Claim = %v, %v; want a successful claim", claimed, err)
	}

	stale := time.Now().UTC().Add(-10 * time.Minute)
	current, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	current.LastHeartbeat = &stale
	if err := store.Update(ctx, current); err != nil {
		t.Fatalf("store.Update: %v", err)
	}

	monitor := workflow.NewHeartbeatMonitor(store, nil, time.Second, 2*time.Minute)
	count, err := monitor.ReclaimStaleItems(ctx)
	if err != nil {
		t.Fatalf("ReclaimStaleItems: %v", err)
	}
	if count != 1 {
		t.Fatalf("reclaimed %d items, want 1", count)
	}
	got, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusPending {
		t.Errorf("Status = %q, want %q after reclaim", got.Status, queue.StatusPending)
	}
}

func TestHeartbeatMonitorDisabledTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, "/incoming/stale-02.mkv", "fp-stale-02")
	if _, err := store.Claim(ctx, item.ID, queue.StatusPending, queue.StatusParsing); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	monitor := workflow.NewHeartbeatMonitor(store, nil, time.Second, 0)
	count, err := monitor.ReclaimStaleItems(ctx)
	if err != nil {
		t.Fatalf("ReclaimStaleItems: %v", err)
	}
	if count != 0 {
		t.Errorf("reclaimed %d items with reclaim disabled, want 0", count)
	}
}

func TestHeartbeatLoopStampsItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	item := testsupport.NewItem(t, store, "/incoming/beat-03.mkv", "fp-beat-03")
	if _, err := store.Claim(ctx, item.ID, queue.StatusPending, queue.StatusParsing); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	before, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	monitor := workflow.NewHeartbeatMonitor(store, nil, 50*time.Millisecond, time.Minute)
	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.StartLoop(ctx, item.ID)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.GetByID(context.Background(), item.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.LastHeartbeat != nil && before.LastHeartbeat != nil && got.LastHeartbeat.After(*before.LastHeartbeat) {
			cancel()
			<-done
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("heartbeat was never refreshed")
}
