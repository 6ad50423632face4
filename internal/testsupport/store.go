package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"anilink/internal/config"
	"anilink/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem creates a new queue item for tests using the provided store.
func NewItem(t testing.TB, store *queue.Store, sourcePath, fingerprint string) *queue.Item {
	t.Helper()

	item, err := store.NewFile(context.Background(), sourcePath, fingerprint, filepath.Base(sourcePath))
	if err != nil {
		t.Fatalf("store.NewFile: %v", err)
	}
	return item
}
