// Package watcher feeds filesystem events into the scanning intake. It
// combines an fsnotify watch over the source tree with a periodic full
// rescan, so missed events (network mounts, overflowed kernel queues) are
// repaired on the next cycle. Events are debounced per path: downloads emit
// a burst of writes and only the settled file should be evaluated.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"anilink/internal/config"
	"anilink/internal/logging"
	"anilink/internal/scanner"
)

// CachePruner is satisfied by the show cache; each rescan cycle sweeps it.
type CachePruner interface {
	Prune() (int, error)
}

// Watcher owns the fsnotify instance and the rescan ticker.
type Watcher struct {
	cfg     *config.Config
	scanner *scanner.Scanner
	logger  *slog.Logger
	pruner  CachePruner

	fw       *fsnotify.Watcher
	debounce time.Duration
	rescan   time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config, intake *scanner.Scanner, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}
	watchLogger := logger
	if watchLogger != nil {
		watchLogger = watchLogger.With(logging.String("component", "watcher"))
	}
	debounce := time.Duration(cfg.Watch.DebounceSeconds) * time.Second
	if debounce <= 0 {
		debounce = 5 * time.Second
	}
	rescan := time.Duration(cfg.Watch.RescanInterval) * time.Second
	return &Watcher{
		cfg:      cfg,
		scanner:  intake,
		logger:   watchLogger,
		fw:       fw,
		debounce: debounce,
		rescan:   rescan,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// SetCachePruner registers the cache swept once per rescan cycle.
func (w *Watcher) SetCachePruner(pruner CachePruner) {
	w.pruner = pruner
}

// Start registers the source tree and launches the event and rescan loops.
// The initial full scan runs before events are processed so a backlog
// present at startup is queued immediately.
func (w *Watcher) Start(ctx context.Context) error {
	root := filepath.Clean(w.cfg.Paths.SourceDir)
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	if err := w.addRecursive(root); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	logger := logging.WithContext(runCtx, w.logger)
	if _, err := w.scanner.Scan(runCtx, root); err != nil {
		logger.Warn("initial scan failed", logging.Error(err))
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.eventLoop(runCtx)
	}()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.rescanLoop(runCtx)
	}()

	logger.Info(
		"watch mode started",
		logging.String("root", root),
		logging.Duration("debounce", w.debounce),
		logging.Duration("rescan_interval", w.rescan),
	)
	return nil
}

// Stop tears down the watcher and waits for the loops to exit. Pending
// debounce timers are cancelled; the next rescan would pick those files up.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.fw.Close()
	w.wg.Wait()

	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
}

// addRecursive watches root and every non-hidden subdirectory. The library
// tree is excluded even when it lives under the source root.
func (w *Watcher) addRecursive(root string) error {
	libraryDir := filepath.Clean(w.cfg.Paths.LibraryDir)
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || !entry.IsDir() {
			return nil
		}
		if path != root && (strings.HasPrefix(entry.Name(), ".") || filepath.Clean(path) == libraryDir) {
			return filepath.SkipDir
		}
		if addErr := w.fw.Add(path); addErr != nil {
			logging.WithContext(context.Background(), w.logger).Warn(
				"failed to watch directory",
				logging.String("path", path),
				logging.Error(addErr),
			)
		}
		return nil
	})
}

func (w *Watcher) eventLoop(ctx context.Context) {
	logger := logging.WithContext(ctx, w.logger)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Warn("filesystem watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return
	}

	// New directories join the watch so files landing inside them are seen.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addRecursive(event.Name); err != nil {
				logging.WithContext(ctx, w.logger).Warn(
					"failed to watch new directory",
					logging.String("path", event.Name),
					logging.Error(err),
				)
			}
		}
		return
	}

	w.scheduleEvaluation(ctx, event.Name)
}

// scheduleEvaluation resets the path's debounce timer; the evaluation runs
// once the path has been quiet for the full window.
func (w *Watcher) scheduleEvaluation(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.evaluate(ctx, path)
	})
}

func (w *Watcher) evaluate(ctx context.Context, path string) {
	logger := logging.WithContext(ctx, w.logger)
	queued, err := w.scanner.Evaluate(ctx, path)
	if err != nil {
		logger.Warn("failed to evaluate file event", logging.String("path", path), logging.Error(err))
		return
	}
	if queued {
		logger.Info("queued file from watch event", logging.String("path", path))
	}
}

// rescanLoop runs the periodic safety-net scan and the cache sweep. A
// non-positive interval disables it; debounced events still flow.
func (w *Watcher) rescanLoop(ctx context.Context) {
	if w.rescan <= 0 {
		return
	}
	logger := logging.WithContext(ctx, w.logger)
	ticker := time.NewTicker(w.rescan)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.scanner.Scan(ctx, ""); err != nil {
				logger.Warn("periodic rescan failed", logging.Error(err))
			}
			w.sweepCache(logger)
		}
	}
}

func (w *Watcher) sweepCache(logger *slog.Logger) {
	if w.pruner == nil {
		return
	}
	removed, err := w.pruner.Prune()
	if err != nil {
		logger.Warn("show cache sweep failed", logging.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("swept expired show cache records", logging.Int("removed", removed))
	}
}
