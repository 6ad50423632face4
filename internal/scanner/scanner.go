// Package scanner discovers archivable video files under the source
// directory and feeds them into the queue. One-shot scans, the filesystem
// watcher, and manual submissions all enter through the same intake, so
// every file is fingerprinted and deduplicated the same way.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"anilink/internal/config"
	"anilink/internal/fileutil"
	"anilink/internal/logging"
	"anilink/internal/notifications"
	"anilink/internal/queue"
)

// partialSuffixes marks downloads still in flight. Most partials also fail
// the extension allowlist; the explicit check catches renamed stragglers.
var partialSuffixes = []string{".part", ".partial", ".tmp", ".crdownload"}

// Scanner walks the source tree and queues new video files.
type Scanner struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time
}

// Result summarizes one scan pass.
type Result struct {
	Found    int
	Queued   int
	Known    int
	Unstable int
	Errors   []string
}

func NewScanner(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Scanner {
	return NewScannerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

func NewScannerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Scanner {
	scanLogger := logger
	if scanLogger != nil {
		scanLogger = scanLogger.With(logging.String("component", "scanner"))
	}
	return &Scanner{
		cfg:      cfg,
		store:    store,
		logger:   scanLogger,
		notifier: notifier,
		now:      time.Now,
	}
}

// Scan walks root (the configured source directory when empty), queues every
// eligible new file, and publishes a scan summary. Unreadable entries are
// collected as errors without aborting the walk.
func (s *Scanner) Scan(ctx context.Context, root string) (Result, error) {
	logger := logging.WithContext(ctx, s.logger)
	result := Result{}

	if root == "" {
		root = s.cfg.Paths.SourceDir
	}
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		return result, fmt.Errorf("scan root: %w", err)
	}
	libraryDir := filepath.Clean(s.cfg.Paths.LibraryDir)

	logger.Info("scan started", logging.String("root", root))
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if walkErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, walkErr))
			return nil
		}
		if entry.IsDir() {
			// The library may live inside the source tree; never walk
			// into it or hidden directories.
			if path != root && (strings.HasPrefix(entry.Name(), ".") || filepath.Clean(path) == libraryDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.eligibleName(entry.Name()) {
			return nil
		}
		result.Found++

		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		if !s.settled(path, info) {
			result.Unstable++
			logger.Debug("file still settling", logging.String("path", path))
			return nil
		}

		_, queued, err := s.Enqueue(ctx, path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		if queued {
			result.Queued++
		} else {
			result.Known++
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	logger.Info(
		"scan completed",
		logging.Int("found", result.Found),
		logging.Int("queued", result.Queued),
		logging.Int("known", result.Known),
		logging.Int("unstable", result.Unstable),
		logging.Int("errors", len(result.Errors)),
	)
	s.publishSummary(ctx, result)
	return result, nil
}

// Evaluate applies the full eligibility gate to a single path and queues the
// file when it passes. The watcher feeds debounced events through here.
func (s *Scanner) Evaluate(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() || !s.eligibleName(info.Name()) {
		return false, nil
	}
	if !s.settled(path, info) {
		return false, nil
	}
	_, queued, err := s.Enqueue(ctx, path)
	return queued, err
}

// Enqueue fingerprints one file and creates a queue item unless the file is
// already known by fingerprint or by an active item on the same path. It
// returns the item and whether it was newly queued.
func (s *Scanner) Enqueue(ctx context.Context, path string) (*queue.Item, bool, error) {
	logger := logging.WithContext(ctx, s.logger)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("resolve path: %w", err)
	}
	fingerprint, err := fileutil.Fingerprint(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("fingerprint: %w", err)
	}

	if existing, err := s.store.FindByFingerprint(ctx, fingerprint); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}
	// A replaced file keeps its path but changes fingerprint; only an item
	// still moving through the pipeline blocks re-queueing.
	if existing, err := s.store.FindBySourcePath(ctx, absPath); err != nil {
		return nil, false, err
	} else if existing != nil && !existing.Status.IsTerminal() {
		return existing, false, nil
	}

	item, err := s.store.NewFile(ctx, absPath, fingerprint, filepath.Base(absPath))
	if err != nil {
		return nil, false, err
	}
	logger.Info(
		"queued new file",
		logging.Int64("item_id", item.ID),
		logging.String("source_path", absPath),
		logging.String("fingerprint", fingerprint),
	)
	return item, true, nil
}

// eligibleName filters on the extension allowlist, hidden names, and
// partial-download suffixes.
func (s *Scanner) eligibleName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	ext := filepath.Ext(lower)
	if ext == "" {
		return false
	}
	for _, allowed := range s.cfg.Scanner.VideoExtensions {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if !strings.HasPrefix(allowed, ".") {
			allowed = "." + allowed
		}
		if ext == allowed {
			return true
		}
	}
	return false
}

// settled reports whether the file looks fully written: it meets the size
// floor, its size holds across two reads, nothing blocks an append open, and
// it has not been modified within the settle window.
func (s *Scanner) settled(path string, info fs.FileInfo) bool {
	minBytes := int64(s.cfg.Scanner.MinSizeMB) * 1024 * 1024
	if info.Size() < minBytes {
		return false
	}

	// A downloader holding an exclusive lock makes the append probe fail.
	probe, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return false
	}
	probe.Close()

	again, err := os.Stat(path)
	if err != nil || again.Size() != info.Size() {
		return false
	}

	settle := time.Duration(s.cfg.Scanner.SettleSeconds) * time.Second
	if settle > 0 && s.now().Sub(again.ModTime()) < settle {
		return false
	}
	return true
}

func (s *Scanner) publishSummary(ctx context.Context, result Result) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Publish(ctx, notifications.EventScanCompleted, notifications.Payload{
		"queued": strconv.Itoa(result.Queued),
	})
	if err != nil {
		logging.WithContext(ctx, s.logger).Warn("failed to publish scan summary", logging.Error(err))
	}
}
