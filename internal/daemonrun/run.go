// Package daemonrun wires the daemon process: logging, signal handling, the
// queue store, stage registration, and the watch-mode daemon lifecycle.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"anilink/internal/config"
	"anilink/internal/daemon"
	"anilink/internal/linker"
	"anilink/internal/logging"
	"anilink/internal/notifications"
	"anilink/internal/parse"
	"anilink/internal/queue"
	"anilink/internal/resolve"
	"anilink/internal/scanner"
	"anilink/internal/watcher"
	"anilink/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides the configured log level when non-empty.
	LogLevel string
	// DisableWatch runs the queue workers without the filesystem watcher.
	DisableWatch bool
}

// Run starts the daemon runtime loop and blocks until the context is
// cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("anilink-%s.log", runID))
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "anilink-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.DataDir, "anilink.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManagerWithNotifier(cfg, store, logger, notifier)

	resolver := resolve.NewResolver(cfg, store, logger)
	if err := manager.ConfigureStages(workflow.StageSet{
		Parser:   parse.NewParser(cfg, store, logger),
		Resolver: resolver,
		Linker:   linker.NewLinkerWithDependencies(cfg, store, logger, notifier),
	}); err != nil {
		return fmt.Errorf("configure stages: %w", err)
	}
	manager.SetCachePruner(resolver.Cache())

	var w *watcher.Watcher
	if !opts.DisableWatch {
		intake := scanner.NewScannerWithNotifier(cfg, store, logger, notifier)
		w, err = watcher.New(cfg, intake, logger)
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		w.SetCachePruner(resolver.Cache())
	}

	d, err := daemon.New(cfg, store, logger, manager, w)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		return err
	}

	<-signalCtx.Done()
	logger.Info("daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
