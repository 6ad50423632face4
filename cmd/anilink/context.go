package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"anilink/internal/config"
	"anilink/internal/linker"
	"anilink/internal/logging"
	"anilink/internal/notifications"
	"anilink/internal/parse"
	"anilink/internal/preflight"
	"anilink/internal/queue"
	"anilink/internal/resolve"
	"anilink/internal/scanner"
	"anilink/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// withStore opens the queue store for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func (c *commandContext) newIntake(cfg *config.Config, store *queue.Store, logger *slog.Logger) *scanner.Scanner {
	return scanner.NewScannerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

func newRunLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.NewFromConfig(cfg)
}

// checkPreflight fails fast when the environment cannot support a run.
func checkPreflight(ctx context.Context, cfg *config.Config) error {
	failed := preflight.Failures(preflight.RunAll(ctx, cfg))
	if len(failed) == 0 {
		return nil
	}
	details := make([]string, 0, len(failed))
	for _, result := range failed {
		details = append(details, fmt.Sprintf("%s: %s", result.Name, result.Detail))
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(details, "; "))
}

// drainQueue runs the full pipeline over every runnable item and returns once
// the queue is empty. Used by the one-shot commands.
func drainQueue(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger) error {
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

	return manager.RunUntilDrained(ctx)
}

// printQueueSummary renders the per-status item counts after a run.
func printQueueSummary(ctx context.Context, out io.Writer, store *queue.Store) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	rows := buildStatusRows(stats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return nil
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	if stats[queue.StatusReview] > 0 {
		fmt.Fprintln(out, "Some items need manual review: run `anilink review list`")
	}
	return nil
}
