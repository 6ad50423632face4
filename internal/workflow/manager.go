package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"anilink/internal/config"
	"anilink/internal/logging"
	"anilink/internal/notifications"
	"anilink/internal/queue"
)

// Manager coordinates the worker pool that moves queue items through the
// pipeline. Construct it with NewManager, register the stage handlers with
// ConfigureStages, then either Start it for continuous operation or call
// RunUntilDrained for one-shot runs.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service

	workers            int
	pollInterval       time.Duration
	errorRetryInterval time.Duration
	pruneInterval      time.Duration
	heartbeat          *HeartbeatMonitor

	stages []pipelineStage
	pruner CachePruner

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	lastErr  error
	lastItem *queue.Item
}

// NewManager builds a manager with a notifier derived from the configuration.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier builds a manager with an injected notification
// service, which tests use to observe published events.
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	managerLogger := logger
	if managerLogger == nil {
		managerLogger = logging.NewNop()
	}
	managerLogger = managerLogger.With(logging.String("component", "workflow"))

	var workflowCfg config.Workflow
	if cfg != nil {
		workflowCfg = cfg.Workflow
	}

	m := &Manager{
		cfg:                cfg,
		store:              store,
		logger:             managerLogger,
		notifier:           notifier,
		workers:            countOrDefault(workflowCfg.Workers, 2),
		pollInterval:       secondsOrDefault(workflowCfg.QueuePollInterval, 5),
		errorRetryInterval: secondsOrDefault(workflowCfg.ErrorRetryInterval, 10),
	}
	m.heartbeat = NewHeartbeatMonitor(
		store,
		managerLogger,
		secondsOrDefault(workflowCfg.HeartbeatInterval, 15),
		time.Duration(workflowCfg.HeartbeatTimeout)*time.Second,
	)
	if cfg != nil && cfg.TMDB.CachePruneInterval > 0 {
		m.pruneInterval = time.Duration(cfg.TMDB.CachePruneInterval) * time.Second
	}
	return m
}

// Start launches the worker pool and the maintenance loop. It returns once
// the workers are running; call Stop to shut them down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("workflow manager already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return fmt.Errorf("no pipeline stages configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	m.running = true
	m.cancel = cancel
	m.group = group
	m.mu.Unlock()

	m.recoverInterrupted(runCtx)

	for i := 1; i <= m.workers; i++ {
		worker := i
		group.Go(func() error {
			m.runWorker(groupCtx, worker, false)
			return nil
		})
	}
	group.Go(func() error {
		m.runMaintenance(groupCtx)
		return nil
	})

	m.logger.Info(
		"workflow manager started",
		logging.Int("workers", m.workers),
		logging.Duration("poll_interval", m.pollInterval),
	)
	return nil
}

// Stop cancels the worker pool and waits for in-flight stages to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	group := m.group
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}

	m.mu.Lock()
	m.running = false
	m.cancel = nil
	m.group = nil
	m.mu.Unlock()

	m.logger.Info("workflow manager stopped")
}

// RunUntilDrained processes queue items until no runnable work remains, then
// returns. One-shot commands use this instead of Start so they exit when the
// queue empties. It deliberately skips the startup rollback: a daemon may be
// processing the same database concurrently.
func (m *Manager) RunUntilDrained(ctx context.Context) error {
	if len(m.stages) == 0 {
		return fmt.Errorf("no pipeline stages configured")
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 1; i <= m.workers; i++ {
		worker := i
		group.Go(func() error {
			m.runWorker(groupCtx, worker, true)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// recoverInterrupted rolls items stranded in a processing status back to the
// start of their stage. Only the daemon path runs this: at startup no worker
// of this process can own them yet.
func (m *Manager) recoverInterrupted(ctx context.Context) {
	count, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		m.logger.Warn("failed to reset interrupted items", logging.Error(err))
		return
	}
	if count > 0 {
		m.logger.Info("re-queued interrupted items", logging.Int64("count", count))
	}
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) recordItem(item *queue.Item) {
	if item == nil {
		return
	}
	copied := *item
	m.mu.Lock()
	m.lastItem = &copied
	m.mu.Unlock()
}
