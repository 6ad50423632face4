package workflow

import (
	"context"

	"anilink/internal/logging"
	"anilink/internal/queue"
	"anilink/internal/stage"
)

// StatusSummary is a point-in-time view of the manager for status output.
type StatusSummary struct {
	Running    bool
	Workers    int
	QueueStats map[queue.Status]int
	LastError  string
	LastItem   *queue.Item
	Stages     []stage.Health
}

// Status reports the manager state, queue statistics, and stage health.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.Lock()
	summary := StatusSummary{
		Running: m.running,
		Workers: m.workers,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastItem != nil {
		copied := *m.lastItem
		summary.LastItem = &copied
	}
	m.mu.Unlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue statistics", logging.Error(err))
	} else {
		summary.QueueStats = stats
	}
	summary.Stages = m.stageHealth(ctx)
	return summary
}
