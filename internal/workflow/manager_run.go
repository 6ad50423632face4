package workflow

import (
	"context"
	"errors"
	"time"

	"anilink/internal/logging"
	"anilink/internal/queue"
	"anilink/internal/services"
)

// runWorker is one slot of the pool. It claims items and processes them end
// to end until the context is cancelled, or, in drain mode, until the queue
// has no runnable items left.
func (m *Manager) runWorker(ctx context.Context, worker int, drain bool) {
	ctx = services.WithWorker(ctx, worker)
	logger := logging.WithContext(ctx, m.logger)
	logger.Debug("worker started")

	for {
		if ctx.Err() != nil {
			logger.Debug("worker stopping")
			return
		}
		item, err := m.claimNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.recordError(err)
			logger.Error("failed to claim next queue item", logging.Error(err))
			if !m.sleep(ctx, m.errorRetryInterval) {
				return
			}
			continue
		}
		if item == nil {
			if drain {
				logger.Debug("queue drained, worker exiting")
				return
			}
			if !m.sleep(ctx, m.pollInterval) {
				return
			}
			continue
		}
		m.processItem(ctx, item)
	}
}

// claimNext finds the oldest runnable item and claims it with an atomic
// status transition. A lost claim means another worker took the item first;
// the loop simply looks again.
func (m *Manager) claimNext(ctx context.Context) (*queue.Item, error) {
	for {
		item, err := m.store.NextForStatuses(ctx, m.startStatuses()...)
		if err != nil || item == nil {
			return nil, err
		}
		stg, ok := m.stageForStart(item.Status)
		if !ok {
			return nil, errors.New("queue item status has no pipeline stage")
		}
		claimed, err := m.store.Claim(ctx, item.ID, stg.start, stg.processing)
		if err != nil {
			return nil, err
		}
		if !claimed {
			continue
		}
		now := time.Now().UTC()
		item.Status = stg.processing
		item.LastHeartbeat = &now
		return item, nil
	}
}

// sleep waits for the given duration and reports false when the context is
// cancelled first.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// runMaintenance reclaims items whose worker stopped heartbeating and sweeps
// the show cache on its configured interval.
func (m *Manager) runMaintenance(ctx context.Context) {
	reclaim := time.NewTicker(m.heartbeat.Interval())
	defer reclaim.Stop()

	var pruneC <-chan time.Time
	if m.pruner != nil && m.pruneInterval > 0 {
		prune := time.NewTicker(m.pruneInterval)
		defer prune.Stop()
		pruneC = prune.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaim.C:
			if _, err := m.heartbeat.ReclaimStaleItems(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("stale item reclaim failed", logging.Error(err))
			}
		case <-pruneC:
			m.pruneCache()
		}
	}
}

func (m *Manager) pruneCache() {
	removed, err := m.pruner.Prune()
	if err != nil {
		m.logger.Warn("show cache prune failed", logging.Error(err))
		return
	}
	if removed > 0 {
		m.logger.Info("pruned expired show cache records", logging.Int("removed", removed))
	}
}
