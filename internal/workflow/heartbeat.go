package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"anilink/internal/logging"
	"anilink/internal/queue"
)

// HeartbeatMonitor stamps in-flight items and reclaims items whose worker
// went quiet. A timeout of zero disables reclaiming.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// Interval reports how often heartbeats are written.
func (h *HeartbeatMonitor) Interval() time.Duration {
	return h.interval
}

// StartLoop stamps the item on every tick until the context is cancelled.
// The manager runs one loop per executing stage.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, itemID int64) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, itemID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				h.logger.Warn(
					"failed to update heartbeat",
					logging.Int64("item_id", itemID),
					logging.Error(err),
				)
			}
		}
	}
}

// ReclaimStaleItems rolls items with an expired heartbeat back to the start
// of their stage so another worker can claim them.
func (h *HeartbeatMonitor) ReclaimStaleItems(ctx context.Context) (int64, error) {
	if h.timeout <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-h.timeout)
	count, err := h.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		h.logger.Info("reclaimed stale items", logging.Int64("count", count))
	}
	return count, nil
}
