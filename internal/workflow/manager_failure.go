package workflow

import (
	"context"
	"errors"
	"strings"

	"anilink/internal/logging"
	"anilink/internal/notifications"
	"anilink/internal/queue"
	"anilink/internal/services"
)

// handleItemFailure classifies a stage error, persists the resulting review
// or failed state, and publishes the matching notification. Cancellation is
// not a failure: the item stays in its processing status and the startup
// rollback re-queues it.
func (m *Manager) handleItemFailure(ctx context.Context, stg pipelineStage, item *queue.Item, stageErr error) {
	logger := logging.WithContext(ctx, m.logger)
	if errors.Is(stageErr, context.Canceled) {
		logger.Debug("stage interrupted by shutdown", logging.String("stage", stg.name))
		return
	}

	m.recordError(stageErr)
	message := strings.TrimSpace(stageErr.Error())
	if services.FailureStatus(stageErr) == queue.StatusReview {
		item.SetReview(message)
	} else {
		item.SetFailed(message)
	}
	logger.Error(
		"stage failed",
		logging.String("stage", stg.name),
		logging.String("status", string(item.Status)),
		logging.Error(stageErr),
	)

	if err := m.store.Update(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("skipping failure persistence during shutdown")
		} else {
			logger.Error("failed to persist failure state", logging.Error(err))
		}
		return
	}
	m.notifyItemOutcome(ctx, item, message)
}

func (m *Manager) notifyItemOutcome(ctx context.Context, item *queue.Item, message string) {
	if m.notifier == nil {
		return
	}
	payload := notifications.Payload{"title": displayName(item)}
	var event notifications.Event
	switch item.Status {
	case queue.StatusReview:
		event = notifications.EventItemReview
		payload["reason"] = message
	case queue.StatusFailed:
		event = notifications.EventItemFailed
		payload["error"] = message
	default:
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		m.logger.Warn("failed to publish item notification", logging.Error(err))
	}
}
