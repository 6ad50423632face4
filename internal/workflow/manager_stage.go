package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"anilink/internal/logging"
	"anilink/internal/queue"
	"anilink/internal/services"
)

// processItem carries a freshly claimed item through every remaining stage.
// The worker owns the item until it reaches a terminal status, fails, or the
// shutdown context cancels mid-stage.
func (m *Manager) processItem(ctx context.Context, item *queue.Item) {
	ctx = services.WithItemID(ctx, item.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)
	logger.Info(
		"queue item claimed",
		logging.String("source_path", item.SourcePath),
		logging.String("status", string(item.Status)),
	)
	m.recordItem(item)

	for {
		stg, ok := m.stageForProcessing(item.Status)
		if !ok {
			break
		}
		if err := m.executeStage(ctx, stg, item); err != nil {
			m.handleItemFailure(ctx, stg, item, err)
			m.recordItem(item)
			return
		}
		if item.Status.IsTerminal() {
			break
		}
		if !m.advanceToNextStage(ctx, item) {
			return
		}
	}

	m.recordItem(item)
	if item.Status == queue.StatusCompleted {
		logger.Info(
			"queue item completed",
			logging.String("title", displayName(item)),
			logging.String("target_path", item.TargetPath),
		)
	}
}

// executeStage runs one stage against the item: persist the claimed state,
// prepare, execute under a heartbeat, then persist the advanced status.
func (m *Manager) executeStage(ctx context.Context, stg pipelineStage, item *queue.Item) error {
	ctx = services.WithStage(ctx, stg.name)
	logger := logging.WithContext(ctx, m.logger)
	started := time.Now()
	logger.Info("stage started", logging.String("source_path", item.SourcePath))

	item.ProgressStage = deriveStageLabel(stg.processing)
	item.ErrorMessage = ""
	if err := m.store.Update(ctx, item); err != nil {
		return fmt.Errorf("persist claimed item: %w", err)
	}

	if err := stg.handler.Prepare(ctx, item); err != nil {
		return err
	}
	if err := m.store.Update(ctx, item); err != nil {
		return fmt.Errorf("persist prepared item: %w", err)
	}

	if err := m.executeWithHeartbeat(ctx, stg, item); err != nil {
		return err
	}

	// Only advance when the handler left the status alone.
	if item.Status == stg.processing {
		item.Status = stg.done
	}
	item.LastHeartbeat = nil
	if item.Status == queue.StatusCompleted && item.ProgressPercent < 100 {
		item.ProgressPercent = 100
	}
	if err := m.store.Update(ctx, item); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}

	logger.Info(
		"stage completed",
		logging.String("status", string(item.Status)),
		logging.Duration("duration", time.Since(started)),
	)
	return nil
}

// executeWithHeartbeat runs the handler while a background loop stamps the
// item's heartbeat, so a wedged worker's items become reclaimable.
func (m *Manager) executeWithHeartbeat(ctx context.Context, stg pipelineStage, item *queue.Item) error {
	if m.heartbeat == nil {
		return stg.handler.Execute(ctx, item)
	}
	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.heartbeat.StartLoop(hbCtx, item.ID)
	}()
	err := stg.handler.Execute(ctx, item)
	cancel()
	wg.Wait()
	return err
}

// advanceToNextStage claims the item for the stage that follows its current
// done status. Losing the claim is not an error: after a crash recovery
// another worker may legitimately pick the item up first.
func (m *Manager) advanceToNextStage(ctx context.Context, item *queue.Item) bool {
	logger := logging.WithContext(ctx, m.logger)
	next, ok := m.stageForStart(item.Status)
	if !ok {
		return false
	}
	claimed, err := m.store.Claim(ctx, item.ID, next.start, next.processing)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.recordError(err)
			logger.Error("failed to advance queue item", logging.Error(err))
		}
		return false
	}
	if !claimed {
		logger.Debug("queue item claimed by another worker", logging.String("status", string(item.Status)))
		return false
	}
	now := time.Now().UTC()
	item.Status = next.processing
	item.LastHeartbeat = &now
	return true
}
