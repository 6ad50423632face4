package workflow

import (
	"context"

	"anilink/internal/stage"
)

// stageHealth collects the health of every configured stage in pipeline order.
func (m *Manager) stageHealth(ctx context.Context) []stage.Health {
	healths := make([]stage.Health, 0, len(m.stages))
	for _, stg := range m.stages {
		healths = append(healths, stg.handler.HealthCheck(ctx))
	}
	return healths
}

// Ready reports whether every stage can accept work.
func (m *Manager) Ready(ctx context.Context) bool {
	for _, health := range m.stageHealth(ctx) {
		if !health.Ready {
			return false
		}
	}
	return len(m.stages) > 0
}
