package workflow

import (
	"fmt"
	"time"

	"anilink/internal/queue"
	"anilink/internal/stage"
)

// StageSet carries the handler for each pipeline stage.
type StageSet struct {
	Parser   stage.Handler
	Resolver stage.Handler
	Linker   stage.Handler
}

// CachePruner is satisfied by the show cache; the maintenance loop calls it
// on the configured interval to drop expired lookup records.
type CachePruner interface {
	Prune() (int, error)
}

// pipelineStage binds a handler to the status transitions it owns. Items are
// claimed at start, held at processing while the handler runs, and land on
// done when it succeeds.
type pipelineStage struct {
	name       string
	start      queue.Status
	processing queue.Status
	done       queue.Status
	handler    stage.Handler
}

// ConfigureStages registers the pipeline handlers. All three stages are
// required; the manager refuses to start without them.
func (m *Manager) ConfigureStages(set StageSet) error {
	if set.Parser == nil {
		return fmt.Errorf("parser stage is required")
	}
	if set.Resolver == nil {
		return fmt.Errorf("resolver stage is required")
	}
	if set.Linker == nil {
		return fmt.Errorf("linker stage is required")
	}
	m.stages = []pipelineStage{
		{name: "parse", start: queue.StatusPending, processing: queue.StatusParsing, done: queue.StatusParsed, handler: set.Parser},
		{name: "resolve", start: queue.StatusParsed, processing: queue.StatusResolving, done: queue.StatusResolved, handler: set.Resolver},
		{name: "link", start: queue.StatusResolved, processing: queue.StatusLinking, done: queue.StatusCompleted, handler: set.Linker},
	}
	return nil
}

// SetCachePruner registers the cache the maintenance loop sweeps. A nil
// pruner disables the sweep.
func (m *Manager) SetCachePruner(pruner CachePruner) {
	m.pruner = pruner
}

// startStatuses lists the statuses a worker may claim from, in pipeline order.
func (m *Manager) startStatuses() []queue.Status {
	statuses := make([]queue.Status, 0, len(m.stages))
	for _, stg := range m.stages {
		statuses = append(statuses, stg.start)
	}
	return statuses
}

func (m *Manager) stageForStart(status queue.Status) (pipelineStage, bool) {
	for _, stg := range m.stages {
		if stg.start == status {
			return stg, true
		}
	}
	return pipelineStage{}, false
}

func (m *Manager) stageForProcessing(status queue.Status) (pipelineStage, bool) {
	for _, stg := range m.stages {
		if stg.processing == status {
			return stg, true
		}
	}
	return pipelineStage{}, false
}

func countOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func secondsOrDefault(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}
