package workflow

import (
	"context"

	"dubber/internal/logging"
	"dubber/internal/stage"
	"dubber/internal/store"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastVideo   *store.Video
	Queue       store.HealthSummary
	StageHealth map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastVideo := m.lastVideo
	stages := make(map[string]stage.Handler)
	for _, table := range m.tables {
		for _, stg := range table.stages {
			if stg.handler != nil {
				stages[stg.name] = stg.handler
			}
		}
	}
	m.mu.RUnlock()

	summary := StatusSummary{Running: running}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastVideo != nil {
		copy := *lastVideo
		summary.LastVideo = &copy
	}

	queue, err := m.store.Health(ctx)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("failed to read queue health", logging.Error(err))
		}
	} else {
		summary.Queue = queue
	}

	summary.StageHealth = make(map[string]stage.Health, len(stages))
	for name, handler := range stages {
		summary.StageHealth[name] = handler.HealthCheck(ctx)
	}
	return summary
}
