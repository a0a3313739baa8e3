package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dubber/internal/logging"
	"dubber/internal/store"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.watch) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	logger := m.logger
	if logger == nil {
		logger = logging.NewNop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.Reclaim(ctx, logger); err != nil {
			logger.Warn("reclaim stale videos failed; stuck videos may remain",
				logging.Error(err))
		}

		video, err := m.nextVideo(ctx)
		if err != nil {
			m.handleNextVideoError(ctx, logger, err)
			continue
		}
		if video == nil {
			m.waitForVideoOrShutdown(ctx)
			continue
		}

		if err := m.processVideo(ctx, logger, video); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) nextVideo(ctx context.Context) (*store.Video, error) {
	m.mu.RLock()
	watch := m.watch
	m.mu.RUnlock()
	if len(watch) == 0 {
		return nil, nil
	}
	return m.store.NextForStatuses(ctx, watch...)
}

func (m *Manager) handleNextVideoError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to fetch next video", logging.Error(err))
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.errorRetry):
	}
}

func (m *Manager) waitForVideoOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.pollInterval):
	}
}
