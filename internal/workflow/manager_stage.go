package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dubber/internal/logging"
	"dubber/internal/services"
	"dubber/internal/store"
)

func (m *Manager) processVideo(ctx context.Context, logger *slog.Logger, video *store.Video) error {
	m.mu.RLock()
	table := m.tables[video.Mode]
	m.mu.RUnlock()
	if table == nil {
		logger.Warn("no stage table for processing mode",
			logging.Int64("video_id", video.ID),
			logging.String("mode", string(video.Mode)))
		m.waitForVideoOrShutdown(ctx)
		return nil
	}

	stg, ok := table.stageForStatus(video.Status)
	if !ok {
		logger.Warn("no stage configured for status",
			logging.Int64("video_id", video.ID),
			logging.String("status", string(video.Status)))
		m.waitForVideoOrShutdown(ctx)
		return nil
	}

	stageCtx := services.WithRequestID(ctx, uuid.NewString())
	stageCtx = services.WithVideoID(stageCtx, video.ID)
	stageCtx = services.WithStage(stageCtx, stg.name)
	stageLogger := logging.WithContext(stageCtx, logger)

	// The stage lock fences concurrent daemons; the conditional transition
	// below fences racing loops within one daemon. Losing either is normal.
	locked, err := m.store.AcquireStageLock(stageCtx, video.ID, stg.name, m.holder, m.lockTTL)
	if err != nil {
		m.setLastError(err)
		stageLogger.Error("failed to acquire stage lock", logging.Error(err))
		return err
	}
	if !locked {
		stageLogger.Debug("stage lock held elsewhere")
		m.waitForVideoOrShutdown(ctx)
		return nil
	}
	defer func() {
		if err := m.store.ReleaseStageLock(context.WithoutCancel(stageCtx), video.ID, stg.name, m.holder); err != nil {
			stageLogger.Warn("failed to release stage lock", logging.Error(err))
		}
	}()

	won, err := m.store.TransitionStatus(stageCtx, video.ID, stg.startStatus, stg.processingStatus)
	if err != nil {
		m.setLastError(err)
		stageLogger.Error("failed to transition video to processing", logging.Error(err))
		return err
	}
	if !won {
		stageLogger.Debug("video claimed by another worker")
		m.waitForVideoOrShutdown(ctx)
		return nil
	}

	video, err = m.store.GetVideo(stageCtx, video.ID)
	if err != nil {
		m.setLastError(err)
		stageLogger.Error("failed to reload claimed video", logging.Error(err))
		return err
	}

	now := time.Now().UTC()
	video.SetProgress(stg.name, fmt.Sprintf("%s started", stg.name), 0)
	video.ErrorMessage = ""
	video.LastHeartbeat = &now
	if err := m.store.UpdateVideo(stageCtx, video); err != nil {
		m.setLastError(err)
		stageLogger.Error("failed to persist processing transition", logging.Error(err))
		return err
	}
	m.setLastVideo(video)

	return m.executeStage(stageCtx, stageLogger, stg, video)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, video *store.Video) error {
	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String("source", sourceLabel(video)))

	if err := stg.handler.Prepare(ctx, video); err != nil {
		m.handleStageFailure(ctx, stageLogger, stg, video, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.UpdateVideo(ctx, video); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, stg, video)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		// Transient failures (a sibling worker still holds a chunk, a
		// flaky service call) roll the video back to the stage start so
		// the loop re-dispatches it after a backoff. Only a spent retry
		// budget or a non-retryable error parks the video.
		if services.IsRetryable(execErr) && m.deferStageRetry(ctx, stageLogger, stg, video, execErr) {
			m.setLastError(execErr)
			return execErr
		}
		m.clearStageRetries(video.ID, stg.name)
		m.handleStageFailure(ctx, stageLogger, stg, video, execErr)
		m.setLastError(execErr)
		return execErr
	}
	m.clearStageRetries(video.ID, stg.name)

	video.Status = stg.doneStatus
	video.LastHeartbeat = nil
	if video.Status == store.StatusCompleted {
		video.SetProgress("completed", "Dubbing complete", 100)
	}
	if err := m.store.UpdateVideo(ctx, video); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	stageLogger.Info("stage completed",
		logging.String("next_status", string(video.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)))
	m.setLastVideo(video)

	if video.Status == store.StatusCompleted && m.notifier != nil {
		if err := m.notifier.NotifyDubbingCompleted(ctx, sourceLabel(video), video.FinalFile); err != nil {
			stageLogger.Warn("completion notification failed", logging.Error(err))
		}
	}
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, stg pipelineStage, video *store.Video) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.heartbeat.StartLoop(hbCtx, video.ID)
	}()

	execErr := stg.handler.Execute(ctx, video)
	hbCancel()
	<-done
	return execErr
}

// deferStageRetry rolls a transiently failed video back to the stage's
// start status so the poll loop re-dispatches it, then waits out an
// exponential backoff. It reports false once the retry budget is spent or
// the rollback loses to a competing transition.
func (m *Manager) deferStageRetry(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, video *store.Video, stageErr error) bool {
	key := fmt.Sprintf("%d/%s", video.ID, stg.name)
	m.mu.Lock()
	attempt := m.retries[key] + 1
	if attempt > m.retryLimit {
		m.mu.Unlock()
		return false
	}
	m.retries[key] = attempt
	m.mu.Unlock()

	backoff := m.retryBackoff * time.Duration(1<<(attempt-1))
	if backoff > time.Minute {
		backoff = time.Minute
	}
	stageLogger.Warn("stage failed with retryable error, backing off",
		logging.Int("attempt", attempt),
		logging.Duration("backoff", backoff),
		logging.Error(stageErr))

	rolled, err := m.store.TransitionStatus(context.WithoutCancel(ctx), video.ID, stg.processingStatus, stg.startStatus)
	if err != nil {
		stageLogger.Error("failed to roll video back for retry", logging.Error(err))
		return false
	}
	if !rolled {
		return false
	}
	video.Status = stg.startStatus
	m.setLastVideo(video)

	if backoff > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
	}
	return true
}

func (m *Manager) clearStageRetries(videoID int64, stage string) {
	m.mu.Lock()
	delete(m.retries, fmt.Sprintf("%d/%s", videoID, stage))
	m.mu.Unlock()
}

func (m *Manager) handleStageFailure(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, video *store.Video, stageErr error) {
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = fmt.Sprintf("%s failed", stg.name)
	}

	stageLogger.Error("stage failed",
		logging.String("failure_status", string(stg.failureStatus)),
		logging.Error(stageErr))

	// Persist the failure even when the surrounding context is already gone.
	persistCtx := context.WithoutCancel(ctx)
	if err := m.store.MarkFailed(persistCtx, video.ID, stg.failureStatus, message); err != nil {
		stageLogger.Error("failed to persist stage failure", logging.Error(err))
	}

	video.SetFailed(stg.failureStatus, message)
	m.setLastVideo(video)

	if m.notifier != nil {
		if err := m.notifier.NotifyError(persistCtx, stageErr, stg.name); err != nil {
			stageLogger.Warn("error notification failed", logging.Error(err))
		}
	}
}

func sourceLabel(video *store.Video) string {
	if trimmed := strings.TrimSpace(video.SourceURL); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(video.SourcePath)
}
