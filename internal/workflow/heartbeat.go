package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dubber/internal/logging"
	"dubber/internal/store"
)

// HeartbeatMonitor manages video heartbeats and stale video reclamation.
type HeartbeatMonitor struct {
	store             *store.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(st *store.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HeartbeatMonitor{
		store:             st,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// Reclaim rolls videos whose heartbeats expired back to their stage-start
// status and drops expired stage locks and chunk claims.
func (h *HeartbeatMonitor) Reclaim(ctx context.Context, logger *slog.Logger) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	reclaimed, err := h.store.ReclaimStale(ctx, h.heartbeatTimeout)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale videos", logging.Int("count", reclaimed))
	}
	return nil
}

// StartLoop runs a heartbeat updater for a specific video until context
// cancellation.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, videoID int64) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := h.logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithContext(ctx, logger.With(logging.String("component", "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, videoID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
