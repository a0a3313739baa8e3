package store

import (
	"context"
	"fmt"
	"time"

	"dubber/internal/services"
)

// UpdateHeartbeat records liveness for an in-flight video.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	now := formatTime(time.Now())
	return s.execWithoutResultRetry(ctx,
		"UPDATE videos SET last_heartbeat = ?, updated_at = ? WHERE id = ?",
		now, now, id,
	)
}

// MarkFailed records a stage-specific failure status along with the error
// message. The transition table still applies.
func (s *Store) MarkFailed(ctx context.Context, id int64, failed Status, message string) error {
	ctx = ensureContext(ctx)
	if !IsFailure(failed) {
		return services.Wrap(services.ErrValidation, "store", "mark failed",
			fmt.Sprintf("%s is not a failure status", failed), nil)
	}
	now := formatTime(time.Now())
	return s.execWithoutResultRetry(ctx, `
UPDATE videos SET status = ?, error_message = ?, progress_message = ?,
  progress_percent = 0, last_heartbeat = NULL, updated_at = ?
WHERE id = ?`,
		string(failed), message, message, now, id,
	)
}

// RetryFailed moves a failed video back to the stage-start status its
// failure maps to, clearing the recorded error.
func (s *Store) RetryFailed(ctx context.Context, id int64) (*Video, error) {
	ctx = ensureContext(ctx)
	video, err := s.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	target, ok := RetryTarget(video.Status)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "store", "retry",
			fmt.Sprintf("video %d status %s is not retryable", id, video.Status), nil)
	}
	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(ctx, `
UPDATE videos SET status = ?, error_message = '', progress_message = '',
  progress_percent = 0, last_heartbeat = NULL, updated_at = ?
WHERE id = ? AND status = ?`,
		string(target), now, id, string(video.Status),
	); err != nil {
		return nil, fmt.Errorf("retry video %d: %w", id, err)
	}
	return s.GetVideo(ctx, id)
}

// RetryAllFailed retries every video currently in a failure status and
// returns the ids it reset.
func (s *Store) RetryAllFailed(ctx context.Context) ([]int64, error) {
	ctx = ensureContext(ctx)
	var failedStatuses []Status
	for status := range retryTargets {
		failedStatuses = append(failedStatuses, status)
	}
	videos, err := s.ListVideos(ctx, failedStatuses...)
	if err != nil {
		return nil, err
	}
	var reset []int64
	for _, video := range videos {
		if _, err := s.RetryFailed(ctx, video.ID); err != nil {
			return reset, err
		}
		reset = append(reset, video.ID)
	}
	return reset, nil
}

// ReclaimStale rolls in-flight videos whose heartbeat is older than timeout
// back to their stage-start status so another worker can pick them up. It
// also drops expired stage locks. Expired chunk claims stay: ClaimChunk
// steals them in place, and the rows carry the per-chunk attempt counter.
func (s *Store) ReclaimStale(ctx context.Context, timeout time.Duration) (int, error) {
	ctx = ensureContext(ctx)
	cutoff := formatTime(time.Now().Add(-timeout))
	reclaimed := 0
	for processing, rollback := range processingRollbacks {
		res, err := s.execWithRetry(ctx, `
UPDATE videos SET status = ?, last_heartbeat = NULL, updated_at = ?
WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
			string(rollback), formatTime(time.Now()), string(processing), cutoff,
		)
		if err != nil {
			return reclaimed, fmt.Errorf("reclaim %s: %w", processing, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return reclaimed, fmt.Errorf("reclaim %s rows: %w", processing, err)
		}
		reclaimed += int(affected)
	}

	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(ctx, "DELETE FROM stage_locks WHERE expires_at < ?", now); err != nil {
		return reclaimed, fmt.Errorf("drop expired stage locks: %w", err)
	}
	return reclaimed, nil
}
