package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dubber/internal/services"
)

const videoColumns = `id, source_url, source_path, target_language, source_language,
mode, status, error_message, original_file, transcribe_audio_file, mix_audio_file,
mixed_track_file, final_file, duration_seconds, chunk_seconds, progress_stage,
progress_percent, progress_message, last_heartbeat, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*Video, error) {
	var (
		v             Video
		mode          string
		status        string
		lastHeartbeat sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(
		&v.ID, &v.SourceURL, &v.SourcePath, &v.TargetLanguage, &v.SourceLanguage,
		&mode, &status, &v.ErrorMessage, &v.OriginalFile, &v.TranscribeAudioFile,
		&v.MixAudioFile, &v.MixedTrackFile, &v.FinalFile, &v.DurationSeconds,
		&v.ChunkSeconds, &v.ProgressStage, &v.ProgressPercent, &v.ProgressMessage,
		&lastHeartbeat, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.Mode = Mode(mode)
	v.Status = Status(status)
	if lastHeartbeat.Valid && strings.TrimSpace(lastHeartbeat.String) != "" {
		hb, err := parseTime(lastHeartbeat.String)
		if err != nil {
			return nil, err
		}
		v.LastHeartbeat = &hb
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// NewVideo inserts a new dubbing job in the pending status.
func (s *Store) NewVideo(ctx context.Context, sourceURL, sourcePath, targetLanguage string, mode Mode) (*Video, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(sourceURL) == "" && strings.TrimSpace(sourcePath) == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "new video", "source url or path required", nil)
	}
	if strings.TrimSpace(targetLanguage) == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "new video", "target language required", nil)
	}
	if mode == "" {
		mode = ModeChunked
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx, `
INSERT INTO videos (source_url, source_path, target_language, mode, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(sourceURL), strings.TrimSpace(sourcePath),
		strings.TrimSpace(targetLanguage), string(mode), string(StatusPending), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert video: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("video insert id: %w", err)
	}
	return s.GetVideo(ctx, id)
}

// GetVideo fetches one video by id. Missing rows return ErrNotFound.
func (s *Store) GetVideo(ctx context.Context, id int64) (*Video, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM videos WHERE id = ?", videoColumns), id)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get video", fmt.Sprintf("video %d", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get video %d: %w", id, err)
	}
	return video, nil
}

// UpdateVideo writes back every mutable column and bumps updated_at.
func (s *Store) UpdateVideo(ctx context.Context, video *Video) error {
	ctx = ensureContext(ctx)
	if video == nil {
		return services.Wrap(services.ErrValidation, "store", "update video", "nil video", nil)
	}
	var heartbeat any
	if video.LastHeartbeat != nil {
		heartbeat = formatTime(*video.LastHeartbeat)
	}
	video.UpdatedAt = time.Now()
	res, err := s.execWithRetry(ctx, `
UPDATE videos SET
  source_url = ?, source_path = ?, target_language = ?, source_language = ?,
  mode = ?, status = ?, error_message = ?, original_file = ?,
  transcribe_audio_file = ?, mix_audio_file = ?, mixed_track_file = ?,
  final_file = ?, duration_seconds = ?, chunk_seconds = ?, progress_stage = ?,
  progress_percent = ?, progress_message = ?, last_heartbeat = ?, updated_at = ?
WHERE id = ?`,
		video.SourceURL, video.SourcePath, video.TargetLanguage, video.SourceLanguage,
		string(video.Mode), string(video.Status), video.ErrorMessage, video.OriginalFile,
		video.TranscribeAudioFile, video.MixAudioFile, video.MixedTrackFile,
		video.FinalFile, video.DurationSeconds, video.ChunkSeconds, video.ProgressStage,
		video.ProgressPercent, video.ProgressMessage, heartbeat, formatTime(video.UpdatedAt),
		video.ID,
	)
	if err != nil {
		return fmt.Errorf("update video %d: %w", video.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update video %d rows: %w", video.ID, err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "update video", fmt.Sprintf("video %d", video.ID), nil)
	}
	return nil
}

// TransitionStatus applies the transition table and performs the conditional
// update in one statement. The bool result reports whether this caller won
// the transition; losing is not an error, it means another worker got there
// first.
func (s *Store) TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	ctx = ensureContext(ctx)
	if !CanTransition(from, to) {
		return false, services.Wrap(services.ErrValidation, "store", "transition",
			fmt.Sprintf("transition %s -> %s not allowed", from, to), nil)
	}
	res, err := s.execWithRetry(ctx,
		"UPDATE videos SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), formatTime(time.Now()), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition video %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition video %d rows: %w", id, err)
	}
	return affected > 0, nil
}

// NextForStatuses returns the oldest video in any of the given statuses, or
// nil when nothing is waiting.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Video, error) {
	ctx = ensureContext(ctx)
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = string(status)
	}
	query := fmt.Sprintf(
		"SELECT %s FROM videos WHERE status IN (%s) ORDER BY created_at ASC, id ASC LIMIT 1",
		videoColumns, strings.Join(placeholders, ", "),
	)
	row := s.db.QueryRowContext(ctx, query, args...)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next video: %w", err)
	}
	return video, nil
}

// ListVideos returns videos filtered by status, or every video when no
// statuses are given, newest first.
func (s *Store) ListVideos(ctx context.Context, statuses ...Status) ([]*Video, error) {
	ctx = ensureContext(ctx)
	query := fmt.Sprintf("SELECT %s FROM videos", videoColumns)
	var args []any
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ", "))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// DeleteVideo removes the video row; speakers and segments cascade.
func (s *Store) DeleteVideo(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	if err := s.execWithoutResultRetry(ctx, "DELETE FROM chunk_claims WHERE video_id = ?", id); err != nil {
		return fmt.Errorf("delete chunk claims for video %d: %w", id, err)
	}
	if err := s.execWithoutResultRetry(ctx, "DELETE FROM stage_locks WHERE video_id = ?", id); err != nil {
		return fmt.Errorf("delete stage locks for video %d: %w", id, err)
	}
	if err := s.execWithoutResultRetry(ctx, "DELETE FROM videos WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete video %d: %w", id, err)
	}
	return nil
}

// Health returns aggregated counts for the status API.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM videos GROUP BY status")
	if err != nil {
		return HealthSummary{}, fmt.Errorf("health query: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var (
			raw   string
			count int
		)
		if err := rows.Scan(&raw, &count); err != nil {
			return HealthSummary{}, fmt.Errorf("scan health row: %w", err)
		}
		status := Status(raw)
		summary.Total += count
		switch {
		case status == StatusPending:
			summary.Pending += count
		case IsFailure(status):
			summary.Failed += count
		case IsTerminal(status):
			summary.Completed += count
		default:
			summary.Processing += count
		}
	}
	return summary, rows.Err()
}
