package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dubber/internal/services"
)

const segmentColumns = `id, video_id, speaker_id, chunk_index, start_time, end_time,
source_text, translated_text, emotion, synthesized_path, fitted_path,
created_at, updated_at`

func scanSegment(row rowScanner) (*Segment, error) {
	var (
		seg       Segment
		speakerID sql.NullInt64
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&seg.ID, &seg.VideoID, &speakerID, &seg.ChunkIndex, &seg.StartTime,
		&seg.EndTime, &seg.SourceText, &seg.TranslatedText, &seg.Emotion,
		&seg.SynthesizedPath, &seg.FittedPath, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if speakerID.Valid {
		seg.SpeakerID = speakerID.Int64
	}
	if seg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if seg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &seg, nil
}

// ReplaceChunkSegments atomically replaces every segment recorded for one
// chunk of a video. Re-running a chunk therefore never duplicates rows.
func (s *Store) ReplaceChunkSegments(ctx context.Context, videoID int64, chunkIndex int, segments []*Segment) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin segments tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM segments WHERE video_id = ? AND chunk_index = ?",
			videoID, chunkIndex,
		); err != nil {
			return fmt.Errorf("clear segments video %d chunk %d: %w", videoID, chunkIndex, err)
		}

		now := formatTime(time.Now())
		for _, seg := range segments {
			if seg.EndTime <= seg.StartTime {
				return services.Wrap(services.ErrValidation, "store", "replace segments",
					fmt.Sprintf("segment window [%0.3f, %0.3f] is empty", seg.StartTime, seg.EndTime), nil)
			}
			var speakerID any
			if seg.SpeakerID != 0 {
				speakerID = seg.SpeakerID
			}
			res, err := tx.ExecContext(ctx, `
INSERT INTO segments (video_id, speaker_id, chunk_index, start_time, end_time,
  source_text, translated_text, emotion, synthesized_path, fitted_path,
  created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				videoID, speakerID, chunkIndex, seg.StartTime, seg.EndTime,
				seg.SourceText, seg.TranslatedText, seg.Emotion,
				seg.SynthesizedPath, seg.FittedPath, now, now,
			)
			if err != nil {
				return fmt.Errorf("insert segment video %d chunk %d: %w", videoID, chunkIndex, err)
			}
			if seg.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("segment insert id: %w", err)
			}
			seg.VideoID = videoID
			seg.ChunkIndex = chunkIndex
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit segments video %d chunk %d: %w", videoID, chunkIndex, err)
		}
		return nil
	})
}

// UpdateSegmentTranslation records the translated text for one segment.
func (s *Store) UpdateSegmentTranslation(ctx context.Context, segmentID int64, translated string) error {
	ctx = ensureContext(ctx)
	return s.execWithoutResultRetry(ctx,
		"UPDATE segments SET translated_text = ?, updated_at = ? WHERE id = ?",
		translated, formatTime(time.Now()), segmentID,
	)
}

// UpdateSegmentSynthesis records the synthesized and fitted clip locations.
func (s *Store) UpdateSegmentSynthesis(ctx context.Context, segmentID int64, synthesizedPath, fittedPath string) error {
	ctx = ensureContext(ctx)
	return s.execWithoutResultRetry(ctx,
		"UPDATE segments SET synthesized_path = ?, fitted_path = ?, updated_at = ? WHERE id = ?",
		synthesizedPath, fittedPath, formatTime(time.Now()), segmentID,
	)
}

// ListSegments returns every segment for a video ordered by start time.
func (s *Store) ListSegments(ctx context.Context, videoID int64) ([]*Segment, error) {
	ctx = ensureContext(ctx)
	return s.querySegments(ctx,
		fmt.Sprintf("SELECT %s FROM segments WHERE video_id = ? ORDER BY start_time ASC, id ASC", segmentColumns),
		videoID,
	)
}

// ListChunkSegments returns one chunk's segments ordered by start time.
func (s *Store) ListChunkSegments(ctx context.Context, videoID int64, chunkIndex int) ([]*Segment, error) {
	ctx = ensureContext(ctx)
	return s.querySegments(ctx,
		fmt.Sprintf("SELECT %s FROM segments WHERE video_id = ? AND chunk_index = ? ORDER BY start_time ASC, id ASC", segmentColumns),
		videoID, chunkIndex,
	)
}

func (s *Store) querySegments(ctx context.Context, query string, args ...any) ([]*Segment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// GetSegment fetches one segment by id.
func (s *Store) GetSegment(ctx context.Context, id int64) (*Segment, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM segments WHERE id = ?", segmentColumns), id)
	seg, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get segment", fmt.Sprintf("segment %d", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get segment %d: %w", id, err)
	}
	return seg, nil
}
