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

const speakerColumns = `id, video_id, diarization_key, gender, gender_confidence,
age_group, emotion, voice_id, rate, pitch, gain, cloned_voice_id,
cloned_sample_path, created_at, updated_at`

func scanSpeaker(row rowScanner) (*Speaker, error) {
	var (
		sp         Speaker
		confidence sql.NullFloat64
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(
		&sp.ID, &sp.VideoID, &sp.DiarizationKey, &sp.Gender, &confidence,
		&sp.AgeGroup, &sp.Emotion, &sp.VoiceID, &sp.Rate, &sp.Pitch, &sp.Gain,
		&sp.ClonedVoiceID, &sp.ClonedSamplePath, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if confidence.Valid {
		value := confidence.Float64
		sp.GenderConfidence = &value
	}
	if sp.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sp.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &sp, nil
}

// InsertSpeaker stores a new per-video speaker identity.
func (s *Store) InsertSpeaker(ctx context.Context, speaker *Speaker) error {
	ctx = ensureContext(ctx)
	if speaker == nil {
		return services.Wrap(services.ErrValidation, "store", "insert speaker", "nil speaker", nil)
	}
	if strings.TrimSpace(speaker.DiarizationKey) == "" {
		return services.Wrap(services.ErrValidation, "store", "insert speaker", "diarization key required", nil)
	}
	now := time.Now()
	speaker.CreatedAt = now
	speaker.UpdatedAt = now
	var confidence any
	if speaker.GenderConfidence != nil {
		confidence = *speaker.GenderConfidence
	}
	res, err := s.execWithRetry(ctx, `
INSERT INTO speakers (video_id, diarization_key, gender, gender_confidence,
  age_group, emotion, voice_id, rate, pitch, gain, cloned_voice_id,
  cloned_sample_path, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		speaker.VideoID, speaker.DiarizationKey, speaker.Gender, confidence,
		speaker.AgeGroup, speaker.Emotion, speaker.VoiceID, speaker.Rate,
		speaker.Pitch, speaker.Gain, speaker.ClonedVoiceID, speaker.ClonedSamplePath,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert speaker %q for video %d: %w", speaker.DiarizationKey, speaker.VideoID, err)
	}
	speaker.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("speaker insert id: %w", err)
	}
	return nil
}

// UpdateSpeaker writes back mutable speaker attributes.
func (s *Store) UpdateSpeaker(ctx context.Context, speaker *Speaker) error {
	ctx = ensureContext(ctx)
	if speaker == nil {
		return services.Wrap(services.ErrValidation, "store", "update speaker", "nil speaker", nil)
	}
	var confidence any
	if speaker.GenderConfidence != nil {
		confidence = *speaker.GenderConfidence
	}
	speaker.UpdatedAt = time.Now()
	res, err := s.execWithRetry(ctx, `
UPDATE speakers SET gender = ?, gender_confidence = ?, age_group = ?,
  emotion = ?, voice_id = ?, rate = ?, pitch = ?, gain = ?,
  cloned_voice_id = ?, cloned_sample_path = ?, updated_at = ?
WHERE id = ?`,
		speaker.Gender, confidence, speaker.AgeGroup, speaker.Emotion,
		speaker.VoiceID, speaker.Rate, speaker.Pitch, speaker.Gain,
		speaker.ClonedVoiceID, speaker.ClonedSamplePath, formatTime(speaker.UpdatedAt),
		speaker.ID,
	)
	if err != nil {
		return fmt.Errorf("update speaker %d: %w", speaker.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update speaker %d rows: %w", speaker.ID, err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "update speaker", fmt.Sprintf("speaker %d", speaker.ID), nil)
	}
	return nil
}

// SpeakerByKey fetches a speaker by its per-video diarization key. Missing
// speakers return ErrNotFound.
func (s *Store) SpeakerByKey(ctx context.Context, videoID int64, diarizationKey string) (*Speaker, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM speakers WHERE video_id = ? AND diarization_key = ?", speakerColumns),
		videoID, diarizationKey,
	)
	speaker, err := scanSpeaker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "speaker by key",
			fmt.Sprintf("speaker %q video %d", diarizationKey, videoID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("speaker %q video %d: %w", diarizationKey, videoID, err)
	}
	return speaker, nil
}

// GetSpeaker fetches one speaker by id.
func (s *Store) GetSpeaker(ctx context.Context, id int64) (*Speaker, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM speakers WHERE id = ?", speakerColumns), id)
	speaker, err := scanSpeaker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get speaker", fmt.Sprintf("speaker %d", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get speaker %d: %w", id, err)
	}
	return speaker, nil
}

// ListSpeakers returns every speaker for a video in creation order, which is
// the order round-robin voice assignment depends on.
func (s *Store) ListSpeakers(ctx context.Context, videoID int64) ([]*Speaker, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM speakers WHERE video_id = ? ORDER BY id ASC", speakerColumns),
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("list speakers for video %d: %w", videoID, err)
	}
	defer rows.Close()

	var speakers []*Speaker
	for rows.Next() {
		speaker, err := scanSpeaker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan speaker: %w", err)
		}
		speakers = append(speakers, speaker)
	}
	return speakers, rows.Err()
}
