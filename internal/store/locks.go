package store

import (
	"context"
	"fmt"
	"time"
)

// AcquireStageLock takes the per-(video, stage) lock for ttl. A held,
// unexpired lock is not an error; the caller observes Busy through the false
// return and moves on. Expired locks are stolen in the same statement.
func (s *Store) AcquireStageLock(ctx context.Context, videoID int64, stage, holder string, ttl time.Duration) (bool, error) {
	ctx = ensureContext(ctx)
	now := time.Now()
	res, err := s.execWithRetry(ctx, `
INSERT INTO stage_locks (video_id, stage, holder, acquired_at, expires_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(video_id, stage) DO UPDATE SET
  holder = excluded.holder,
  acquired_at = excluded.acquired_at,
  expires_at = excluded.expires_at
WHERE stage_locks.expires_at < ? OR stage_locks.holder = excluded.holder`,
		videoID, stage, holder, formatTime(now), formatTime(now.Add(ttl)), formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("acquire stage lock video %d stage %s: %w", videoID, stage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire stage lock rows: %w", err)
	}
	return affected > 0, nil
}

// ReleaseStageLock drops the lock if the holder still owns it.
func (s *Store) ReleaseStageLock(ctx context.Context, videoID int64, stage, holder string) error {
	ctx = ensureContext(ctx)
	return s.execWithoutResultRetry(ctx,
		"DELETE FROM stage_locks WHERE video_id = ? AND stage = ? AND holder = ?",
		videoID, stage, holder,
	)
}

// ClaimChunk takes the per-(video, chunk) claim for ttl and increments the
// attempt counter. A held, unexpired claim returns false without error.
func (s *Store) ClaimChunk(ctx context.Context, videoID int64, chunkIndex int, holder string, ttl time.Duration) (bool, error) {
	ctx = ensureContext(ctx)
	now := time.Now()
	res, err := s.execWithRetry(ctx, `
INSERT INTO chunk_claims (video_id, chunk_index, holder, attempts, claimed_at, expires_at)
VALUES (?, ?, ?, 1, ?, ?)
ON CONFLICT(video_id, chunk_index) DO UPDATE SET
  holder = excluded.holder,
  attempts = chunk_claims.attempts + 1,
  claimed_at = excluded.claimed_at,
  expires_at = excluded.expires_at
WHERE chunk_claims.expires_at < ?`,
		videoID, chunkIndex, holder, formatTime(now), formatTime(now.Add(ttl)), formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("claim chunk video %d index %d: %w", videoID, chunkIndex, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim chunk rows: %w", err)
	}
	return affected > 0, nil
}

// ChunkAttempts reports how many times a chunk has been claimed.
func (s *Store) ChunkAttempts(ctx context.Context, videoID int64, chunkIndex int) (int, error) {
	ctx = ensureContext(ctx)
	var attempts int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(attempts), 0) FROM chunk_claims WHERE video_id = ? AND chunk_index = ?",
		videoID, chunkIndex,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("chunk attempts video %d index %d: %w", videoID, chunkIndex, err)
	}
	return attempts, nil
}

// ReleaseChunk expires the claim in place if the holder still owns it. The
// row survives so the attempt counter keeps accumulating across retries.
func (s *Store) ReleaseChunk(ctx context.Context, videoID int64, chunkIndex int, holder string) error {
	ctx = ensureContext(ctx)
	return s.execWithoutResultRetry(ctx,
		"UPDATE chunk_claims SET expires_at = ? WHERE video_id = ? AND chunk_index = ? AND holder = ?",
		formatTime(time.Now()), videoID, chunkIndex, holder,
	)
}
