package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dubber/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestVideo(t *testing.T, s *store.Store) *store.Video {
	t.Helper()
	video, err := s.NewVideo(context.Background(), "https://example.com/v.mp4", "", "es", store.ModeChunked)
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	return video
}

func TestNewVideoStartsPending(t *testing.T) {
	s := newTestStore(t)
	video := newTestVideo(t, s)
	if video.Status != store.StatusPending {
		t.Fatalf("expected pending, got %s", video.Status)
	}
	if video.Mode != store.ModeChunked {
		t.Fatalf("expected chunked mode, got %s", video.Mode)
	}
}

func TestTransitionStatusConditional(t *testing.T) {
	s := newTestStore(t)
	video := newTestVideo(t, s)
	ctx := context.Background()

	won, err := s.TransitionStatus(ctx, video.ID, store.StatusPending, store.StatusDownloading)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !won {
		t.Fatal("expected to win the first transition")
	}

	// A second worker racing on the same transition must lose quietly.
	won, err = s.TransitionStatus(ctx, video.ID, store.StatusPending, store.StatusDownloading)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if won {
		t.Fatal("expected the second transition attempt to lose")
	}

	if _, err := s.TransitionStatus(ctx, video.ID, store.StatusDownloading, store.StatusMuxing); err == nil {
		t.Fatal("expected transition table violation to error")
	}
}

func TestRetryFailedMapsToStageStart(t *testing.T) {
	s := newTestStore(t)
	video := newTestVideo(t, s)
	ctx := context.Background()

	if _, err := s.TransitionStatus(ctx, video.ID, store.StatusPending, store.StatusDownloading); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkFailed(ctx, video.ID, store.StatusDownloadFailed, "connection reset"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	retried, err := s.RetryFailed(ctx, video.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != store.StatusPending {
		t.Fatalf("expected pending after retry, got %s", retried.Status)
	}
	if retried.ErrorMessage != "" {
		t.Fatalf("expected cleared error, got %q", retried.ErrorMessage)
	}
}

func TestRetryTargetsCoverEveryFailureStatus(t *testing.T) {
	failures := []store.Status{
		store.StatusDownloadFailed, store.StatusExtractFailed, store.StatusChunksFailed,
		store.StatusCombineFailed, store.StatusTranscriptionFailed, store.StatusTranslationFailed,
		store.StatusTTSFailed, store.StatusMixFailed, store.StatusMuxFailed, store.StatusLipsyncFailed,
	}
	for _, failed := range failures {
		target, ok := store.RetryTarget(failed)
		if !ok {
			t.Fatalf("no retry target for %s", failed)
		}
		if store.IsFailure(target) || store.IsProcessing(target) {
			t.Fatalf("retry target for %s is not a stage start: %s", failed, target)
		}
	}
}

func TestStageLockBusyAndExpiry(t *testing.T) {
	s := newTestStore(t)
	video := newTestVideo(t, s)
	ctx := context.Background()

	got, err := s.AcquireStageLock(ctx, video.ID, "mix", "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !got {
		t.Fatal("expected first acquisition to succeed")
	}

	got, err = s.AcquireStageLock(ctx, video.ID, "mix", "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got {
		t.Fatal("expected held lock to report busy")
	}

	// Same holder renews its own lock.
	got, err = s.AcquireStageLock(ctx, video.ID, "mix", "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !got {
		t.Fatal("expected holder to renew its lock")
	}

	if err := s.ReleaseStageLock(ctx, video.ID, "mix", "worker-a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, err = s.AcquireStageLock(ctx, video.ID, "mix", "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if !got {
		t.Fatal("expected released lock to be acquirable")
	}
}

func TestStageLockStealsExpired(t *testing.T) {
	s := newTestStore(t)
	video := newTestVideo(t, s)
	ctx := context.Background()

	if _, err := s.AcquireStageLock(ctx, video.ID, "mux", "worker-a", -time.Second); err != nil {
		t.Fatal(err)
	}
	got, err := s.AcquireStageLock(ctx, video.ID, "mux", "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("steal: %v", err)
	}
	if !got {
		t.Fatal("expected expired lock to be stolen")
	}
}

func TestChunkClaims(t *testing.T) {
	s := newTestStore(t)
	video := newTestVideo(t, s)
	ctx := context.Background()

	got, err := s.ClaimChunk(ctx, video.ID, 2, "worker-a", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !got {
		t.Fatal("expected first claim to succeed")
	}

	got, err = s.ClaimChunk(ctx, video.ID, 2, "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got {
		t.Fatal("expected held claim to report busy")
	}

	attempts, err := s.ChunkAttempts(ctx, video.ID, 2)
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}

	if err := s.ReleaseChunk(ctx, video.ID, 2, "worker-a"); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Attempts accumulate across release and re-claim.
	got, err = s.ClaimChunk(ctx, video.ID, 2, "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if !got {
		t.Fatal("expected released claim to be stealable")
	}
	attempts, err = s.ChunkAttempts(ctx, video.ID, 2)
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestReplaceChunkSegmentsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	video := newTestVideo(t, s)
	ctx := context.Background()

	speaker := &store.Speaker{VideoID: video.ID, DiarizationKey: "SPEAKER_00", Gender: "female", AgeGroup: "adult", Emotion: "neutral", Rate: 1.0}
	if err := s.InsertSpeaker(ctx, speaker); err != nil {
		t.Fatalf("insert speaker: %v", err)
	}

	segments := []*store.Segment{
		{SpeakerID: speaker.ID, StartTime: 0.5, EndTime: 2.0, SourceText: "hola"},
		{SpeakerID: speaker.ID, StartTime: 2.5, EndTime: 4.0, SourceText: "adios"},
	}
	for range 2 {
		if err := s.ReplaceChunkSegments(ctx, video.ID, 0, segments); err != nil {
			t.Fatalf("replace segments: %v", err)
		}
	}

	stored, err := s.ListChunkSegments(ctx, video.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 segments after re-run, got %d", len(stored))
	}
	if stored[0].SourceText != "hola" {
		t.Fatalf("expected start-time ordering, got %q first", stored[0].SourceText)
	}
}

func TestNextForStatusesReturnsOldest(t *testing.T) {
	s := newTestStore(t)
	first := newTestVideo(t, s)
	newTestVideo(t, s)

	next, err := s.NextForStatuses(context.Background(), store.StatusPending)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest pending video %d, got %+v", first.ID, next)
	}

	none, err := s.NextForStatuses(context.Background(), store.StatusMixing)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for empty status, got %+v", none)
	}
}

func TestReclaimStaleRollsBackInFlight(t *testing.T) {
	s := newTestStore(t)
	video := newTestVideo(t, s)
	ctx := context.Background()

	if _, err := s.TransitionStatus(ctx, video.ID, store.StatusPending, store.StatusDownloading); err != nil {
		t.Fatal(err)
	}
	// No heartbeat was ever written, so the item counts as stale.
	reclaimed, err := s.ReclaimStale(ctx, time.Millisecond)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed video, got %d", reclaimed)
	}

	got, err := s.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusPending {
		t.Fatalf("expected rollback to pending, got %s", got.Status)
	}
}

func TestHealthSummary(t *testing.T) {
	s := newTestStore(t)
	video := newTestVideo(t, s)
	newTestVideo(t, s)
	ctx := context.Background()

	if _, err := s.TransitionStatus(ctx, video.ID, store.StatusPending, store.StatusDownloading); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkFailed(ctx, video.ID, store.StatusDownloadFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	summary, err := s.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if summary.Total != 2 || summary.Pending != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}
