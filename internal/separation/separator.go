package separation

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"dubber/internal/fileutil"
	"dubber/internal/logging"
	"dubber/internal/media/ffmpeg"
	"dubber/internal/storage"
)

// minStemBytes guards against the service acknowledging success while
// writing an empty file.
const minStemBytes = 1024

// Separator prepares the background bed for a video, caching whole-video
// stems so chunk workers only pay for separation once.
type Separator struct {
	client         *Client
	runner         *ffmpeg.Runner
	paths          storage.Paths
	enabled        bool
	fallbackVolume float64
	logger         *slog.Logger
}

// NewSeparator wires the separation client behind the caching and fallback
// policy. A nil client (or enabled=false) forces the degraded path.
func NewSeparator(client *Client, runner *ffmpeg.Runner, paths storage.Paths, enabled bool, fallbackVolume float64, logger *slog.Logger) *Separator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if fallbackVolume <= 0 || fallbackVolume > 1 {
		fallbackVolume = 0.3
	}
	return &Separator{
		client:         client,
		runner:         runner,
		paths:          paths,
		enabled:        enabled && client != nil,
		fallbackVolume: fallbackVolume,
		logger:         logger,
	}
}

// EnsureStems separates the whole-video mix rendition once. Existing stems
// are reused. A service failure is reported but not fatal; callers fall
// back through BedWindow.
func (s *Separator) EnsureStems(ctx context.Context, videoID int64) error {
	if !s.enabled {
		return nil
	}
	bed := s.paths.BedStem(videoID)
	if fileutil.ExistsNonTrivial(bed, minStemBytes) {
		return nil
	}
	if err := os.MkdirAll(s.paths.StemsDir(videoID), 0o755); err != nil {
		return err
	}
	inputRel, err := s.paths.Rel(s.paths.MixAudio(videoID))
	if err != nil {
		return err
	}
	stems, err := s.client.Separate(ctx, videoID, inputRel)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "separated stems",
		logging.String("no_vocals", stems.NoVocalsRel),
		logging.String("vocals", stems.VocalsRel))
	return nil
}

// HasStems reports whether usable whole-video stems exist.
func (s *Separator) HasStems(videoID int64) bool {
	return fileutil.ExistsNonTrivial(s.paths.BedStem(videoID), minStemBytes)
}

// BedWindow writes the background bed for [start, start+duration) to
// output. It prefers the cached no-vocals stem; when absent it degrades to
// a volume-reduced window of the original mix. The bool result reports
// whether the degraded path was taken.
func (s *Separator) BedWindow(ctx context.Context, videoID int64, start, duration float64, output string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return false, err
	}
	if s.HasStems(videoID) {
		return false, s.runner.ExtractWindow(ctx, s.paths.BedStem(videoID), start, duration, output)
	}

	raw := output + ".raw.wav"
	if err := s.runner.ExtractWindow(ctx, s.paths.MixAudio(videoID), start, duration, raw); err != nil {
		return true, err
	}
	defer os.Remove(raw)
	if err := s.runner.ReduceVolume(ctx, raw, s.fallbackVolume, output); err != nil {
		return true, err
	}
	s.logger.WarnContext(ctx, "separation unavailable, using reduced-volume bed",
		logging.Int64("video_id", videoID))
	return true, nil
}

// VocalWindow writes the isolated vocal window used as a cloning sample.
// It requires real stems; there is no degraded equivalent clean enough for
// cloning.
func (s *Separator) VocalWindow(ctx context.Context, videoID int64, start, duration float64, output string) (bool, error) {
	vocals := s.paths.VocalStem(videoID)
	if !fileutil.ExistsNonTrivial(vocals, minStemBytes) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return false, err
	}
	if err := s.runner.ExtractWindow(ctx, vocals, start, duration, output); err != nil {
		return false, err
	}
	return true, nil
}
