package pipeline

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"dubber/internal/logging"
	"dubber/internal/media/ffmpeg"
	"dubber/internal/separation"
	"dubber/internal/services"
	"dubber/internal/stage"
	"dubber/internal/storage"
	"dubber/internal/store"
)

// Extract renders the two audio derivatives every later stage consumes and
// kicks off whole-video source separation.
type Extract struct {
	paths     storage.Paths
	runner    *ffmpeg.Runner
	ffmpegBin string
	separator *separation.Separator
	logger    *slog.Logger
}

// NewExtract constructs the audio extraction stage handler.
func NewExtract(paths storage.Paths, runner *ffmpeg.Runner, ffmpegBin string, separator *separation.Separator, logger *slog.Logger) *Extract {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extract{paths: paths, runner: runner, ffmpegBin: ffmpegBin, separator: separator, logger: logger}
}

func (e *Extract) Prepare(ctx context.Context, video *store.Video) error {
	if video.OriginalFile == "" {
		return services.Wrap(services.ErrValidation, "extract", "prepare", "video has no downloaded source", nil)
	}
	if _, err := os.Stat(video.OriginalFile); err != nil {
		return services.Wrap(services.ErrValidation, "extract", "prepare", "downloaded source is missing", err)
	}
	return nil
}

func (e *Extract) Execute(ctx context.Context, video *store.Video) error {
	transcribe := e.paths.TranscribeAudio(video.ID)
	if err := os.MkdirAll(filepath.Dir(transcribe), 0o755); err != nil {
		return err
	}
	if err := e.runner.ExtractMonoAudio(ctx, video.OriginalFile, transcribe); err != nil {
		return err
	}
	video.TranscribeAudioFile = transcribe

	mixAudio := e.paths.MixAudio(video.ID)
	if err := e.runner.ExtractStereoAudio(ctx, video.OriginalFile, mixAudio); err != nil {
		return err
	}
	video.MixAudioFile = mixAudio

	// Separation failures degrade to the volume-reduced original bed, so
	// they never fail the stage.
	if err := e.separator.EnsureStems(ctx, video.ID); err != nil {
		log := logging.WithContext(ctx, e.logger)
		log.WarnContext(ctx, "source separation unavailable, mixing will duck the original track",
			logging.Error(err))
	}

	video.SetProgress("extract", "audio tracks extracted", 100)
	return nil
}

func (e *Extract) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(e.ffmpegBin); err != nil {
		return stage.Unhealthy("extract", "ffmpeg not found in PATH")
	}
	return stage.Healthy("extract")
}
