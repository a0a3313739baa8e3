package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dubber/internal/chunk"
	"dubber/internal/download"
	"dubber/internal/logging"
	"dubber/internal/media/ffprobe"
	"dubber/internal/services"
	"dubber/internal/stage"
	"dubber/internal/storage"
	"dubber/internal/store"
)

// Download fetches the source file and records its duration and chunk size.
type Download struct {
	downloader    *download.Downloader
	policy        chunk.SizePolicy
	probeDuration func(ctx context.Context, path string) (float64, error)
	logger        *slog.Logger
}

// NewDownload constructs the download stage handler.
func NewDownload(paths storage.Paths, timeout time.Duration, ffprobeBin string, policy chunk.SizePolicy, logger *slog.Logger) *Download {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Download{
		downloader: download.New(paths, timeout, logger),
		policy:     policy,
		probeDuration: func(ctx context.Context, path string) (float64, error) {
			result, err := ffprobe.Inspect(ctx, ffprobeBin, path)
			if err != nil {
				return 0, err
			}
			return result.DurationSeconds(), nil
		},
		logger: logger,
	}
}

func (d *Download) Prepare(ctx context.Context, video *store.Video) error {
	if video.SourceURL == "" && video.SourcePath == "" {
		return services.Wrap(services.ErrValidation, "download", "prepare", "video has no source", nil)
	}
	return nil
}

func (d *Download) Execute(ctx context.Context, video *store.Video) error {
	original, err := d.downloader.Fetch(ctx, video)
	if err != nil {
		return err
	}
	video.OriginalFile = original

	duration, err := d.probeDuration(ctx, original)
	if err != nil {
		return err
	}
	if duration <= 0 {
		return services.Wrap(services.ErrValidation, "download", "probe",
			"source has no measurable duration", nil)
	}
	video.DurationSeconds = duration
	if video.ChunkSeconds <= 0 {
		video.ChunkSeconds = d.policy.ChunkSeconds(duration)
	}
	video.SetProgress("download", fmt.Sprintf("source ready (%.0fs)", duration), 100)
	return nil
}

func (d *Download) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("download")
}
