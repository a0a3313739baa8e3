package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	"dubber/internal/lipsync"
	"dubber/internal/logging"
	"dubber/internal/services"
	"dubber/internal/stage"
	"dubber/internal/storage"
	"dubber/internal/store"
)

// Finalize runs the optional lipsync pass over the assembled dubbed video.
// When lipsync is disabled the stage is a pass-through and the video
// completes with the dubbed file as-is.
type Finalize struct {
	client  *lipsync.Client
	paths   storage.Paths
	enabled bool
	logger  *slog.Logger
}

// NewFinalize constructs the finalization stage handler. client may be nil
// when lipsync is disabled.
func NewFinalize(client *lipsync.Client, paths storage.Paths, enabled bool, logger *slog.Logger) *Finalize {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Finalize{client: client, paths: paths, enabled: enabled, logger: logger}
}

func (f *Finalize) Prepare(ctx context.Context, video *store.Video) error {
	if f.enabled && video.FinalFile == "" {
		return services.Wrap(services.ErrValidation, "finalize", "prepare", "video has no dubbed file", nil)
	}
	return nil
}

func (f *Finalize) Execute(ctx context.Context, video *store.Video) error {
	if !f.enabled || f.client == nil {
		return nil
	}

	videoRel, err := f.paths.Rel(video.FinalFile)
	if err != nil {
		return err
	}
	audioRel := ""
	if video.MixedTrackFile != "" {
		if audioRel, err = f.paths.Rel(video.MixedTrackFile); err != nil {
			return err
		}
	}
	output := filepath.Join(f.paths.VideoDir(video.ID), "dubbed_lipsync.mp4")
	outputRel, err := f.paths.Rel(output)
	if err != nil {
		return err
	}

	produced, err := f.client.Process(ctx, video.ID, videoRel, audioRel, outputRel)
	if err != nil {
		return err
	}
	video.FinalFile = filepath.Join(f.paths.Root(), filepath.FromSlash(produced))
	video.SetProgress("finalize", "lipsync complete", 100)
	logging.WithContext(ctx, f.logger).InfoContext(ctx, "lipsync pass finished",
		logging.String("final_file", video.FinalFile))
	return nil
}

func (f *Finalize) HealthCheck(ctx context.Context) stage.Health {
	if !f.enabled || f.client == nil {
		return stage.Healthy("finalize")
	}
	if err := f.client.Health(ctx); err != nil {
		return stage.Unhealthy("finalize", "lipsync service unreachable")
	}
	return stage.Healthy("finalize")
}
