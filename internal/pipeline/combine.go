package pipeline

import (
	"context"
	"log/slog"

	"dubber/internal/assemble"
	"dubber/internal/chunk"
	"dubber/internal/logging"
	"dubber/internal/stage"
	"dubber/internal/store"
)

// Combine concatenates the published chunk artifacts into the final dubbed
// file and seals the playlist.
type Combine struct {
	assembler *assemble.Assembler
	logger    *slog.Logger
}

// NewCombine constructs the chunk assembly stage handler.
func NewCombine(assembler *assemble.Assembler, logger *slog.Logger) *Combine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Combine{assembler: assembler, logger: logger}
}

func (c *Combine) Prepare(ctx context.Context, video *store.Video) error { return nil }

func (c *Combine) Execute(ctx context.Context, video *store.Video) error {
	windows, err := chunk.Plan(video.DurationSeconds, video.ChunkSeconds)
	if err != nil {
		return err
	}
	final, err := c.assembler.Combine(ctx, video, windows)
	if err != nil {
		return err
	}
	video.FinalFile = final
	if _, err := c.assembler.WriteManifest(video.ID, windows); err != nil {
		return err
	}
	video.SetProgress("combine", "dubbed video assembled", 100)
	return nil
}

func (c *Combine) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("combine")
}
