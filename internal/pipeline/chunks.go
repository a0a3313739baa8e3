package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dubber/internal/chunk"
	"dubber/internal/logging"
	"dubber/internal/services"
	"dubber/internal/stage"
	"dubber/internal/store"
)

// chunkProcessor is the slice of chunk.Processor the fan-out needs.
type chunkProcessor interface {
	Done(video *store.Video, window chunk.Window) bool
	Process(ctx context.Context, video *store.Video, window chunk.Window) error
}

// manifestWriter is the slice of assemble.Assembler the fan-out needs.
type manifestWriter interface {
	WriteManifest(videoID int64, windows []chunk.Window) (int, error)
}

// readyChecker reports the transcription service's readiness.
type readyChecker interface {
	Health(ctx context.Context) error
}

// Chunks fans the chunk plan out over a bounded worker pool. Each chunk is
// claimed in the store before work starts, so concurrent daemons never dub
// the same window twice, and the playlist grows as artifacts publish.
type Chunks struct {
	store       *store.Store
	processor   chunkProcessor
	assembler   manifestWriter
	transcriber readyChecker
	parallelism int
	claimTTL    time.Duration
	maxAttempts int
	holder      string
	logger      *slog.Logger
}

// NewChunks constructs the chunk fan-out stage handler.
func NewChunks(st *store.Store, processor chunkProcessor, assembler manifestWriter, transcriber readyChecker, parallelism int, claimTTL time.Duration, maxAttempts int, holder string, logger *slog.Logger) *Chunks {
	if logger == nil {
		logger = logging.NewNop()
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Chunks{
		store:       st,
		processor:   processor,
		assembler:   assembler,
		transcriber: transcriber,
		parallelism: parallelism,
		claimTTL:    claimTTL,
		maxAttempts: maxAttempts,
		holder:      holder,
		logger:      logger,
	}
}

func (c *Chunks) Prepare(ctx context.Context, video *store.Video) error {
	if video.DurationSeconds <= 0 || video.ChunkSeconds <= 0 {
		return services.Wrap(services.ErrValidation, "chunks", "prepare",
			"video duration or chunk size not recorded", nil)
	}
	return nil
}

func (c *Chunks) Execute(ctx context.Context, video *store.Video) error {
	windows, err := chunk.Plan(video.DurationSeconds, video.ChunkSeconds)
	if err != nil {
		return err
	}
	log := logging.WithContext(ctx, c.logger)
	log.InfoContext(ctx, "dispatching chunks",
		logging.Int("chunks", len(windows)),
		logging.Int("parallelism", c.parallelism))

	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for _, w := range windows {
		w := w
		g.Go(func() error {
			if c.processor.Done(video, w) {
				c.noteChunkDone(gctx, video, windows, &mu, &completed)
				return nil
			}
			claimed, err := c.store.ClaimChunk(gctx, video.ID, w.Index, c.holder, c.claimTTL)
			if err != nil {
				return err
			}
			if !claimed {
				// Another worker holds a live claim; the post-pass below
				// catches chunks that never materialize.
				return nil
			}
			defer func() {
				if err := c.store.ReleaseChunk(context.WithoutCancel(gctx), video.ID, w.Index, c.holder); err != nil {
					log.WarnContext(gctx, "failed to release chunk claim",
						logging.Int("chunk_index", w.Index), logging.Error(err))
				}
			}()

			attempts, err := c.store.ChunkAttempts(gctx, video.ID, w.Index)
			if err != nil {
				return err
			}
			if attempts > c.maxAttempts {
				return services.Wrap(services.ErrExternalCall, "chunks", "claim",
					fmt.Sprintf("chunk %d exceeded %d attempts", w.Index, c.maxAttempts), nil)
			}

			if err := c.processor.Process(gctx, video, w); err != nil {
				return err
			}
			c.noteChunkDone(gctx, video, windows, &mu, &completed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, w := range windows {
		if !c.processor.Done(video, w) {
			return services.Wrap(services.ErrTransient, "chunks", "verify",
				fmt.Sprintf("chunk %d not yet published; another worker may hold its claim", w.Index), nil)
		}
	}
	if _, err := c.assembler.WriteManifest(video.ID, windows); err != nil {
		return err
	}
	return nil
}

// noteChunkDone advances progress and regrows the playlist after each
// published chunk. The playlist only ever covers the contiguous prefix, so
// out-of-order completions are safe.
func (c *Chunks) noteChunkDone(ctx context.Context, video *store.Video, windows []chunk.Window, mu *sync.Mutex, completed *int) {
	mu.Lock()
	defer mu.Unlock()
	*completed++

	if _, err := c.assembler.WriteManifest(video.ID, windows); err != nil {
		logging.WithContext(ctx, c.logger).WarnContext(ctx, "playlist update failed", logging.Error(err))
	}

	percent := float64(*completed) / float64(len(windows)) * 100
	now := time.Now().UTC()
	video.SetProgress("chunks", fmt.Sprintf("chunk %d/%d dubbed", *completed, len(windows)), percent)
	video.LastHeartbeat = &now
	if err := c.store.UpdateVideo(ctx, video); err != nil {
		logging.WithContext(ctx, c.logger).WarnContext(ctx, "progress update failed", logging.Error(err))
	}
}

func (c *Chunks) HealthCheck(ctx context.Context) stage.Health {
	if c.transcriber != nil {
		if err := c.transcriber.Health(ctx); err != nil {
			return stage.Unhealthy("chunks", "transcription service unreachable")
		}
	}
	return stage.Healthy("chunks")
}
