package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"dubber/internal/fileutil"
	"dubber/internal/logging"
	"dubber/internal/media/ffmpeg"
	"dubber/internal/mix"
	"dubber/internal/separation"
	"dubber/internal/services"
	"dubber/internal/stage"
	"dubber/internal/storage"
	"dubber/internal/store"
)

// Mix lays the fitted clips over the background bed into the whole-video
// mixed track for linear mode.
type Mix struct {
	store      *store.Store
	separator  *separation.Separator
	runner     *ffmpeg.Runner
	ffprobeBin string
	paths      storage.Paths
	opts       mix.Options
	logger     *slog.Logger
}

// NewMix constructs the linear mixing stage handler.
func NewMix(st *store.Store, separator *separation.Separator, runner *ffmpeg.Runner, ffprobeBin string, paths storage.Paths, opts mix.Options, logger *slog.Logger) *Mix {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Mix{store: st, separator: separator, runner: runner, ffprobeBin: ffprobeBin, paths: paths, opts: opts, logger: logger}
}

func (m *Mix) Prepare(ctx context.Context, video *store.Video) error {
	if video.MixAudioFile == "" {
		return services.Wrap(services.ErrValidation, "mix", "prepare", "video has no extracted mix audio", nil)
	}
	return nil
}

func (m *Mix) Execute(ctx context.Context, video *store.Video) error {
	segments, err := m.store.ListSegments(ctx, video.ID)
	if err != nil {
		return err
	}

	clips := make([]mix.Clip, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg.FittedPath) == "" {
			continue
		}
		probe, err := inspectMedia(ctx, m.ffprobeBin, seg.FittedPath)
		if err != nil {
			return err
		}
		clips = append(clips, mix.Clip{
			Path:     seg.FittedPath,
			Start:    seg.StartTime,
			Duration: probe.DurationSeconds(),
		})
	}

	log := logging.WithContext(ctx, m.logger)
	bed := filepath.Join(m.paths.VideoDir(video.ID), "audio", "bed.wav")
	haveBed := true
	if _, err := m.separator.BedWindow(ctx, video.ID, 0, video.DurationSeconds, bed); err != nil {
		if ctx.Err() != nil {
			return err
		}
		log.WarnContext(ctx, "bed preparation failed, rendering voices only", logging.Error(err))
		haveBed = false
	}

	mixed := m.paths.MixedTrack(video.ID)
	switch {
	case len(clips) == 0 && haveBed:
		if err := fileutil.CopyFile(bed, mixed); err != nil {
			return err
		}
	case len(clips) == 0:
		if err := m.runner.Silence(ctx, video.DurationSeconds, 44100, 2, mixed); err != nil {
			return err
		}
	default:
		clips = mix.ResolveOverlaps(clips, m.opts.MinGapSeconds)
		bedPath := bed
		if !haveBed {
			bedPath = ""
		}
		err := m.render(ctx, bedPath, clips, mixed)
		if err != nil && haveBed && ctx.Err() == nil {
			log.WarnContext(ctx, "bed mix failed, retrying voices only", logging.Error(err))
			err = m.render(ctx, "", clips, mixed)
		}
		if err != nil {
			return err
		}
	}

	video.MixedTrackFile = mixed
	video.SetProgress("mix", "dubbed track mixed", 100)
	return nil
}

func (m *Mix) render(ctx context.Context, bed string, clips []mix.Clip, output string) error {
	graph, err := mix.BuildGraph(bed, clips, m.opts)
	if err != nil {
		return err
	}
	return m.runner.MixGraph(ctx, graph.Inputs, graph.Filter, graph.OutLabel, output)
}

func (m *Mix) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("mix")
}

// Mux replaces the original audio with the mixed dubbed track for linear
// mode.
type Mux struct {
	runner           *ffmpeg.Runner
	paths            storage.Paths
	minArtifactBytes int64
	logger           *slog.Logger
}

// NewMux constructs the linear muxing stage handler.
func NewMux(runner *ffmpeg.Runner, paths storage.Paths, minArtifactBytes int64, logger *slog.Logger) *Mux {
	if logger == nil {
		logger = logging.NewNop()
	}
	if minArtifactBytes <= 0 {
		minArtifactBytes = 1024
	}
	return &Mux{runner: runner, paths: paths, minArtifactBytes: minArtifactBytes, logger: logger}
}

func (m *Mux) Prepare(ctx context.Context, video *store.Video) error {
	if video.MixedTrackFile == "" {
		return services.Wrap(services.ErrValidation, "mux", "prepare", "video has no mixed track", nil)
	}
	return nil
}

func (m *Mux) Execute(ctx context.Context, video *store.Video) error {
	final := m.paths.Final(video.ID)
	staged := filepath.Join(m.paths.VideoDir(video.ID), "dubbed.staged.mp4")
	if err := m.runner.Mux(ctx, video.OriginalFile, video.MixedTrackFile, staged); err != nil {
		return err
	}
	if !fileutil.ExistsNonTrivial(staged, m.minArtifactBytes) {
		return services.Wrap(services.ErrExternalTool, "mux", "publish", "muxed video is trivially small", nil)
	}
	if err := fileutil.PublishFile(staged, final); err != nil {
		return err
	}
	video.FinalFile = final
	video.SetProgress("mux", "dubbed video muxed", 100)
	return nil
}

func (m *Mux) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("mux")
}
