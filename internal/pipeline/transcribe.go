package pipeline

import (
	"context"
	"log/slog"

	"dubber/internal/asr"
	"dubber/internal/logging"
	"dubber/internal/services"
	"dubber/internal/speakers"
	"dubber/internal/stage"
	"dubber/internal/storage"
	"dubber/internal/store"
)

// wholeVideoChunk is the chunk index linear-mode segments are stored under.
const wholeVideoChunk = 0

// Transcribe runs whole-video transcription and diarization for linear mode.
type Transcribe struct {
	store       *store.Store
	transcriber *asr.Client
	registry    *speakers.Registry
	paths       storage.Paths
	logger      *slog.Logger
}

// NewTranscribe constructs the linear transcription stage handler.
func NewTranscribe(st *store.Store, transcriber *asr.Client, registry *speakers.Registry, paths storage.Paths, logger *slog.Logger) *Transcribe {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcribe{store: st, transcriber: transcriber, registry: registry, paths: paths, logger: logger}
}

func (t *Transcribe) Prepare(ctx context.Context, video *store.Video) error {
	if video.TranscribeAudioFile == "" {
		return services.Wrap(services.ErrValidation, "transcribe", "prepare",
			"video has no extracted transcription audio", nil)
	}
	return nil
}

func (t *Transcribe) Execute(ctx context.Context, video *store.Video) error {
	rel, err := t.paths.Rel(video.TranscribeAudioFile)
	if err != nil {
		return err
	}
	result, err := t.transcriber.Analyze(ctx, rel)
	if err != nil {
		return err
	}
	if video.SourceLanguage == "" {
		video.SourceLanguage = result.Language
	}

	segments := make([]*store.Segment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		info := result.Speakers[seg.Speaker]
		speaker, err := t.registry.Resolve(ctx, video.ID, seg.Speaker, info)
		if err != nil {
			return err
		}
		segments = append(segments, &store.Segment{
			VideoID:    video.ID,
			SpeakerID:  speaker.ID,
			ChunkIndex: wholeVideoChunk,
			StartTime:  seg.Start,
			EndTime:    seg.End,
			SourceText: seg.Text,
			Emotion:    info.Emotion,
		})
	}
	if err := t.store.ReplaceChunkSegments(ctx, video.ID, wholeVideoChunk, segments); err != nil {
		return err
	}

	video.SetProgress("transcribe", "transcription complete", 100)
	logging.WithContext(ctx, t.logger).InfoContext(ctx, "video transcribed",
		logging.Int("segments", len(segments)),
		logging.String("language", result.Language))
	return nil
}

func (t *Transcribe) HealthCheck(ctx context.Context) stage.Health {
	if err := t.transcriber.Health(ctx); err != nil {
		return stage.Unhealthy("transcribe", "transcription service unreachable")
	}
	return stage.Healthy("transcribe")
}
