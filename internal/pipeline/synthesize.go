package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dubber/internal/logging"
	"dubber/internal/media/ffmpeg"
	"dubber/internal/media/ffprobe"
	"dubber/internal/separation"
	"dubber/internal/services"
	"dubber/internal/speakers"
	"dubber/internal/stage"
	"dubber/internal/storage"
	"dubber/internal/store"
	"dubber/internal/timefit"
	"dubber/internal/tts"
)

// Synthesize voices every translated segment and fits each clip into its
// slot for linear mode.
type Synthesize struct {
	store           *store.Store
	registry        *speakers.Registry
	synthesizer     *tts.Synthesizer
	cloner          speakers.Cloner
	separator       *separation.Separator
	runner          *ffmpeg.Runner
	ffprobeBin      string
	paths           storage.Paths
	fit             timefit.Config
	cloningEnabled  bool
	minCloneSeconds float64
	logger          *slog.Logger
}

// NewSynthesize constructs the linear synthesis stage handler. cloner may
// be nil when the primary backend cannot clone.
func NewSynthesize(
	st *store.Store,
	registry *speakers.Registry,
	synthesizer *tts.Synthesizer,
	cloner speakers.Cloner,
	separator *separation.Separator,
	runner *ffmpeg.Runner,
	ffprobeBin string,
	paths storage.Paths,
	fit timefit.Config,
	cloningEnabled bool,
	minCloneSeconds float64,
	logger *slog.Logger,
) *Synthesize {
	if logger == nil {
		logger = logging.NewNop()
	}
	if minCloneSeconds <= 0 {
		minCloneSeconds = 3.0
	}
	return &Synthesize{
		store:           st,
		registry:        registry,
		synthesizer:     synthesizer,
		cloner:          cloner,
		separator:       separator,
		runner:          runner,
		ffprobeBin:      ffprobeBin,
		paths:           paths,
		fit:             fit,
		cloningEnabled:  cloningEnabled,
		minCloneSeconds: minCloneSeconds,
		logger:          logger,
	}
}

func (s *Synthesize) Prepare(ctx context.Context, video *store.Video) error { return nil }

func (s *Synthesize) Execute(ctx context.Context, video *store.Video) error {
	segments, err := s.store.ListSegments(ctx, video.ID)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}

	roster, err := s.store.ListSpeakers(ctx, video.ID)
	if err != nil {
		return err
	}
	bySpeaker := make(map[int64]*store.Speaker, len(roster))
	for _, speaker := range roster {
		bySpeaker[speaker.ID] = speaker
	}

	log := logging.WithContext(ctx, s.logger)
	if s.cloningEnabled && s.cloner != nil {
		s.cloneVoices(ctx, video, segments, bySpeaker, log)
	}

	attempted := 0
	voiced := 0
	var lastErr error
	for i, seg := range segments {
		if strings.TrimSpace(seg.TranslatedText) == "" {
			continue
		}
		speaker := bySpeaker[seg.SpeakerID]
		if speaker == nil {
			return services.Wrap(services.ErrValidation, "synthesize", "lookup",
				fmt.Sprintf("segment %d references unknown speaker %d", seg.ID, seg.SpeakerID), nil)
		}
		attempted++
		if err := s.synthesizeSegment(ctx, video, seg, speaker); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// One failed segment leaves its slot to the bed; the stage
			// only fails when nothing at all was voiced.
			lastErr = err
			log.WarnContext(ctx, "segment synthesis failed, skipping",
				logging.Int64("segment_id", seg.ID), logging.Error(err))
			continue
		}
		voiced++
		video.SetProgress("synthesize",
			fmt.Sprintf("segment %d/%d voiced", i+1, len(segments)),
			float64(i+1)/float64(len(segments))*100)
	}
	if attempted > 0 && voiced == 0 {
		return services.Wrap(services.ErrExternalCall, "synthesize", "segments",
			fmt.Sprintf("all %d segments failed", attempted), lastErr)
	}
	return nil
}

func (s *Synthesize) synthesizeSegment(ctx context.Context, video *store.Video, seg *store.Segment, speaker *store.Speaker) error {
	primaryVoice, fallbackVoice, err := s.registry.VoiceFor(ctx, speaker, video.TargetLanguage)
	if err != nil {
		return err
	}

	prosody := speakers.ProsodyFor(seg, speaker)
	raw := s.paths.SegmentAudio(video.ID, seg.ID)
	if err := os.MkdirAll(filepath.Dir(raw), 0o755); err != nil {
		return err
	}
	if _, err := s.synthesizer.Synthesize(ctx, tts.Request{
		Text:            seg.TranslatedText,
		VoiceID:         primaryVoice,
		FallbackVoiceID: fallbackVoice,
		Language:        video.TargetLanguage,
		Speed:           prosody.Rate,
		PitchHz:         prosody.PitchHz,
		GainDB:          prosody.GainDB,
		OutputPath:      raw,
	}); err != nil {
		return err
	}

	trimmed := filepath.Join(filepath.Dir(raw), fmt.Sprintf("seg_%d_trim.wav", seg.ID))
	if err := s.runner.TrimSilence(ctx, raw, trimmed); err != nil {
		return err
	}

	fitted, _, err := fitClip(ctx, s.runner, s.ffprobeBin, s.fit, trimmed, seg.SlotDuration(), s.paths.FittedAudio(video.ID, seg.ID))
	if err != nil {
		return err
	}
	return s.store.UpdateSegmentSynthesis(ctx, seg.ID, raw, fitted)
}

// cloneVoices mirrors the chunked pipeline's one-time cloning gate over the
// whole video: the longest clean segment per speaker seeds the clone, and
// failures fall back to the stock voice.
func (s *Synthesize) cloneVoices(ctx context.Context, video *store.Video, segments []*store.Segment, bySpeaker map[int64]*store.Speaker, log *slog.Logger) {
	longest := make(map[int64]*store.Segment)
	for _, seg := range segments {
		current, ok := longest[seg.SpeakerID]
		if !ok || seg.SlotDuration() > current.SlotDuration() {
			longest[seg.SpeakerID] = seg
		}
	}
	for speakerID, seg := range longest {
		speaker := bySpeaker[speakerID]
		if speaker == nil || speaker.Cloned() || seg.SlotDuration() < s.minCloneSeconds {
			continue
		}
		sample := s.paths.ClonedSample(video.ID, speaker.DiarizationKey)
		ok, err := s.separator.VocalWindow(ctx, video.ID, seg.StartTime, seg.SlotDuration(), sample)
		if err != nil || !ok {
			continue
		}
		if err := s.registry.EnsureCloned(ctx, speaker, s.cloner, sample); err != nil {
			log.WarnContext(ctx, "voice cloning failed, keeping stock voice",
				logging.String("tag", speaker.DiarizationKey), logging.Error(err))
		}
	}
}

func (s *Synthesize) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("synthesize")
}

// inspectMedia is swapped in tests; probing shells out to ffprobe.
var inspectMedia = ffprobe.Inspect

// fitClip reshapes a synthesized clip into its slot. Clips already within
// tolerance are returned unchanged.
func fitClip(ctx context.Context, runner *ffmpeg.Runner, ffprobeBin string, cfg timefit.Config, clip string, slotDuration float64, fittedPath string) (string, float64, error) {
	probe, err := inspectMedia(ctx, ffprobeBin, clip)
	if err != nil {
		return "", 0, err
	}
	clipDuration := probe.DurationSeconds()
	if clipDuration <= 0 {
		return "", 0, services.Wrap(services.ErrExternalTool, "synthesize", "fit clip",
			"synthesized clip has no measurable duration", nil)
	}

	plan, err := timefit.NewPlan(cfg, clipDuration, slotDuration)
	if err != nil {
		return "", 0, err
	}
	if !plan.NeedsProcessing() {
		return clip, clipDuration, nil
	}
	if err := runner.AudioFilter(ctx, clip, plan.FilterExpr(), fittedPath); err != nil {
		return "", 0, err
	}
	return fittedPath, plan.FinalDuration, nil
}
