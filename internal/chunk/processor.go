package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dubber/internal/asr"
	"dubber/internal/fileutil"
	"dubber/internal/logging"
	"dubber/internal/media/ffmpeg"
	"dubber/internal/media/ffprobe"
	"dubber/internal/mix"
	"dubber/internal/separation"
	"dubber/internal/services"
	"dubber/internal/speakers"
	"dubber/internal/storage"
	"dubber/internal/store"
	"dubber/internal/timefit"
	"dubber/internal/translate"
	"dubber/internal/tts"
)

// Options bound per-chunk behavior.
type Options struct {
	// MinArtifactBytes is the smallest acceptable published chunk.
	MinArtifactBytes int64
	// CloningEnabled gates one-time voice cloning.
	CloningEnabled bool
	// MinCloneSeconds is the shortest vocal sample worth cloning from.
	MinCloneSeconds float64
	// TimeFit bounds clip reshaping.
	TimeFit timefit.Config
	// Mix bounds the per-chunk mixdown.
	Mix mix.Options
}

// Processor runs the full dubbing pass on one window of one video. It is
// stateless between calls; everything durable lives in the store and on
// disk, which is what makes chunk retries safe.
type Processor struct {
	store       *store.Store
	paths       storage.Paths
	runner      *ffmpeg.Runner
	ffprobeBin  string
	transcriber *asr.Client
	separator   *separation.Separator
	translator  *translate.Translator
	registry    *speakers.Registry
	synthesizer *tts.Synthesizer
	cloner      speakers.Cloner
	opts        Options
	logger      *slog.Logger
}

// NewProcessor wires the per-chunk pipeline. cloner may be nil when the
// primary backend cannot clone.
func NewProcessor(
	st *store.Store,
	paths storage.Paths,
	runner *ffmpeg.Runner,
	ffprobeBin string,
	transcriber *asr.Client,
	separator *separation.Separator,
	translator *translate.Translator,
	registry *speakers.Registry,
	synthesizer *tts.Synthesizer,
	cloner speakers.Cloner,
	opts Options,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.MinArtifactBytes <= 0 {
		opts.MinArtifactBytes = 1024
	}
	if opts.MinCloneSeconds <= 0 {
		opts.MinCloneSeconds = 3.0
	}
	if opts.Mix.BedVolume <= 0 {
		opts.Mix.BedVolume = mix.DefaultOptions().BedVolume
	}
	return &Processor{
		store:       st,
		paths:       paths,
		runner:      runner,
		ffprobeBin:  ffprobeBin,
		transcriber: transcriber,
		separator:   separator,
		translator:  translator,
		registry:    registry,
		synthesizer: synthesizer,
		cloner:      cloner,
		opts:        opts,
		logger:      logger,
	}
}

// Done reports whether the chunk's terminal artifact already exists.
func (p *Processor) Done(video *store.Video, window Window) bool {
	return fileutil.ExistsNonTrivial(p.paths.ChunkArtifact(video.ID, window.Index), p.opts.MinArtifactBytes)
}

// Process dubs one window and publishes its artifact. Re-running a
// completed chunk is a no-op; re-running an interrupted one starts clean.
func (p *Processor) Process(ctx context.Context, video *store.Video, window Window) error {
	ctx = services.WithChunkIndex(ctx, window.Index)
	log := logging.WithContext(ctx, p.logger)

	if p.Done(video, window) {
		log.DebugContext(ctx, "chunk artifact already published")
		return nil
	}

	work := p.paths.ChunkWorkDir(video.ID, window.Index)
	if err := os.RemoveAll(work); err != nil {
		return err
	}
	if err := os.MkdirAll(work, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(work)

	// Cut the chunk's video and its transcription-rate audio window.
	chunkVideo := filepath.Join(work, "video.mp4")
	if err := p.runner.CutVideoChunk(ctx, video.OriginalFile, window.Start, window.Duration, chunkVideo); err != nil {
		return err
	}
	chunkAudio := filepath.Join(work, "speech.wav")
	if err := p.runner.ExtractWindow(ctx, video.TranscribeAudioFile, window.Start, window.Duration, chunkAudio); err != nil {
		return err
	}

	audioRel, err := p.paths.Rel(chunkAudio)
	if err != nil {
		return err
	}
	result, err := p.transcriber.Analyze(ctx, audioRel)
	if err != nil {
		return err
	}

	mixed := filepath.Join(work, "mixed.wav")
	if len(result.Segments) == 0 {
		// Nothing spoken: the chunk keeps its original soundscape,
		// attenuated the same way a bed would be.
		log.InfoContext(ctx, "silent chunk, passing attenuated original audio through")
		original := filepath.Join(work, "orig.wav")
		if err := p.runner.ExtractWindow(ctx, video.MixAudioFile, window.Start, window.Duration, original); err != nil {
			return err
		}
		if err := p.runner.ReduceVolume(ctx, original, p.opts.Mix.BedVolume, mixed); err != nil {
			return err
		}
		return p.publish(ctx, video, window, chunkVideo, mixed)
	}

	segments, bySpeaker, err := p.resolveSegments(ctx, video, window, result)
	if err != nil {
		return err
	}

	if err := p.translateSegments(ctx, video, result.Language, segments); err != nil {
		return err
	}
	if err := p.store.ReplaceChunkSegments(ctx, video.ID, window.Index, segments); err != nil {
		return err
	}

	if p.opts.CloningEnabled && p.cloner != nil {
		p.cloneVoices(ctx, video, segments, bySpeaker, log)
	}

	clips, err := p.synthesizeSegments(ctx, video, window, segments, bySpeaker)
	if err != nil {
		return err
	}

	if err := p.mixChunk(ctx, video, window, work, clips, mixed); err != nil {
		return err
	}
	return p.publish(ctx, video, window, chunkVideo, mixed)
}

// resolveSegments converts service segments into store rows with stable
// speaker identities. Times stay on the source timeline.
func (p *Processor) resolveSegments(ctx context.Context, video *store.Video, window Window, result asr.Result) ([]*store.Segment, map[int64]*store.Speaker, error) {
	segments := make([]*store.Segment, 0, len(result.Segments))
	bySpeaker := make(map[int64]*store.Speaker)
	for _, seg := range result.Segments {
		info := result.Speakers[seg.Speaker]
		speaker, err := p.registry.Resolve(ctx, video.ID, seg.Speaker, info)
		if err != nil {
			return nil, nil, err
		}
		bySpeaker[speaker.ID] = speaker
		segments = append(segments, &store.Segment{
			VideoID:    video.ID,
			SpeakerID:  speaker.ID,
			ChunkIndex: window.Index,
			StartTime:  window.Start + seg.Start,
			EndTime:    window.Start + seg.End,
			SourceText: seg.Text,
			Emotion:    info.Emotion,
		})
	}
	return segments, bySpeaker, nil
}

func (p *Processor) translateSegments(ctx context.Context, video *store.Video, detectedLang string, segments []*store.Segment) error {
	source := video.SourceLanguage
	if strings.TrimSpace(source) == "" {
		source = detectedLang
	}
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.SourceText
	}
	translated, err := p.translator.Translate(ctx, texts, source, video.TargetLanguage)
	if err != nil {
		return err
	}
	for i, seg := range segments {
		seg.TranslatedText = translated[i]
	}
	return nil
}

// cloneVoices runs the one-time cloning gate for speakers that have a long
// enough clean vocal window in this chunk. Failures are logged, never
// fatal; the stock voice keeps working.
func (p *Processor) cloneVoices(ctx context.Context, video *store.Video, segments []*store.Segment, bySpeaker map[int64]*store.Speaker, log *slog.Logger) {
	longest := make(map[int64]*store.Segment)
	for _, seg := range segments {
		current, ok := longest[seg.SpeakerID]
		if !ok || seg.SlotDuration() > current.SlotDuration() {
			longest[seg.SpeakerID] = seg
		}
	}
	for speakerID, seg := range longest {
		speaker := bySpeaker[speakerID]
		if speaker == nil || speaker.Cloned() || seg.SlotDuration() < p.opts.MinCloneSeconds {
			continue
		}
		sample := p.paths.ClonedSample(video.ID, speaker.DiarizationKey)
		ok, err := p.separator.VocalWindow(ctx, video.ID, seg.StartTime, seg.SlotDuration(), sample)
		if err != nil || !ok {
			continue
		}
		if err := p.registry.EnsureCloned(ctx, speaker, p.cloner, sample); err != nil {
			log.WarnContext(ctx, "voice cloning failed, keeping stock voice",
				logging.String("tag", speaker.DiarizationKey), logging.Error(err))
		}
	}
}

// synthesizeSegments produces a fitted clip per segment and returns them
// positioned on the chunk-relative timeline. A failing segment is skipped
// with its slot left to the bed; the chunk only fails when every segment
// failed.
func (p *Processor) synthesizeSegments(ctx context.Context, video *store.Video, window Window, segments []*store.Segment, bySpeaker map[int64]*store.Speaker) ([]mix.Clip, error) {
	log := logging.WithContext(ctx, p.logger)
	clips := make([]mix.Clip, 0, len(segments))
	attempted := 0
	var lastErr error
	for _, seg := range segments {
		if strings.TrimSpace(seg.TranslatedText) == "" {
			continue
		}
		attempted++
		clip, err := p.synthesizeSegment(ctx, video, window, seg, bySpeaker[seg.SpeakerID])
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			log.WarnContext(ctx, "segment synthesis failed, skipping",
				logging.Int64("segment_id", seg.ID), logging.Error(err))
			continue
		}
		clips = append(clips, clip)
	}
	if attempted > 0 && len(clips) == 0 {
		return nil, services.Wrap(services.ErrExternalCall, "chunk", "synthesize",
			fmt.Sprintf("all %d segments failed", attempted), lastErr)
	}
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].Start < clips[j].Start })
	return clips, nil
}

func (p *Processor) synthesizeSegment(ctx context.Context, video *store.Video, window Window, seg *store.Segment, speaker *store.Speaker) (mix.Clip, error) {
	primaryVoice, fallbackVoice, err := p.registry.VoiceFor(ctx, speaker, video.TargetLanguage)
	if err != nil {
		return mix.Clip{}, err
	}

	prosody := speakers.ProsodyFor(seg, speaker)
	// Synthesized and fitted clips live in the durable segments directory;
	// their store rows must stay valid after the work dir is cleaned up.
	raw := p.paths.SegmentAudio(video.ID, seg.ID)
	if err := os.MkdirAll(filepath.Dir(raw), 0o755); err != nil {
		return mix.Clip{}, err
	}
	if _, err := p.synthesizer.Synthesize(ctx, tts.Request{
		Text:            seg.TranslatedText,
		VoiceID:         primaryVoice,
		FallbackVoiceID: fallbackVoice,
		Language:        video.TargetLanguage,
		Speed:           prosody.Rate,
		PitchHz:         prosody.PitchHz,
		GainDB:          prosody.GainDB,
		OutputPath:      raw,
	}); err != nil {
		return mix.Clip{}, err
	}

	trimmed := filepath.Join(filepath.Dir(raw), fmt.Sprintf("seg_%d_trim.wav", seg.ID))
	if err := p.runner.TrimSilence(ctx, raw, trimmed); err != nil {
		return mix.Clip{}, err
	}

	fitted, duration, err := p.fitClip(ctx, seg, trimmed)
	if err != nil {
		return mix.Clip{}, err
	}

	if err := p.store.UpdateSegmentSynthesis(ctx, seg.ID, raw, fitted); err != nil {
		return mix.Clip{}, err
	}
	return mix.Clip{
		Path:     fitted,
		Start:    seg.StartTime - window.Start,
		Duration: duration,
	}, nil
}

// inspectMedia is swapped in tests; probing shells out to ffprobe.
var inspectMedia = ffprobe.Inspect

func (p *Processor) fitClip(ctx context.Context, seg *store.Segment, clip string) (string, float64, error) {
	probe, err := inspectMedia(ctx, p.ffprobeBin, clip)
	if err != nil {
		return "", 0, err
	}
	clipDuration := probe.DurationSeconds()
	if clipDuration <= 0 {
		return "", 0, services.Wrap(services.ErrExternalTool, "chunk", "fit clip",
			"synthesized clip has no measurable duration", nil)
	}

	plan, err := timefit.NewPlan(p.opts.TimeFit, clipDuration, seg.SlotDuration())
	if err != nil {
		return "", 0, err
	}
	if !plan.NeedsProcessing() {
		return clip, clipDuration, nil
	}
	fitted := p.paths.FittedAudio(seg.VideoID, seg.ID)
	if err := p.runner.AudioFilter(ctx, clip, plan.FilterExpr(), fitted); err != nil {
		return "", 0, err
	}
	return fitted, plan.FinalDuration, nil
}

// mixChunk renders the chunk's dubbed audio. A failed bed degrades to a
// voice-only render rather than failing the chunk.
func (p *Processor) mixChunk(ctx context.Context, video *store.Video, window Window, work string, clips []mix.Clip, output string) error {
	log := logging.WithContext(ctx, p.logger)
	bed := filepath.Join(work, "bed.wav")
	haveBed := true
	if _, err := p.separator.BedWindow(ctx, video.ID, window.Start, window.Duration, bed); err != nil {
		if ctx.Err() != nil {
			return err
		}
		log.WarnContext(ctx, "bed preparation failed, rendering voices only", logging.Error(err))
		haveBed = false
	}

	if len(clips) == 0 {
		if haveBed {
			return fileutil.CopyFile(bed, output)
		}
		return p.runner.Silence(ctx, window.Duration, 44100, 2, output)
	}

	clips = mix.ResolveOverlaps(clips, p.opts.Mix.MinGapSeconds)
	if haveBed {
		err := p.renderMix(ctx, bed, clips, output)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		log.WarnContext(ctx, "bed mix failed, retrying voices only", logging.Error(err))
	}
	return p.renderMix(ctx, "", clips, output)
}

func (p *Processor) renderMix(ctx context.Context, bed string, clips []mix.Clip, output string) error {
	graph, err := mix.BuildGraph(bed, clips, p.opts.Mix)
	if err != nil {
		return err
	}
	return p.runner.MixGraph(ctx, graph.Inputs, graph.Filter, graph.OutLabel, output)
}

// publish muxes the chunk and promotes it to its terminal artifact path in
// one rename, so a partially written artifact is never observable.
func (p *Processor) publish(ctx context.Context, video *store.Video, window Window, chunkVideo, mixedAudio string) error {
	artifact := p.paths.ChunkArtifact(video.ID, window.Index)
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		return err
	}
	// Mux into the work dir; the rename into chunks/ is the publish.
	staged := filepath.Join(filepath.Dir(chunkVideo), "chunk.mp4")

	if err := p.runner.Mux(ctx, chunkVideo, mixedAudio, staged); err != nil {
		return err
	}
	if !fileutil.ExistsNonTrivial(staged, p.opts.MinArtifactBytes) {
		return services.Wrap(services.ErrExternalTool, "chunk", "publish",
			fmt.Sprintf("muxed chunk below %d bytes", p.opts.MinArtifactBytes), nil)
	}
	if err := fileutil.PublishFile(staged, artifact); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "chunk published",
		logging.Int64("video_id", video.ID),
		logging.Int("chunk_index", window.Index))
	return nil
}
