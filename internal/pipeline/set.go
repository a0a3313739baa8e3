package pipeline

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"dubber/internal/asr"
	"dubber/internal/assemble"
	"dubber/internal/chunk"
	"dubber/internal/config"
	"dubber/internal/lipsync"
	"dubber/internal/media/ffmpeg"
	"dubber/internal/mix"
	"dubber/internal/separation"
	"dubber/internal/speakers"
	"dubber/internal/storage"
	"dubber/internal/store"
	"dubber/internal/timefit"
	"dubber/internal/translate"
	"dubber/internal/tts"
	"dubber/internal/workflow"
)

// NewStageSet wires every stage handler from configuration. The returned
// set covers both processing modes; the workflow manager picks the stages a
// video actually runs from its mode.
func NewStageSet(cfg *config.Config, st *store.Store, logger *slog.Logger) workflow.StageSet {
	paths := storage.NewPaths(cfg.Paths.StorageDir)
	runner := ffmpeg.New(cfg.Tools.FFmpeg)

	transcriber := asr.New(cfg.ASR.BaseURL, seconds(cfg.ASR.TimeoutSeconds), cfg.ASR.RetryAttempts)

	var sepClient *separation.Client
	if cfg.Separation.Enabled {
		sepClient = separation.NewClient(cfg.Separation.BaseURL, cfg.Separation.Model, seconds(cfg.Separation.TimeoutSeconds))
	}
	separator := separation.NewSeparator(sepClient, runner, paths, cfg.Separation.Enabled, cfg.Separation.FallbackVolume, logger)

	translator := translate.NewTranslator(
		translate.NewClient(cfg.Translation.BaseURL, cfg.Translation.APIKey, cfg.Translation.Model, seconds(cfg.Translation.TimeoutSeconds)),
		translate.NewCache(time.Duration(cfg.Translation.CacheTTLHours)*time.Hour),
		cfg.Translation.RetryAttempts,
		cfg.Translation.BatchMinSegments,
		logger,
	)

	registry := speakers.NewRegistry(st, logger)

	xtts := tts.NewXTTS(cfg.TTS.XTTSBaseURL, seconds(cfg.TTS.TimeoutSeconds), paths)
	edge := tts.NewEdge(cfg.Tools.EdgeTTS, runner)
	primary, fallback := pickBackends(cfg, xtts, edge)
	synthesizer := tts.NewSynthesizer(primary, fallback, cfg.TTS.MinOutputBytes, logger)

	var cloner speakers.Cloner
	if cfg.TTS.CloningEnabled && strings.EqualFold(cfg.TTS.Primary, "xtts") {
		cloner = xtts
	}

	fit := timefit.DefaultConfig()
	fit.ToleranceLow = cfg.TimeFit.ToleranceLow
	fit.ToleranceHigh = cfg.TimeFit.ToleranceHigh
	fit.MinStretch = cfg.TimeFit.MinStretch
	fit.MaxTempo = cfg.TimeFit.MaxTempo
	fit.MaxChain = cfg.TimeFit.MaxChain

	mixOpts := mix.Options{
		BedVolume:       cfg.Mix.BedVolume,
		DuckThresholdDB: cfg.Mix.DuckThresholdDB,
		DuckRatio:       cfg.Mix.DuckRatio,
		DuckAttackMS:    float64(cfg.Mix.DuckAttackMS),
		DuckReleaseMS:   float64(cfg.Mix.DuckReleaseMS),
		TargetLUFS:      cfg.Mix.TargetLUFS,
		MinGapSeconds:   float64(cfg.Mix.MinGapMS) / 1000,
	}

	processor := chunk.NewProcessor(st, paths, runner, cfg.Tools.FFprobe,
		transcriber, separator, translator, registry, synthesizer, cloner,
		chunk.Options{
			MinArtifactBytes: cfg.Pipeline.MinArtifactBytes,
			CloningEnabled:   cfg.TTS.CloningEnabled,
			MinCloneSeconds:  cfg.TTS.MinCloneSeconds,
			TimeFit:          fit,
			Mix:              mixOpts,
		}, logger)

	assembler := assemble.New(paths, runner, cfg.Pipeline.MinArtifactBytes, logger)

	var lipsyncClient *lipsync.Client
	if cfg.Pipeline.LipsyncEnabled {
		lipsyncClient = lipsync.New(cfg.Lipsync.BaseURL, seconds(cfg.Lipsync.TimeoutSeconds))
	}

	policy := chunk.SizePolicy{
		ShortChunkSeconds:  cfg.Pipeline.ShortChunkSeconds,
		MediumChunkSeconds: cfg.Pipeline.MediumChunkSeconds,
		LongChunkSeconds:   cfg.Pipeline.LongChunkSeconds,
		ShortVideoSeconds:  float64(cfg.Pipeline.ShortVideoSeconds),
		MediumVideoSeconds: float64(cfg.Pipeline.MediumVideoSeconds),
	}

	return workflow.StageSet{
		Download: NewDownload(paths, seconds(cfg.Workflow.DownloadTimeout), cfg.Tools.FFprobe, policy, logger),
		Extract:  NewExtract(paths, runner, cfg.Tools.FFmpeg, separator, logger),

		Chunks: NewChunks(st, processor, assembler, transcriber,
			cfg.Pipeline.ChunkParallelism,
			seconds(cfg.Pipeline.ChunkClaimSeconds),
			cfg.Pipeline.ChunkAttempts,
			uuid.NewString(), logger),
		Combine: NewCombine(assembler, logger),

		Transcribe: NewTranscribe(st, transcriber, registry, paths, logger),
		Translate:  NewTranslate(st, translator, strings.TrimSpace(cfg.Translation.APIKey) != "", logger),
		Synthesize: NewSynthesize(st, registry, synthesizer, cloner, separator, runner,
			cfg.Tools.FFprobe, paths, fit, cfg.TTS.CloningEnabled, cfg.TTS.MinCloneSeconds, logger),
		Mix: NewMix(st, separator, runner, cfg.Tools.FFprobe, paths, mixOpts, logger),
		Mux: NewMux(runner, paths, cfg.Pipeline.MinArtifactBytes, logger),

		Finalize: NewFinalize(lipsyncClient, paths, cfg.Pipeline.LipsyncEnabled, logger),
	}
}

func pickBackends(cfg *config.Config, xtts *tts.XTTS, edge *tts.Edge) (tts.Backend, tts.Backend) {
	byName := func(name string) tts.Backend {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "edge":
			return edge
		case "xtts":
			return xtts
		default:
			return nil
		}
	}
	primary := byName(cfg.TTS.Primary)
	if primary == nil {
		primary = xtts
	}
	fallback := byName(cfg.TTS.Fallback)
	if fallback == primary {
		fallback = nil
	}
	return primary, fallback
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
