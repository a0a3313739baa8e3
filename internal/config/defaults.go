package config

const (
	defaultStorageDir = "~/.local/share/dubber/storage"
	defaultLogDir     = "~/.local/share/dubber/logs"
	defaultAPIBind    = "127.0.0.1:7533"

	defaultMode               = "chunked"
	defaultChunkParallelism   = 3
	defaultShortChunkSeconds  = 8
	defaultMediumChunkSeconds = 30
	defaultLongChunkSeconds   = 60
	defaultShortVideoSeconds  = 90
	defaultMediumVideoSeconds = 600
	defaultMinArtifactBytes   = 1024
	defaultStageLockSeconds   = 900
	defaultChunkClaimSeconds  = 900
	defaultChunkAttempts      = 3

	defaultASRBaseURL        = "http://127.0.0.1:8001"
	defaultSeparationBaseURL = "http://127.0.0.1:8002"
	defaultSeparationModel   = "htdemucs"
	defaultXTTSBaseURL       = "http://127.0.0.1:8003"
	defaultLipsyncBaseURL    = "http://127.0.0.1:8004"
	defaultTranslationURL    = "https://api.deepseek.com/v1/chat/completions"
	defaultTranslationModel  = "deepseek-chat"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StorageDir: defaultStorageDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Pipeline: Pipeline{
			Mode:               defaultMode,
			ChunkParallelism:   defaultChunkParallelism,
			ShortChunkSeconds:  defaultShortChunkSeconds,
			MediumChunkSeconds: defaultMediumChunkSeconds,
			LongChunkSeconds:   defaultLongChunkSeconds,
			ShortVideoSeconds:  defaultShortVideoSeconds,
			MediumVideoSeconds: defaultMediumVideoSeconds,
			MinArtifactBytes:   defaultMinArtifactBytes,
			StageLockSeconds:   defaultStageLockSeconds,
			ChunkClaimSeconds:  defaultChunkClaimSeconds,
			ChunkAttempts:      defaultChunkAttempts,
		},
		ASR: ASR{
			BaseURL:        defaultASRBaseURL,
			TimeoutSeconds: 600,
			RetryAttempts:  3,
		},
		Separation: Separation{
			Enabled:        true,
			BaseURL:        defaultSeparationBaseURL,
			Model:          defaultSeparationModel,
			TimeoutSeconds: 600,
			FallbackVolume: 0.25,
		},
		Translation: Translation{
			BaseURL:          defaultTranslationURL,
			Model:            defaultTranslationModel,
			TimeoutSeconds:   120,
			RetryAttempts:    3,
			BatchMinSegments: 3,
			CacheTTLHours:    720,
		},
		TTS: TTS{
			Primary:         "xtts",
			Fallback:        "edge",
			XTTSBaseURL:     defaultXTTSBaseURL,
			TimeoutSeconds:  300,
			CloningEnabled:  true,
			MinCloneSeconds: 3.0,
			MinOutputBytes:  1000,
		},
		Lipsync: Lipsync{
			BaseURL:        defaultLipsyncBaseURL,
			TimeoutSeconds: 1800,
		},
		TimeFit: TimeFit{
			ToleranceLow:  0.95,
			ToleranceHigh: 1.05,
			MinStretch:    0.75,
			MaxTempo:      2.3,
			MaxChain:      3,
		},
		Mix: Mix{
			BedVolume:       0.45,
			DuckThresholdDB: -30,
			DuckRatio:       8,
			DuckAttackMS:    5,
			DuckReleaseMS:   250,
			TargetLUFS:      -16,
			MinGapMS:        60,
		},
		Workflow: Workflow{
			QueuePollInterval:  2,
			ErrorRetryInterval: 5,
			HeartbeatInterval:  15,
			HeartbeatTimeout:   120,
			DownloadTimeout:    1800,
			StageRetryLimit:    3,
			StageRetryBackoff:  2,
		},
		Logging: Logging{
			Format:     "console",
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Completion:     true,
			Errors:         true,
		},
		Tools: Tools{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
			EdgeTTS: "edge-tts",
		},
	}
}
