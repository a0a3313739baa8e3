package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StorageDir string `toml:"storage_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// Pipeline contains chunking and dispatch behaviour.
type Pipeline struct {
	// Mode selects the default processing mode for new videos: "chunked" or "linear".
	Mode string `toml:"mode"`
	// ChunkParallelism bounds concurrent chunk tasks per video.
	ChunkParallelism int `toml:"chunk_parallelism"`
	// ShortChunkSeconds applies to videos up to ShortVideoSeconds long.
	ShortChunkSeconds int `toml:"short_chunk_seconds"`
	// MediumChunkSeconds applies to videos up to MediumVideoSeconds long.
	MediumChunkSeconds int `toml:"medium_chunk_seconds"`
	// LongChunkSeconds applies to everything longer.
	LongChunkSeconds   int   `toml:"long_chunk_seconds"`
	ShortVideoSeconds  int   `toml:"short_video_seconds"`
	MediumVideoSeconds int   `toml:"medium_video_seconds"`
	MinArtifactBytes   int64 `toml:"min_artifact_bytes"`
	// StageLockSeconds bounds how long a per-(video, stage) lock may be held
	// before a competing task may reclaim it.
	StageLockSeconds int `toml:"stage_lock_seconds"`
	// ChunkClaimSeconds bounds how long a chunk claim may be held.
	ChunkClaimSeconds int `toml:"chunk_claim_seconds"`
	// ChunkAttempts is the per-chunk synthesis/mix retry budget.
	ChunkAttempts int `toml:"chunk_attempts"`
	// LipsyncEnabled triggers the optional lipsync pass after dubbing.
	LipsyncEnabled bool `toml:"lipsync_enabled"`
}

// ASR contains the transcription+diarization service settings.
type ASR struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Separation contains the source-separation service settings.
type Separation struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// FallbackVolume is applied to the original audio when separation fails.
	FallbackVolume float64 `toml:"fallback_volume"`
}

// Translation contains the translation service settings.
type Translation struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
	// BatchMinSegments is the threshold above which segments are translated
	// in one numbered batch call instead of per-segment calls.
	BatchMinSegments int `toml:"batch_min_segments"`
	CacheTTLHours    int `toml:"cache_ttl_hours"`
}

// TTS contains speech-synthesis backend settings.
type TTS struct {
	Primary         string  `toml:"primary"`
	Fallback        string  `toml:"fallback"`
	XTTSBaseURL     string  `toml:"xtts_base_url"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	CloningEnabled  bool    `toml:"cloning_enabled"`
	MinCloneSeconds float64 `toml:"min_clone_seconds"`
	MinOutputBytes  int64   `toml:"min_output_bytes"`
}

// Lipsync contains the optional lipsync service settings.
type Lipsync struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TimeFit contains the time-fitting policy. One policy applies everywhere.
type TimeFit struct {
	ToleranceLow  float64 `toml:"tolerance_low"`
	ToleranceHigh float64 `toml:"tolerance_high"`
	MinStretch    float64 `toml:"min_stretch"`
	MaxTempo      float64 `toml:"max_tempo"`
	MaxChain      int     `toml:"max_chain"`
}

// Mix contains audio mixing parameters.
type Mix struct {
	BedVolume       float64 `toml:"bed_volume"`
	DuckThresholdDB float64 `toml:"duck_threshold_db"`
	DuckRatio       float64 `toml:"duck_ratio"`
	DuckAttackMS    int     `toml:"duck_attack_ms"`
	DuckReleaseMS   int     `toml:"duck_release_ms"`
	TargetLUFS      float64 `toml:"target_lufs"`
	MinGapMS        int     `toml:"min_gap_ms"`
}

// Workflow contains daemon timing and retry intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	// DownloadTimeout bounds source downloads in seconds.
	DownloadTimeout int `toml:"download_timeout"`
	// StageRetryLimit bounds how often a stage run is retried after a
	// transient failure before the video is parked in its failure status.
	StageRetryLimit int `toml:"stage_retry_limit"`
	// StageRetryBackoff is the base backoff in seconds between stage
	// retries; every further retry doubles it.
	StageRetryBackoff int `toml:"stage_retry_backoff"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
}

// Tools contains external binary paths.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
	EdgeTTS string `toml:"edge_tts"`
}

// Config is the root configuration object.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	ASR           ASR           `toml:"asr"`
	Separation    Separation    `toml:"separation"`
	Translation   Translation   `toml:"translation"`
	TTS           TTS           `toml:"tts"`
	Lipsync       Lipsync       `toml:"lipsync"`
	TimeFit       TimeFit       `toml:"timefit"`
	Mix           Mix           `toml:"mix"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Tools         Tools         `toml:"tools"`
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "dubber", "config.toml"), nil
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist. The returned config is normalized and validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved := strings.TrimSpace(path)
	if resolved == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		resolved = defaultPath
	}

	expanded, err := expandPath(resolved)
	if err != nil {
		return nil, fmt.Errorf("config path: %w", err)
	}

	data, err := os.ReadFile(expanded)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", expanded, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("read config %s: %w", expanded, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories the daemon relies on.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StorageDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Clean(trimmed), nil
}
