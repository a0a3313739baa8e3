package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateTimeFit(); err != nil {
		return err
	}
	if err := c.validateMix(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		return errors.New("paths.storage_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Mode {
	case "chunked", "linear":
	default:
		return fmt.Errorf("pipeline.mode must be \"chunked\" or \"linear\", got %q", c.Pipeline.Mode)
	}
	if c.Pipeline.ChunkParallelism < 1 {
		return errors.New("pipeline.chunk_parallelism must be at least 1")
	}
	for name, v := range map[string]int{
		"short_chunk_seconds":  c.Pipeline.ShortChunkSeconds,
		"medium_chunk_seconds": c.Pipeline.MediumChunkSeconds,
		"long_chunk_seconds":   c.Pipeline.LongChunkSeconds,
	} {
		if v < 2 {
			return fmt.Errorf("pipeline.%s must be at least 2 seconds", name)
		}
	}
	if c.Pipeline.ShortVideoSeconds >= c.Pipeline.MediumVideoSeconds {
		return errors.New("pipeline.short_video_seconds must be below pipeline.medium_video_seconds")
	}
	if c.Pipeline.ChunkAttempts < 1 {
		return errors.New("pipeline.chunk_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateTimeFit() error {
	tf := c.TimeFit
	if tf.ToleranceLow <= 0 || tf.ToleranceLow >= 1 {
		return errors.New("timefit.tolerance_low must be between 0 and 1")
	}
	if tf.ToleranceHigh <= 1 {
		return errors.New("timefit.tolerance_high must be above 1")
	}
	if tf.MinStretch <= 0 || tf.MinStretch >= 1 {
		return errors.New("timefit.min_stretch must be between 0 and 1")
	}
	if tf.MaxTempo <= tf.ToleranceHigh {
		return errors.New("timefit.max_tempo must exceed timefit.tolerance_high")
	}
	if tf.MaxChain < 1 {
		return errors.New("timefit.max_chain must be at least 1")
	}
	return nil
}

func (c *Config) validateMix() error {
	if c.Mix.BedVolume < 0 || c.Mix.BedVolume > 1 {
		return errors.New("mix.bed_volume must be between 0 and 1")
	}
	if c.Mix.DuckRatio < 1 {
		return errors.New("mix.duck_ratio must be at least 1")
	}
	if c.Mix.MinGapMS < 0 {
		return errors.New("mix.min_gap_ms must not be negative")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval < 1 {
		return errors.New("workflow.queue_poll_interval must be at least 1 second")
	}
	if c.Workflow.HeartbeatInterval < 1 {
		return errors.New("workflow.heartbeat_interval must be at least 1 second")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateTTS() error {
	known := map[string]struct{}{"xtts": {}, "edge": {}}
	if _, ok := known[c.TTS.Primary]; !ok {
		return fmt.Errorf("tts.primary must be one of xtts, edge; got %q", c.TTS.Primary)
	}
	if c.TTS.Fallback != "" {
		if _, ok := known[c.TTS.Fallback]; !ok {
			return fmt.Errorf("tts.fallback must be one of xtts, edge; got %q", c.TTS.Fallback)
		}
	}
	if c.TTS.Fallback == c.TTS.Primary {
		return errors.New("tts.fallback must differ from tts.primary")
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Pipeline.Mode = strings.ToLower(strings.TrimSpace(c.Pipeline.Mode))
	if c.Pipeline.Mode == "" {
		c.Pipeline.Mode = defaultMode
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	for _, p := range []*string{
		&c.ASR.BaseURL, &c.Separation.BaseURL, &c.Translation.BaseURL,
		&c.TTS.XTTSBaseURL, &c.Lipsync.BaseURL,
	} {
		*p = strings.TrimRight(strings.TrimSpace(*p), "/")
	}
	if key := strings.TrimSpace(os.Getenv("DUBBER_TRANSLATION_API_KEY")); key != "" {
		c.Translation.APIKey = key
	}
	return nil
}
