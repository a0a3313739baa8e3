package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Mode != "chunked" {
		t.Fatalf("expected default mode, got %q", cfg.Pipeline.Mode)
	}
	if cfg.TimeFit.MaxTempo != 2.3 {
		t.Fatalf("expected default max tempo, got %v", cfg.TimeFit.MaxTempo)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[pipeline]
mode = "linear"
chunk_parallelism = 5

[tts]
primary = "edge"
fallback = "xtts"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Mode != "linear" {
		t.Fatalf("expected linear mode, got %q", cfg.Pipeline.Mode)
	}
	if cfg.Pipeline.ChunkParallelism != 5 {
		t.Fatalf("expected parallelism override, got %d", cfg.Pipeline.ChunkParallelism)
	}
	if cfg.TTS.Primary != "edge" {
		t.Fatalf("expected edge primary, got %q", cfg.TTS.Primary)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.Mode = "streaming"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestValidateRejectsSameFallback(t *testing.T) {
	cfg := Default()
	cfg.TTS.Fallback = cfg.TTS.Primary
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when fallback equals primary")
	}
}

func TestNormalizeTrimsServiceURLs(t *testing.T) {
	cfg := Default()
	cfg.ASR.BaseURL = " http://asr:8001/ "
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.ASR.BaseURL != "http://asr:8001" {
		t.Fatalf("expected trimmed URL, got %q", cfg.ASR.BaseURL)
	}
}
