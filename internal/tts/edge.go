package tts

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"dubber/internal/media/ffmpeg"
	"dubber/internal/services"
)

// Edge is the fallback backend, shelling out to the edge-tts CLI. It has no
// cloning support but needs no local model, which is exactly what a
// fallback should look like.
type Edge struct {
	binary string
	runner *ffmpeg.Runner
}

// NewEdge constructs the edge-tts backend. The ffmpeg runner converts the
// tool's MP3 output to the PCM the rest of the pipeline expects.
func NewEdge(binary string, runner *ffmpeg.Runner) *Edge {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "edge-tts"
	}
	return &Edge{binary: binary, runner: runner}
}

// Name implements Backend.
func (e *Edge) Name() string { return "edge" }

// Synthesize implements Backend.
func (e *Edge) Synthesize(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.VoiceID) == "" {
		return services.Wrap(services.ErrValidation, "edge", "synthesize", "voice id required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return err
	}

	tmp := req.OutputPath + ".mp3"
	defer os.Remove(tmp)

	args := []string{
		"--text", req.Text,
		"--voice", req.VoiceID,
		"--rate", ratePercent(req.Speed),
		"--pitch", pitchHz(req.PitchHz),
		"--volume", volumePercent(req.GainDB),
		"--write-media", tmp,
	}
	cmd := exec.CommandContext(ctx, e.binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return services.Wrap(services.ErrExternalTool, "edge", "synthesize",
			strings.TrimSpace(string(output)), err)
	}

	return e.runner.Run(ctx, "-i", tmp, "-acodec", "pcm_s16le", "-ar", "24000", "-ac", "1", req.OutputPath)
}

// Ready implements Backend.
func (e *Edge) Ready(ctx context.Context) error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return services.Wrap(services.ErrConfiguration, "edge", "ready", e.binary+" not found in PATH", err)
	}
	return nil
}

// ratePercent converts a speed multiplier to edge-tts's signed percent
// syntax ("+10%", "-5%").
func ratePercent(speed float64) string {
	if speed <= 0 {
		speed = 1.0
	}
	percent := int(math.Round((speed - 1.0) * 100))
	return fmt.Sprintf("%+d%%", percent)
}

// pitchHz converts a baseline shift to edge-tts's signed Hz syntax ("+15Hz").
func pitchHz(shift float64) string {
	return fmt.Sprintf("%+dHz", int(math.Round(shift)))
}

// volumePercent converts a dB gain to edge-tts's signed percent syntax.
func volumePercent(gainDB float64) string {
	percent := int(math.Round((math.Pow(10, gainDB/20) - 1) * 100))
	return fmt.Sprintf("%+d%%", percent)
}
