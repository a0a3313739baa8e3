// Package ffmpeg wraps the ffmpeg binary behind typed operations so the
// pipeline stages never assemble command lines themselves.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"dubber/internal/services"
)

type commandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Runner executes ffmpeg invocations.
type Runner struct {
	binary string
	run    commandFunc
}

// SetCommandRunnerForTests swaps the command executor and returns a restore
// func.
func (r *Runner) SetCommandRunnerForTests(fn func(ctx context.Context, name string, args ...string) ([]byte, error)) func() {
	prev := r.run
	r.run = fn
	return func() { r.run = prev }
}

// New constructs a Runner for the given ffmpeg binary.
func New(binary string) *Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Runner{binary: binary, run: runCommand}
}

// Run invokes ffmpeg with -hide_banner -y plus args. Output is folded into
// the returned error on failure.
func (r *Runner) Run(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-y", "-loglevel", "error"}, args...)
	output, err := r.run(ctx, r.binary, full...)
	if err != nil {
		detail := strings.TrimSpace(string(output))
		return services.Wrap(services.ErrExternalTool, "ffmpeg", strings.Join(args, " "), detail, err)
	}
	return nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// ExtractMonoAudio produces the 16 kHz mono PCM rendition ASR consumes.
func (r *Runner) ExtractMonoAudio(ctx context.Context, input, output string) error {
	return r.Run(ctx,
		"-i", input,
		"-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1",
		output,
	)
}

// ExtractStereoAudio produces the 44.1 kHz stereo PCM rendition separation
// and mixing consume.
func (r *Runner) ExtractStereoAudio(ctx context.Context, input, output string) error {
	return r.Run(ctx,
		"-i", input,
		"-vn", "-acodec", "pcm_s16le", "-ar", "44100", "-ac", "2",
		output,
	)
}

// ExtractWindow cuts [start, start+duration) out of an audio file without
// re-encoding decisions leaking into callers.
func (r *Runner) ExtractWindow(ctx context.Context, input string, start, duration float64, output string) error {
	return r.Run(ctx,
		"-ss", formatSeconds(start),
		"-i", input,
		"-t", formatSeconds(duration),
		"-acodec", "pcm_s16le",
		output,
	)
}

// CutVideoChunk extracts one chunk of the original container. Stream copy
// keeps chunk extraction cheap; the mux step re-encodes audio later.
func (r *Runner) CutVideoChunk(ctx context.Context, input string, start, duration float64, output string) error {
	return r.Run(ctx,
		"-ss", formatSeconds(start),
		"-i", input,
		"-t", formatSeconds(duration),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		output,
	)
}

// AdjustTempo applies a chain of atempo factors. Each factor must already be
// inside ffmpeg's per-operation range; chaining is the caller's plan.
func (r *Runner) AdjustTempo(ctx context.Context, input string, factors []float64, output string) error {
	if len(factors) == 0 {
		return services.Wrap(services.ErrValidation, "ffmpeg", "adjust tempo", "no tempo factors", nil)
	}
	parts := make([]string, len(factors))
	for i, factor := range factors {
		if factor < 0.5 || factor > 2.0 {
			return services.Wrap(services.ErrValidation, "ffmpeg", "adjust tempo",
				fmt.Sprintf("atempo factor %0.4f outside [0.5, 2.0]", factor), nil)
		}
		parts[i] = "atempo=" + strconv.FormatFloat(factor, 'f', 4, 64)
	}
	return r.Run(ctx,
		"-i", input,
		"-filter:a", strings.Join(parts, ","),
		output,
	)
}

// TrimWithFade hard-trims the clip to duration and fades the tail out so the
// cut is not audible as a click.
func (r *Runner) TrimWithFade(ctx context.Context, input string, duration float64, fadeSeconds float64, output string) error {
	fadeStart := duration - fadeSeconds
	if fadeStart < 0 {
		fadeStart = 0
		fadeSeconds = duration
	}
	filter := fmt.Sprintf("atrim=0:%s,afade=t=out:st=%s:d=%s",
		formatSeconds(duration), formatSeconds(fadeStart), formatSeconds(fadeSeconds))
	return r.Run(ctx,
		"-i", input,
		"-filter:a", filter,
		output,
	)
}

// AudioFilter applies an arbitrary -filter:a graph to a single input.
func (r *Runner) AudioFilter(ctx context.Context, input, filter, output string) error {
	if strings.TrimSpace(filter) == "" {
		return services.Wrap(services.ErrValidation, "ffmpeg", "audio filter", "empty filter", nil)
	}
	return r.Run(ctx,
		"-i", input,
		"-filter:a", filter,
		output,
	)
}

// TrimSilence removes leading and trailing silence from a synthesized clip.
func (r *Runner) TrimSilence(ctx context.Context, input, output string) error {
	const filter = "silenceremove=start_periods=1:start_threshold=-50dB:start_silence=0.05," +
		"areverse,silenceremove=start_periods=1:start_threshold=-50dB:start_silence=0.05,areverse"
	return r.Run(ctx,
		"-i", input,
		"-filter:a", filter,
		output,
	)
}

// Silence generates a silent clip of the given duration.
func (r *Runner) Silence(ctx context.Context, duration float64, sampleRate, channels int, output string) error {
	layout := "stereo"
	if channels == 1 {
		layout = "mono"
	}
	src := fmt.Sprintf("anullsrc=r=%d:cl=%s", sampleRate, layout)
	return r.Run(ctx,
		"-f", "lavfi",
		"-i", src,
		"-t", formatSeconds(duration),
		"-acodec", "pcm_s16le",
		output,
	)
}

// ConcatFile stream-copies the entries of an ffconcat list into output.
func (r *Runner) ConcatFile(ctx context.Context, listPath, output string) error {
	return r.Run(ctx,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		output,
	)
}

// Mux replaces the container's audio with the dubbed track, copying video
// and encoding audio to AAC.
func (r *Runner) Mux(ctx context.Context, video, audio, output string) error {
	return r.Run(ctx,
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		output,
	)
}

// ReduceVolume writes a volume-scaled copy, used as the degraded bed when
// separation is unavailable.
func (r *Runner) ReduceVolume(ctx context.Context, input string, volume float64, output string) error {
	return r.Run(ctx,
		"-i", input,
		"-filter:a", fmt.Sprintf("volume=%0.3f", volume),
		output,
	)
}

// MixGraph runs an arbitrary filter_complex mix over the given inputs. The
// mix package assembles the graph.
func (r *Runner) MixGraph(ctx context.Context, inputs []string, graph, outLabel, output string) error {
	if len(inputs) == 0 {
		return services.Wrap(services.ErrValidation, "ffmpeg", "mix graph", "no inputs", nil)
	}
	args := make([]string, 0, len(inputs)*2+10)
	for _, input := range inputs {
		args = append(args, "-i", input)
	}
	args = append(args,
		"-filter_complex", graph,
		"-map", "["+outLabel+"]",
		"-acodec", "pcm_s16le",
		output,
	)
	return r.Run(ctx, args...)
}
