package ffmpeg

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dubber/internal/services"
)

type capturedCall struct {
	name string
	args []string
}

func newCaptureRunner(err error) (*Runner, *capturedCall) {
	call := &capturedCall{}
	r := New("ffmpeg")
	r.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		call.name = name
		call.args = args
		if err != nil {
			return []byte("boom"), err
		}
		return nil, nil
	}
	return r, call
}

func TestAdjustTempoChainsFactors(t *testing.T) {
	r, call := newCaptureRunner(nil)
	if err := r.AdjustTempo(context.Background(), "in.wav", []float64{2.0, 1.15}, "out.wav"); err != nil {
		t.Fatalf("AdjustTempo: %v", err)
	}
	joined := strings.Join(call.args, " ")
	if !strings.Contains(joined, "atempo=2.0000,atempo=1.1500") {
		t.Fatalf("expected chained atempo filter, got %q", joined)
	}
}

func TestAdjustTempoRejectsOutOfRangeFactor(t *testing.T) {
	r, _ := newCaptureRunner(nil)
	err := r.AdjustTempo(context.Background(), "in.wav", []float64{2.5}, "out.wav")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunWrapsExternalToolFailure(t *testing.T) {
	r, _ := newCaptureRunner(errors.New("exit status 1"))
	err := r.Run(context.Background(), "-i", "in.wav", "out.wav")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected command output in error, got %v", err)
	}
}

func TestTrimWithFadeClampsFadeStart(t *testing.T) {
	r, call := newCaptureRunner(nil)
	if err := r.TrimWithFade(context.Background(), "in.wav", 0.5, 1.0, "out.wav"); err != nil {
		t.Fatalf("TrimWithFade: %v", err)
	}
	joined := strings.Join(call.args, " ")
	if !strings.Contains(joined, "afade=t=out:st=0.000") {
		t.Fatalf("expected clamped fade start, got %q", joined)
	}
}

func TestMuxMapsVideoAndDubbedAudio(t *testing.T) {
	r, call := newCaptureRunner(nil)
	if err := r.Mux(context.Background(), "video.mp4", "dub.wav", "out.mp4"); err != nil {
		t.Fatalf("Mux: %v", err)
	}
	joined := strings.Join(call.args, " ")
	for _, want := range []string{"-map 0:v:0", "-map 1:a:0", "-c:v copy", "-c:a aac"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %q", want, joined)
		}
	}
}

func TestMixGraphRequiresInputs(t *testing.T) {
	r, _ := newCaptureRunner(nil)
	err := r.MixGraph(context.Background(), nil, "amix", "out", "out.wav")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
