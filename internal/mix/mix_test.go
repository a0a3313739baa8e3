package mix

import (
	"math"
	"strings"
	"testing"
)

func TestResolveOverlapsEnforcesMinGap(t *testing.T) {
	clips := []Clip{
		{Path: "a.wav", Start: 0, Duration: 2.0},
		{Path: "b.wav", Start: 1.5, Duration: 1.0},
		{Path: "c.wav", Start: 5.0, Duration: 1.0},
	}
	resolved := ResolveOverlaps(clips, 0.06)
	if math.Abs(resolved[1].Start-2.06) > 1e-9 {
		t.Fatalf("expected overlapping clip pushed to 2.06, got %v", resolved[1].Start)
	}
	if resolved[2].Start != 5.0 {
		t.Fatalf("non-overlapping clip should not move, got %v", resolved[2].Start)
	}
}

func TestResolveOverlapsCascades(t *testing.T) {
	clips := []Clip{
		{Path: "a.wav", Start: 0, Duration: 3.0},
		{Path: "b.wav", Start: 1.0, Duration: 3.0},
		{Path: "c.wav", Start: 2.0, Duration: 1.0},
	}
	resolved := ResolveOverlaps(clips, 0.06)
	if resolved[1].Start <= resolved[0].End() {
		t.Fatalf("second clip still overlaps: %v <= %v", resolved[1].Start, resolved[0].End())
	}
	if resolved[2].Start <= resolved[1].End() {
		t.Fatalf("third clip still overlaps: %v <= %v", resolved[2].Start, resolved[1].End())
	}
}

func TestResolveOverlapsTrimsPushedClips(t *testing.T) {
	clips := []Clip{
		{Path: "a.wav", Start: 0, Duration: 2.0},
		{Path: "b.wav", Start: 1.5, Duration: 2.0},
		{Path: "c.wav", Start: 2.8, Duration: 1.0},
	}
	resolved := ResolveOverlaps(clips, 0.06)
	if math.Abs(resolved[1].Start-2.06) > 1e-9 {
		t.Fatalf("expected pushed clip at 2.06, got %v", resolved[1].Start)
	}
	// The pushed clip is trimmed into its remaining room instead of
	// shoving the third clip later.
	if resolved[2].Start != 2.8 {
		t.Fatalf("third clip moved to %v", resolved[2].Start)
	}
	if resolved[1].End() > resolved[2].Start-0.06+1e-9 {
		t.Fatalf("pushed clip still overlaps successor: end %v, next start %v",
			resolved[1].End(), resolved[2].Start)
	}
	if resolved[1].Duration >= 2.0 {
		t.Fatalf("pushed clip was not trimmed: %v", resolved[1].Duration)
	}
}

func TestBuildGraphWithBedDucksAndNormalizes(t *testing.T) {
	clips := []Clip{
		{Path: "v0.wav", Start: 0.5, Duration: 1.0},
		{Path: "v1.wav", Start: 3.0, Duration: 1.0},
	}
	graph, err := BuildGraph("bed.wav", clips, DefaultOptions())
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if len(graph.Inputs) != 3 || graph.Inputs[0] != "bed.wav" {
		t.Fatalf("expected bed as input 0, got %v", graph.Inputs)
	}
	for _, want := range []string{"adelay=500|500", "adelay=3000|3000", "sidechaincompress", "loudnorm=I=-16"} {
		if !strings.Contains(graph.Filter, want) {
			t.Fatalf("missing %q in filter %q", want, graph.Filter)
		}
	}
	if graph.OutLabel != "out" {
		t.Fatalf("unexpected out label %q", graph.OutLabel)
	}
}

func TestBuildGraphShapesVoicesAndBed(t *testing.T) {
	clips := []Clip{
		{Path: "v0.wav", Start: 0.5, Duration: 1.25},
		{Path: "v1.wav", Start: 3.0, Duration: 1.0},
	}
	graph, err := BuildGraph("bed.wav", clips, DefaultOptions())
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	wants := []string{
		// Per-voice conditioning ahead of placement.
		"highpass=f=80", "lowpass=f=12000",
		"equalizer=f=2500", "equalizer=f=4500",
		"acompressor=threshold=-18dB", "volume=1.1",
		"atrim=0:1.250",
		// Bed shaped against vocal bleed.
		"highpass=f=40", "equalizer=f=3000:t=q:w=2.0:g=-4",
		// Safety limiter after loudness normalization.
		"loudnorm=I=-16:TP=-1.5:LRA=11,alimiter=limit=0.97",
	}
	for _, want := range wants {
		if !strings.Contains(graph.Filter, want) {
			t.Fatalf("missing %q in filter %q", want, graph.Filter)
		}
	}
}

func TestBuildGraphVoiceOnlyFallback(t *testing.T) {
	clips := []Clip{{Path: "v0.wav", Start: 0, Duration: 1.0}}
	graph, err := BuildGraph("", clips, DefaultOptions())
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if strings.Contains(graph.Filter, "sidechaincompress") {
		t.Fatalf("voice-only graph should not duck: %q", graph.Filter)
	}
	if !strings.Contains(graph.Filter, "loudnorm") {
		t.Fatalf("voice-only graph still normalizes: %q", graph.Filter)
	}
	if !strings.Contains(graph.Filter, "alimiter") {
		t.Fatalf("voice-only graph still limits: %q", graph.Filter)
	}
	if len(graph.Inputs) != 1 {
		t.Fatalf("expected single input, got %v", graph.Inputs)
	}
}

func TestBuildGraphRejectsEmptyClipSet(t *testing.T) {
	if _, err := BuildGraph("bed.wav", nil, DefaultOptions()); err == nil {
		t.Fatal("expected error for empty clip set")
	}
}
