// Package mix assembles the ffmpeg filter graph that lays fitted speech
// clips over the background bed: each clip is band-limited and compressed,
// the bed is shaped and ducked under active speech, and the result is
// normalized and limited.
package mix

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"dubber/internal/services"
)

// Clip is one fitted speech clip placed on the output timeline.
type Clip struct {
	Path     string
	Start    float64
	Duration float64
}

// End is the clip's end position on the timeline.
func (c Clip) End() float64 {
	return c.Start + c.Duration
}

// Options bound the mix behavior.
type Options struct {
	// BedVolume scales the background track before ducking.
	BedVolume float64
	// DuckThresholdDB, DuckRatio, DuckAttackMS, and DuckReleaseMS drive
	// the sidechain compressor that lowers the bed under speech.
	DuckThresholdDB float64
	DuckRatio       float64
	DuckAttackMS    float64
	DuckReleaseMS   float64
	// TargetLUFS is the loudnorm integrated loudness target.
	TargetLUFS float64
	// MinGapSeconds is the smallest allowed silence between consecutive
	// clips after overlap resolution.
	MinGapSeconds float64
}

// DefaultOptions mirrors the pipeline defaults.
func DefaultOptions() Options {
	return Options{
		BedVolume:       0.45,
		DuckThresholdDB: -30,
		DuckRatio:       8,
		DuckAttackMS:    5,
		DuckReleaseMS:   250,
		TargetLUFS:      -16,
		MinGapSeconds:   0.06,
	}
}

// Graph is a ready-to-run filter_complex invocation.
type Graph struct {
	// Inputs lists the -i arguments in order. The bed, when present, is
	// always input 0.
	Inputs []string
	// Filter is the filter_complex expression.
	Filter string
	// OutLabel names the graph's output pad.
	OutLabel string
}

// ResolveOverlaps returns a copy of clips sorted by start time with starts
// pushed forward so consecutive clips keep at least minGap of separation.
// A pushed clip whose duration no longer fits the room before its successor
// is trimmed back, so one shift does not cascade through the rest of the
// timeline. BuildGraph honors the trimmed duration when rendering.
func ResolveOverlaps(clips []Clip, minGap float64) []Clip {
	if len(clips) == 0 {
		return nil
	}
	resolved := make([]Clip, len(clips))
	copy(resolved, clips)
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Start < resolved[j].Start
	})
	for i := 1; i < len(resolved); i++ {
		earliest := resolved[i-1].End() + minGap
		if resolved[i].Start < earliest {
			resolved[i].Start = earliest
			if i+1 < len(resolved) {
				room := resolved[i+1].Start - minGap - resolved[i].Start
				if room > 0 && resolved[i].Duration > room {
					resolved[i].Duration = room
				}
			}
		}
	}
	return resolved
}

// voiceShape conditions each clip before placement: band-limit to the
// speech range, lift the clarity and presence bands, tame peaks with a
// light compressor, and apply a small fixed gain.
const voiceShape = "highpass=f=80,lowpass=f=12000," +
	"equalizer=f=2500:t=q:w=1.0:g=2,equalizer=f=4500:t=q:w=1.5:g=1.5," +
	"acompressor=threshold=-18dB:ratio=3:attack=10:release=120,volume=1.1"

// bedShape rolls off rumble and carves the speech band out of the bed so
// residual vocal bleed does not fight the dubbed voices.
const bedShape = "highpass=f=40,equalizer=f=3000:t=q:w=2.0:g=-4"

// BuildGraph produces the mix invocation. An empty bedPath yields the
// voice-only fallback used when separation is unavailable and no original
// bed could be prepared.
func BuildGraph(bedPath string, clips []Clip, opts Options) (Graph, error) {
	if len(clips) == 0 {
		return Graph{}, services.Wrap(services.ErrValidation, "mix", "build graph", "no clips to mix", nil)
	}
	for _, clip := range clips {
		if strings.TrimSpace(clip.Path) == "" {
			return Graph{}, services.Wrap(services.ErrValidation, "mix", "build graph", "clip with empty path", nil)
		}
		if clip.Start < 0 {
			return Graph{}, services.Wrap(services.ErrValidation, "mix", "build graph",
				fmt.Sprintf("clip %s starts before zero", clip.Path), nil)
		}
	}

	hasBed := strings.TrimSpace(bedPath) != ""
	var (
		inputs []string
		stages []string
	)
	clipBase := 0
	if hasBed {
		inputs = append(inputs, bedPath)
		clipBase = 1
		stages = append(stages, fmt.Sprintf("[0:a]volume=%0.3f,%s[bed]", opts.BedVolume, bedShape))
	}

	voiceLabels := make([]string, len(clips))
	for i, clip := range clips {
		inputs = append(inputs, clip.Path)
		delayMS := int(math.Round(clip.Start * 1000))
		label := fmt.Sprintf("v%d", i)
		shape := voiceShape
		if clip.Duration > 0 {
			// Honor overlap-resolution trims; a full-length duration is a no-op.
			shape = fmt.Sprintf("atrim=0:%0.3f,%s", clip.Duration, voiceShape)
		}
		stages = append(stages, fmt.Sprintf("[%d:a]%s,adelay=%d|%d[%s]",
			clipBase+i, shape, delayMS, delayMS, label))
		voiceLabels[i] = "[" + label + "]"
	}

	voiceLabel := strings.Trim(voiceLabels[0], "[]")
	if len(clips) > 1 {
		voiceLabel = "voice"
		stages = append(stages, fmt.Sprintf("%samix=inputs=%d:normalize=0[voice]",
			strings.Join(voiceLabels, ""), len(clips)))
	}

	outLabel := "out"
	if hasBed {
		stages = append(stages,
			fmt.Sprintf("[%s]asplit=2[sc][vmix]", voiceLabel),
			fmt.Sprintf("[bed][sc]sidechaincompress=threshold=%0.6f:ratio=%g:attack=%g:release=%g[ducked]",
				dbToLinear(opts.DuckThresholdDB), opts.DuckRatio, opts.DuckAttackMS, opts.DuckReleaseMS),
			"[ducked][vmix]amix=inputs=2:normalize=0[mixed]",
			fmt.Sprintf("[mixed]loudnorm=I=%g:TP=-1.5:LRA=11,alimiter=limit=0.97[%s]", opts.TargetLUFS, outLabel),
		)
	} else {
		stages = append(stages,
			fmt.Sprintf("[%s]loudnorm=I=%g:TP=-1.5:LRA=11,alimiter=limit=0.97[%s]", voiceLabel, opts.TargetLUFS, outLabel),
		)
	}

	return Graph{
		Inputs:   inputs,
		Filter:   strings.Join(stages, ";"),
		OutLabel: outLabel,
	}, nil
}

// sidechaincompress wants a linear threshold, config carries dBFS.
func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}
