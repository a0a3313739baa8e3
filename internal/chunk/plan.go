// Package chunk splits a video into fixed windows and runs the full
// dubbing pass (transcribe, translate, synthesize, fit, mix, mux) on each
// one, publishing a terminal per-chunk artifact.
package chunk

import (
	"math"

	"dubber/internal/services"
)

// Window is one chunk's position in the source timeline.
type Window struct {
	Index    int
	Start    float64
	Duration float64
}

// End is the window's end position.
func (w Window) End() float64 {
	return w.Start + w.Duration
}

// SizePolicy picks the chunk length from the video duration: short videos
// get small chunks for fast first output, long videos get large chunks to
// amortize per-chunk overhead.
type SizePolicy struct {
	ShortChunkSeconds  int
	MediumChunkSeconds int
	LongChunkSeconds   int
	ShortVideoSeconds  float64
	MediumVideoSeconds float64
}

// DefaultSizePolicy mirrors the pipeline defaults.
func DefaultSizePolicy() SizePolicy {
	return SizePolicy{
		ShortChunkSeconds:  8,
		MediumChunkSeconds: 30,
		LongChunkSeconds:   60,
		ShortVideoSeconds:  90,
		MediumVideoSeconds: 600,
	}
}

// ChunkSeconds returns the chunk length for a video duration.
func (p SizePolicy) ChunkSeconds(videoSeconds float64) int {
	switch {
	case videoSeconds <= p.ShortVideoSeconds:
		return p.ShortChunkSeconds
	case videoSeconds <= p.MediumVideoSeconds:
		return p.MediumChunkSeconds
	default:
		return p.LongChunkSeconds
	}
}

// Plan slices the video into windows. The final window absorbs the
// remainder, so it may be shorter than the nominal chunk length but never
// zero.
func Plan(videoSeconds float64, chunkSeconds int) ([]Window, error) {
	if videoSeconds <= 0 {
		return nil, services.Wrap(services.ErrValidation, "chunk", "plan", "video duration must be positive", nil)
	}
	if chunkSeconds <= 0 {
		return nil, services.Wrap(services.ErrValidation, "chunk", "plan", "chunk length must be positive", nil)
	}
	size := float64(chunkSeconds)
	count := int(math.Ceil(videoSeconds / size))
	windows := make([]Window, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * size
		duration := size
		if start+duration > videoSeconds {
			duration = videoSeconds - start
		}
		if duration <= 0 {
			break
		}
		windows = append(windows, Window{Index: i, Start: start, Duration: duration})
	}
	return windows, nil
}
