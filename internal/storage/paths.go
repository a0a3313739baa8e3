// Package storage resolves the per-video filesystem namespace the pipeline
// components share. Components receive a Paths value explicitly; nothing in
// the repository reads storage locations from process-wide state.
package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Paths resolves artifact locations beneath a single storage root. External
// services mount the same root, so Rel produces the storage-relative paths
// used on the wire.
type Paths struct {
	root string
}

// NewPaths constructs a resolver rooted at storageDir.
func NewPaths(storageDir string) Paths {
	return Paths{root: filepath.Clean(storageDir)}
}

// Root returns the storage root directory.
func (p Paths) Root() string { return p.root }

// VideoDir is the namespace for everything belonging to one video.
func (p Paths) VideoDir(videoID int64) string {
	return filepath.Join(p.root, "videos", fmt.Sprintf("%d", videoID))
}

// Original is the downloaded source container.
func (p Paths) Original(videoID int64, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp4"
	}
	return filepath.Join(p.VideoDir(videoID), "original."+ext)
}

// TranscribeAudio is the mono 16 kHz rendition consumed by ASR.
func (p Paths) TranscribeAudio(videoID int64) string {
	return filepath.Join(p.VideoDir(videoID), "audio", "transcribe.wav")
}

// MixAudio is the stereo 44.1 kHz rendition consumed by separation and mixing.
func (p Paths) MixAudio(videoID int64) string {
	return filepath.Join(p.VideoDir(videoID), "audio", "mix.wav")
}

// StemsDir holds whole-video separation output.
func (p Paths) StemsDir(videoID int64) string {
	return filepath.Join(p.VideoDir(videoID), "audio", "stems")
}

// BedStem is the background (no-vocals) track.
func (p Paths) BedStem(videoID int64) string {
	return filepath.Join(p.StemsDir(videoID), "no_vocals.wav")
}

// VocalStem is the isolated vocals track.
func (p Paths) VocalStem(videoID int64) string {
	return filepath.Join(p.StemsDir(videoID), "vocals.wav")
}

// ChunkWorkDir holds a chunk's intermediate files; removed after the chunk
// artifact is published.
func (p Paths) ChunkWorkDir(videoID int64, index int) string {
	return filepath.Join(p.VideoDir(videoID), "chunks", fmt.Sprintf("work_%d", index))
}

// ChunkArtifact is a chunk's terminal muxed file.
func (p Paths) ChunkArtifact(videoID int64, index int) string {
	return filepath.Join(p.VideoDir(videoID), "chunks", fmt.Sprintf("chunk_%d.mp4", index))
}

// ChunksDir holds the terminal chunk artifacts.
func (p Paths) ChunksDir(videoID int64) string {
	return filepath.Join(p.VideoDir(videoID), "chunks")
}

// SegmentAudio is a segment's synthesized speech clip.
func (p Paths) SegmentAudio(videoID, segmentID int64) string {
	return filepath.Join(p.VideoDir(videoID), "segments", fmt.Sprintf("seg_%d.wav", segmentID))
}

// FittedAudio is a segment's time-fit clip.
func (p Paths) FittedAudio(videoID, segmentID int64) string {
	return filepath.Join(p.VideoDir(videoID), "segments", fmt.Sprintf("seg_%d_fit.wav", segmentID))
}

// ClonedSample is the clean vocal sample used for one-time voice cloning.
func (p Paths) ClonedSample(videoID int64, diarizationKey string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, diarizationKey)
	return filepath.Join(p.VideoDir(videoID), "cloned", safe+".wav")
}

// MixedTrack is the final mixed audio for linear mode.
func (p Paths) MixedTrack(videoID int64) string {
	return filepath.Join(p.VideoDir(videoID), "audio", "mixed.wav")
}

// Final is the assembled dubbed artifact.
func (p Paths) Final(videoID int64) string {
	return filepath.Join(p.VideoDir(videoID), "dubbed.mp4")
}

// Playlist is the live-growing HLS manifest.
func (p Paths) Playlist(videoID int64) string {
	return filepath.Join(p.VideoDir(videoID), "playlist.m3u8")
}

// Rel converts an absolute path under the storage root into the relative
// form external services expect.
func (p Paths) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(p.root, abs)
	if err != nil {
		return "", fmt.Errorf("path %s outside storage root: %w", abs, err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s outside storage root", abs)
	}
	return filepath.ToSlash(rel), nil
}
