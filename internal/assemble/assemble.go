// Package assemble combines published chunk artifacts into the final dubbed
// video and maintains a live playlist over the contiguous prefix of
// finished chunks so playback can begin before the video completes.
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"dubber/internal/chunk"
	"dubber/internal/fileutil"
	"dubber/internal/logging"
	"dubber/internal/media/ffmpeg"
	"dubber/internal/services"
	"dubber/internal/storage"
	"dubber/internal/store"
)

// Assembler concatenates chunk artifacts and writes playback manifests.
type Assembler struct {
	paths            storage.Paths
	runner           *ffmpeg.Runner
	minArtifactBytes int64
	logger           *slog.Logger
}

// New constructs an assembler.
func New(paths storage.Paths, runner *ffmpeg.Runner, minArtifactBytes int64, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if minArtifactBytes <= 0 {
		minArtifactBytes = 1024
	}
	return &Assembler{paths: paths, runner: runner, minArtifactBytes: minArtifactBytes, logger: logger}
}

// ReadyPrefix returns how many chunks are published contiguously from index
// zero. A missing chunk stops the count even when later chunks exist.
func (a *Assembler) ReadyPrefix(videoID int64, windows []chunk.Window) int {
	ready := 0
	for _, w := range windows {
		if !fileutil.ExistsNonTrivial(a.paths.ChunkArtifact(videoID, w.Index), a.minArtifactBytes) {
			break
		}
		ready++
	}
	return ready
}

// Combine concatenates every chunk artifact into the final dubbed file. It
// refuses to run with gaps: a missing middle chunk would silently splice
// mismatched timelines together.
func (a *Assembler) Combine(ctx context.Context, video *store.Video, windows []chunk.Window) (string, error) {
	if len(windows) == 0 {
		return "", services.Wrap(services.ErrValidation, "assemble", "combine", "no chunks planned", nil)
	}
	for _, w := range windows {
		artifact := a.paths.ChunkArtifact(video.ID, w.Index)
		if !fileutil.ExistsNonTrivial(artifact, a.minArtifactBytes) {
			return "", services.Wrap(services.ErrValidation, "assemble", "combine",
				fmt.Sprintf("chunk %d missing or truncated", w.Index), nil)
		}
	}

	listPath := filepath.Join(a.paths.VideoDir(video.ID), "concat.txt")
	var sb strings.Builder
	for _, w := range windows {
		fmt.Fprintf(&sb, "file '%s'\n", a.paths.ChunkArtifact(video.ID, w.Index))
	}
	if err := fileutil.WriteFileAtomic(listPath, []byte(sb.String()), 0o644); err != nil {
		return "", err
	}
	defer os.Remove(listPath)

	final := a.paths.Final(video.ID)
	staged := filepath.Join(a.paths.VideoDir(video.ID), ".dubbed.staged.mp4")
	defer os.Remove(staged)
	if err := a.runner.ConcatFile(ctx, listPath, staged); err != nil {
		return "", err
	}
	if !fileutil.ExistsNonTrivial(staged, a.minArtifactBytes) {
		return "", services.Wrap(services.ErrExternalTool, "assemble", "combine", "concat produced a trivial file", nil)
	}
	if err := fileutil.PublishFile(staged, final); err != nil {
		return "", err
	}
	a.logger.InfoContext(ctx, "final dubbed video assembled",
		logging.Int64("video_id", video.ID),
		logging.Int("chunks", len(windows)))
	return final, nil
}

// WriteManifest rewrites the HLS playlist to cover the contiguous prefix of
// published chunks. The playlist only ever grows; ENDLIST appears once all
// chunks are in.
func (a *Assembler) WriteManifest(videoID int64, windows []chunk.Window) (int, error) {
	ready := a.ReadyPrefix(videoID, windows)

	target := 0
	for _, w := range windows {
		if ceil := int(math.Ceil(w.Duration)); ceil > target {
			target = ceil
		}
	}

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&sb, "#EXT-X-TARGETDURATION:%d\n", target)
	sb.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	for _, w := range windows[:ready] {
		fmt.Fprintf(&sb, "#EXTINF:%.3f,\n", w.Duration)
		fmt.Fprintf(&sb, "chunks/chunk_%d.mp4\n", w.Index)
	}
	if ready == len(windows) {
		sb.WriteString("#EXT-X-ENDLIST\n")
	}

	if err := fileutil.WriteFileAtomic(a.paths.Playlist(videoID), []byte(sb.String()), 0o644); err != nil {
		return ready, err
	}
	return ready, nil
}
