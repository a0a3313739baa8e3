package assemble

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dubber/internal/chunk"
	"dubber/internal/storage"
	"dubber/internal/store"
)

func testVideo() *store.Video {
	return &store.Video{ID: 1}
}

func writeChunk(t *testing.T, paths storage.Paths, videoID int64, index int) {
	t.Helper()
	artifact := paths.ChunkArtifact(videoID, index)
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(artifact, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testWindows() []chunk.Window {
	return []chunk.Window{
		{Index: 0, Start: 0, Duration: 8},
		{Index: 1, Start: 8, Duration: 8},
		{Index: 2, Start: 16, Duration: 2},
	}
}

func TestReadyPrefixStopsAtGap(t *testing.T) {
	paths := storage.NewPaths(t.TempDir())
	a := New(paths, nil, 1024, nil)

	writeChunk(t, paths, 1, 0)
	writeChunk(t, paths, 1, 2) // out of order: chunk 1 missing

	if got := a.ReadyPrefix(1, testWindows()); got != 1 {
		t.Fatalf("expected prefix 1, got %d", got)
	}
	writeChunk(t, paths, 1, 1)
	if got := a.ReadyPrefix(1, testWindows()); got != 3 {
		t.Fatalf("expected prefix 3, got %d", got)
	}
}

func TestWriteManifestGrowsWithPrefix(t *testing.T) {
	paths := storage.NewPaths(t.TempDir())
	a := New(paths, nil, 1024, nil)
	windows := testWindows()

	writeChunk(t, paths, 1, 0)
	ready, err := a.WriteManifest(1, windows)
	if err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	if ready != 1 {
		t.Fatalf("expected 1 ready chunk, got %d", ready)
	}
	body, err := os.ReadFile(paths.Playlist(1))
	if err != nil {
		t.Fatal(err)
	}
	text := string(body)
	if !strings.Contains(text, "#EXTINF:8.000,\nchunks/chunk_0.mp4") {
		t.Fatalf("missing first chunk entry:\n%s", text)
	}
	if strings.Contains(text, "chunk_1.mp4") || strings.Contains(text, "#EXT-X-ENDLIST") {
		t.Fatalf("manifest ahead of published chunks:\n%s", text)
	}

	writeChunk(t, paths, 1, 1)
	writeChunk(t, paths, 1, 2)
	if _, err := a.WriteManifest(1, windows); err != nil {
		t.Fatal(err)
	}
	body, _ = os.ReadFile(paths.Playlist(1))
	if !strings.Contains(string(body), "#EXT-X-ENDLIST") {
		t.Fatalf("expected ENDLIST once all chunks are in:\n%s", body)
	}
}

func TestCombineRefusesGaps(t *testing.T) {
	paths := storage.NewPaths(t.TempDir())
	a := New(paths, nil, 1024, nil)

	writeChunk(t, paths, 1, 0)
	writeChunk(t, paths, 1, 2)
	video := testVideo()
	if _, err := a.Combine(t.Context(), video, testWindows()); err == nil {
		t.Fatal("expected error for missing middle chunk")
	}
}
