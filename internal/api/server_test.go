package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dubber/internal/api"
	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/storage"
	"dubber/internal/store"
)

type harness struct {
	store  *store.Store
	paths  storage.Paths
	client *api.Client
	url    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StorageDir = dir
	cfg.Paths.LogDir = dir
	cfg.Paths.APIBind = "127.0.0.1:0"

	st, err := store.OpenPath(filepath.Join(dir, "dubber.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	srv := api.NewServer(&cfg, st, nil, logging.NewNop())
	if srv == nil {
		t.Fatal("expected a server for a configured bind address")
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &harness{
		store:  st,
		paths:  storage.NewPaths(dir),
		client: api.NewClient(ts.URL, 5*time.Second),
		url:    ts.URL,
	}
}

func TestSubmitAndGet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, err := h.client.Submit(ctx, api.SubmitRequest{
		SourceURL:      "https://example.com/talk.mp4",
		TargetLanguage: "es",
		SourceLanguage: "en",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if video.Status != string(store.StatusPending) {
		t.Fatalf("expected pending, got %s", video.Status)
	}
	if video.Mode != string(store.ModeChunked) {
		t.Fatalf("expected default chunked mode, got %s", video.Mode)
	}
	if video.SourceLanguage != "en" {
		t.Fatalf("expected source language persisted, got %q", video.SourceLanguage)
	}

	fetched, err := h.client.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.SourceURL != "https://example.com/talk.mp4" {
		t.Fatalf("unexpected source url %q", fetched.SourceURL)
	}
}

func TestSubmitRequiresSource(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Submit(context.Background(), api.SubmitRequest{TargetLanguage: "es"})
	if err == nil {
		t.Fatal("expected submit without a source to fail")
	}
}

func TestSubmitRejectsUnknownMode(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Submit(context.Background(), api.SubmitRequest{
		SourceURL:      "https://example.com/talk.mp4",
		TargetLanguage: "es",
		Mode:           "streaming",
	})
	if err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("expected unknown mode error, got %v", err)
	}
}

func TestGetUnknownVideoReturnsNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.GetVideo(context.Background(), 4242)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.client.Submit(ctx, api.SubmitRequest{SourceURL: "https://example.com/a.mp4", TargetLanguage: "es"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.client.Submit(ctx, api.SubmitRequest{SourceURL: "https://example.com/b.mp4", TargetLanguage: "es"}); err != nil {
		t.Fatal(err)
	}

	if _, err := h.store.TransitionStatus(ctx, first.ID, store.StatusPending, store.StatusDownloading); err != nil {
		t.Fatal(err)
	}
	if err := h.store.MarkFailed(ctx, first.ID, store.StatusDownloadFailed, "connection reset"); err != nil {
		t.Fatal(err)
	}

	failed, err := h.client.ListVideos(ctx, string(store.StatusDownloadFailed))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != first.ID {
		t.Fatalf("expected only the failed video, got %+v", failed)
	}

	all, err := h.client.ListVideos(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(all))
	}

	if _, err := h.client.ListVideos(ctx, "bogus"); err == nil {
		t.Fatal("expected unknown status filter to fail")
	}
}

func TestRetryConflictsOnNonFailedVideo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, err := h.client.Submit(ctx, api.SubmitRequest{SourceURL: "https://example.com/a.mp4", TargetLanguage: "es"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.client.Retry(ctx, video.ID); err == nil {
		t.Fatal("expected retry of a pending video to fail")
	}
}

func TestRetryAllResetsFailedVideos(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, err := h.client.Submit(ctx, api.SubmitRequest{SourceURL: "https://example.com/a.mp4", TargetLanguage: "es"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.TransitionStatus(ctx, video.ID, store.StatusPending, store.StatusDownloading); err != nil {
		t.Fatal(err)
	}
	if err := h.store.MarkFailed(ctx, video.ID, store.StatusDownloadFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	ids, err := h.client.RetryAll(ctx)
	if err != nil {
		t.Fatalf("retry all: %v", err)
	}
	if len(ids) != 1 || ids[0] != video.ID {
		t.Fatalf("expected [%d], got %v", video.ID, ids)
	}

	fetched, err := h.client.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != string(store.StatusPending) {
		t.Fatalf("expected pending after retry, got %s", fetched.Status)
	}
}

func TestDeleteRemovesVideo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, err := h.client.Submit(ctx, api.SubmitRequest{SourceURL: "https://example.com/a.mp4", TargetLanguage: "es"})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.client.Delete(ctx, video.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.client.GetVideo(ctx, video.ID); err == nil {
		t.Fatal("expected deleted video to be gone")
	}
}

func TestStatusWithoutManagerReportsQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.client.Submit(ctx, api.SubmitRequest{SourceURL: "https://example.com/a.mp4", TargetLanguage: "es"}); err != nil {
		t.Fatal(err)
	}

	status, err := h.client.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Running {
		t.Fatal("expected running=false without a workflow manager")
	}
	if status.Queue.Total != 1 || status.Queue.Pending != 1 {
		t.Fatalf("unexpected queue counts %+v", status.Queue)
	}
}

func TestPlaylistServedWithHLSContentType(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, err := h.client.Submit(ctx, api.SubmitRequest{SourceURL: "https://example.com/a.mp4", TargetLanguage: "es"})
	if err != nil {
		t.Fatal(err)
	}

	playlist := h.paths.Playlist(video.ID)
	if err := os.MkdirAll(filepath.Dir(playlist), 0o755); err != nil {
		t.Fatal(err)
	}
	body := "#EXTM3U\n#EXT-X-VERSION:3\n#EXTINF:8.0,\nchunks/chunk_0000.mp4\n"
	if err := os.WriteFile(playlist, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url+"/api/videos/1/playlist", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("fetch playlist: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/vnd.apple.mpegurl" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestFilesServedFromVideoDir(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	video, err := h.client.Submit(ctx, api.SubmitRequest{SourceURL: "https://example.com/a.mp4", TargetLanguage: "es"})
	if err != nil {
		t.Fatal(err)
	}

	chunk := filepath.Join(h.paths.VideoDir(video.ID), "chunks", "chunk_0000.mp4")
	if err := os.MkdirAll(filepath.Dir(chunk), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(chunk, []byte("mp4-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url+"/api/videos/1/files/chunks/chunk_0000.mp4", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("fetch chunk: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
