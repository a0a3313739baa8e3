// Package download fetches the source video into the per-video storage
// namespace, from either a local path or an HTTP(S) URL.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"dubber/internal/fileutil"
	"dubber/internal/logging"
	"dubber/internal/services"
	"dubber/internal/storage"
	"dubber/internal/store"
)

// Downloader materializes source videos under the storage root.
type Downloader struct {
	paths  storage.Paths
	http   *http.Client
	logger *slog.Logger
}

// New constructs a downloader. timeout bounds a whole transfer.
func New(paths storage.Paths, timeout time.Duration, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Downloader{
		paths:  paths,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Fetch places the video's source file at its canonical original location
// and returns the absolute path. Local paths are copied; URLs are streamed
// through a partial sibling so a crash never leaves a plausible-looking
// original behind.
func (d *Downloader) Fetch(ctx context.Context, video *store.Video) (string, error) {
	switch {
	case strings.TrimSpace(video.SourcePath) != "":
		return d.fetchLocal(video)
	case strings.TrimSpace(video.SourceURL) != "":
		return d.fetchURL(ctx, video)
	default:
		return "", services.Wrap(services.ErrValidation, "download", "fetch", "video has no source", nil)
	}
}

func (d *Downloader) fetchLocal(video *store.Video) (string, error) {
	source := strings.TrimSpace(video.SourcePath)
	info, err := os.Stat(source)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "download", "fetch", source, err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrValidation, "download", "fetch", source+" is a directory", nil)
	}
	dest := d.paths.Original(video.ID, filepath.Ext(source))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := fileutil.CopyFile(source, dest); err != nil {
		return "", fmt.Errorf("copy source: %w", err)
	}
	return dest, nil
}

func (d *Downloader) fetchURL(ctx context.Context, video *store.Video) (string, error) {
	rawURL := strings.TrimSpace(video.SourceURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", services.Wrap(services.ErrValidation, "download", "fetch", "unsupported url "+rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "download", "fetch", "build request", err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrExternalCall, "download", "fetch", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return "", services.Wrap(services.ErrTransient, "download", "fetch",
			fmt.Sprintf("%s: status %d", rawURL, resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return "", services.Wrap(services.ErrExternalCall, "download", "fetch",
			fmt.Sprintf("%s: status %d", rawURL, resp.StatusCode), nil)
	}

	dest := d.paths.Original(video.ID, extensionFor(parsed, resp.Header.Get("Content-Type")))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	partial := fileutil.TempSibling(dest)
	defer os.Remove(partial)

	out, err := os.Create(partial)
	if err != nil {
		return "", err
	}
	written, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "download", "fetch", "transfer interrupted", err)
	}
	if closeErr != nil {
		return "", closeErr
	}
	if written == 0 {
		return "", services.Wrap(services.ErrExternalCall, "download", "fetch", "empty response body", nil)
	}
	if err := fileutil.PublishFile(partial, dest); err != nil {
		return "", err
	}
	d.logger.InfoContext(ctx, "downloaded source",
		logging.Int64("video_id", video.ID),
		logging.Int64("bytes", written))
	return dest, nil
}

func extensionFor(parsed *url.URL, contentType string) string {
	if ext := strings.TrimPrefix(path.Ext(parsed.Path), "."); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch {
	case strings.Contains(contentType, "webm"):
		return "webm"
	case strings.Contains(contentType, "x-matroska"):
		return "mkv"
	default:
		return "mp4"
	}
}
