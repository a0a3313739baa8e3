package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the typed HTTP client the CLI uses against the daemon API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a client for the daemon listening at bind
// (host:port or a full URL).
func NewClient(bind string, timeout time.Duration) *Client {
	base := strings.TrimSpace(bind)
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Status fetches daemon and queue diagnostics.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

// ListVideos fetches videos, optionally filtered by status.
func (c *Client) ListVideos(ctx context.Context, statuses ...string) ([]Video, error) {
	path := "/api/videos"
	if len(statuses) > 0 {
		params := make([]string, 0, len(statuses))
		for _, status := range statuses {
			params = append(params, "status="+status)
		}
		path += "?" + strings.Join(params, "&")
	}
	var resp VideoListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Videos, nil
}

// GetVideo fetches one video.
func (c *Client) GetVideo(ctx context.Context, id int64) (Video, error) {
	var resp Video
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/videos/%d", id), nil, &resp)
	return resp, err
}

// Submit queues a new video for dubbing.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Video, error) {
	var resp Video
	err := c.do(ctx, http.MethodPost, "/api/videos", req, &resp)
	return resp, err
}

// Retry resumes a failed video from its failed stage.
func (c *Client) Retry(ctx context.Context, id int64) (Video, error) {
	var resp Video
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/videos/%d/retry", id), nil, &resp)
	return resp, err
}

// RetryAll resumes every failed video.
func (c *Client) RetryAll(ctx context.Context) ([]int64, error) {
	var resp RetryAllResponse
	if err := c.do(ctx, http.MethodPost, "/api/videos/retry-all", nil, &resp); err != nil {
		return nil, err
	}
	return resp.VideoIDs, nil
}

// Delete removes a video and its database records.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/videos/%d", id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("daemon API address not configured")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d for %s %s", resp.StatusCode, method, path)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
