// Package httpapi is the thin JSON-over-HTTP plumbing shared by the
// external service clients (ASR, separation, synthesis, lip sync).
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dubber/internal/services"
)

// Client wraps one service base URL.
type Client struct {
	baseURL string
	http    *http.Client
	service string
}

// New constructs a client for a service rooted at baseURL.
func New(service, baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		service: service,
	}
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string { return c.baseURL }

// PostJSON sends body as JSON to path and decodes the response into out.
// out may be nil when the caller only cares about success.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return services.Wrap(services.ErrValidation, c.service, "encode request", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrValidation, c.service, "build request", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

// GetJSON fetches path and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, c.service, "build request", path, err)
	}
	return c.do(req, path, out)
}

// PostRaw sends a prepared request body (e.g. multipart) and decodes the
// response into out.
func (c *Client) PostRaw(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return services.Wrap(services.ErrValidation, c.service, "build request", path, err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalCall, c.service, path, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return services.Wrap(services.ErrExternalCall, c.service, path, "read response", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, c.service, path,
			fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw)), nil)
	case resp.StatusCode >= 400:
		return services.Wrap(services.ErrExternalCall, c.service, path,
			fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return services.Wrap(services.ErrExternalCall, c.service, path, "decode response", err)
	}
	return nil
}

func truncate(raw []byte) string {
	const limit = 512
	text := strings.TrimSpace(string(raw))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}

// Retry runs op up to attempts times, backing off between retryable
// failures. Non-retryable errors return immediately.
func Retry(ctx context.Context, attempts int, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !services.IsRetryable(lastErr) || attempt == attempts-1 {
			return lastErr
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
	return lastErr
}
