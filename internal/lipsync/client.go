// Package lipsync calls the optional lip synchronization service that
// realigns mouth movement in the dubbed video with the new audio track.
package lipsync

import (
	"context"
	"strings"
	"time"

	"dubber/internal/httpapi"
	"dubber/internal/services"
)

// Client calls the lip sync service.
type Client struct {
	api *httpapi.Client
}

// New constructs a lip sync client.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{api: httpapi.New("lipsync", baseURL, timeout)}
}

type lipsyncRequest struct {
	VideoID   int64  `json:"video_id"`
	VideoRel  string `json:"video_rel"`
	AudioRel  string `json:"audio_rel"`
	OutputRel string `json:"output_rel"`
}

type lipsyncResponse struct {
	OK        bool   `json:"ok"`
	OutputRel string `json:"output_rel"`
}

// Process realigns the video at videoRel against audioRel and writes the
// result to outputRel. All paths are storage-relative.
func (c *Client) Process(ctx context.Context, videoID int64, videoRel, audioRel, outputRel string) (string, error) {
	if strings.TrimSpace(videoRel) == "" || strings.TrimSpace(outputRel) == "" {
		return "", services.Wrap(services.ErrValidation, "lipsync", "process", "video and output paths required", nil)
	}
	var response lipsyncResponse
	err := c.api.PostJSON(ctx, "/lipsync", lipsyncRequest{
		VideoID:   videoID,
		VideoRel:  videoRel,
		AudioRel:  audioRel,
		OutputRel: outputRel,
	}, &response)
	if err != nil {
		return "", err
	}
	if !response.OK {
		return "", services.Wrap(services.ErrExternalCall, "lipsync", "process", "service reported failure", nil)
	}
	if strings.TrimSpace(response.OutputRel) == "" {
		response.OutputRel = outputRel
	}
	return response.OutputRel, nil
}

// Health reports whether the service is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.api.GetJSON(ctx, "/health", nil)
}
