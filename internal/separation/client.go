// Package separation obtains the background (no-vocals) bed used under the
// dubbed speech. When the separation service is unavailable the pipeline
// degrades to a volume-reduced copy of the original audio instead of
// failing the video.
package separation

import (
	"context"
	"strings"
	"time"

	"dubber/internal/httpapi"
	"dubber/internal/services"
)

// Client calls the stem separation service.
type Client struct {
	api   *httpapi.Client
	model string
}

// NewClient constructs a separation client.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if strings.TrimSpace(model) == "" {
		model = "htdemucs"
	}
	return &Client{
		api:   httpapi.New("separation", baseURL, timeout),
		model: model,
	}
}

type separateRequest struct {
	VideoID  int64  `json:"video_id"`
	InputRel string `json:"input_rel"`
	Model    string `json:"model"`
	TwoStems bool   `json:"two_stems"`
}

type separateResponse struct {
	OK          bool   `json:"ok"`
	NoVocalsRel string `json:"no_vocals_rel"`
	VocalsRel   string `json:"vocals_rel"`
}

// StemPaths are the storage-relative locations of the separated stems.
type StemPaths struct {
	NoVocalsRel string
	VocalsRel   string
}

// Separate splits the audio at inputRel into vocals and accompaniment.
func (c *Client) Separate(ctx context.Context, videoID int64, inputRel string) (StemPaths, error) {
	if strings.TrimSpace(inputRel) == "" {
		return StemPaths{}, services.Wrap(services.ErrValidation, "separation", "separate", "empty input path", nil)
	}
	request := separateRequest{
		VideoID:  videoID,
		InputRel: inputRel,
		Model:    c.model,
		TwoStems: true,
	}
	var response separateResponse
	if err := c.api.PostJSON(ctx, "/separate", request, &response); err != nil {
		return StemPaths{}, err
	}
	if !response.OK || strings.TrimSpace(response.NoVocalsRel) == "" {
		return StemPaths{}, services.Wrap(services.ErrExternalCall, "separation", "separate", "service reported failure", nil)
	}
	return StemPaths{NoVocalsRel: response.NoVocalsRel, VocalsRel: response.VocalsRel}, nil
}

// Health reports whether the service is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.api.GetJSON(ctx, "/health", nil)
}
