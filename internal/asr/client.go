// Package asr talks to the transcription service, which returns diarized,
// word-aligned segments plus per-speaker voice metadata.
package asr

import (
	"context"
	"strings"
	"time"

	"dubber/internal/httpapi"
	"dubber/internal/services"
)

// Segment is one diarized utterance in the source language.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
}

// SpeakerInfo carries the acoustic attributes inferred for one diarization
// tag: they seed voice selection downstream.
type SpeakerInfo struct {
	Gender            string  `json:"gender"`
	GenderConfidence  float64 `json:"gender_confidence"`
	AgeGroup          string  `json:"age_group"`
	Emotion           string  `json:"emotion"`
	EmotionConfidence float64 `json:"emotion_confidence"`
}

// Result is the full transcription of one audio file.
type Result struct {
	Language string                 `json:"language"`
	Segments []Segment              `json:"segments"`
	Speakers map[string]SpeakerInfo `json:"speakers"`
}

// Client calls the transcription service.
type Client struct {
	api      *httpapi.Client
	attempts int
}

// New constructs a transcription client.
func New(baseURL string, timeout time.Duration, attempts int) *Client {
	return &Client{
		api:      httpapi.New("asr", baseURL, timeout),
		attempts: attempts,
	}
}

// Analyze transcribes and diarizes the audio at the given storage-relative
// path. The service mounts the same storage root the pipeline writes to.
func (c *Client) Analyze(ctx context.Context, audioPath string) (Result, error) {
	if strings.TrimSpace(audioPath) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "asr", "analyze", "empty audio path", nil)
	}
	request := map[string]string{"audio_path": audioPath}
	var result Result
	err := httpapi.Retry(ctx, c.attempts, func() error {
		return c.api.PostJSON(ctx, "/analyze", request, &result)
	})
	if err != nil {
		return Result{}, err
	}
	cleaned := result.Segments[:0]
	for _, seg := range result.Segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" || seg.End <= seg.Start {
			continue
		}
		if strings.TrimSpace(seg.Speaker) == "" {
			seg.Speaker = "SPEAKER_00"
		}
		cleaned = append(cleaned, seg)
	}
	result.Segments = cleaned
	return result, nil
}

// Ready reports whether the service has loaded its models.
func (c *Client) Ready(ctx context.Context) error {
	return c.api.GetJSON(ctx, "/ready", nil)
}

// Health reports whether the service is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.api.GetJSON(ctx, "/health", nil)
}
