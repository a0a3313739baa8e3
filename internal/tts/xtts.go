package tts

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dubber/internal/httpapi"
	"dubber/internal/services"
	"dubber/internal/storage"
)

// XTTS is the primary backend: a local XTTS server that supports both
// stock voices and one-shot voice cloning.
type XTTS struct {
	api   *httpapi.Client
	paths storage.Paths
}

// NewXTTS constructs the XTTS backend. The service shares the storage root,
// so requests carry storage-relative output paths.
func NewXTTS(baseURL string, timeout time.Duration, paths storage.Paths) *XTTS {
	return &XTTS{
		api:   httpapi.New("xtts", baseURL, timeout),
		paths: paths,
	}
}

// Name implements Backend.
func (x *XTTS) Name() string { return "xtts" }

type xttsSynthesizeRequest struct {
	Text       string  `json:"text"`
	VoiceID    string  `json:"voice_id"`
	Language   string  `json:"language"`
	Speed      float64 `json:"speed"`
	OutputPath string  `json:"output_path"`
}

// Synthesize implements Backend.
func (x *XTTS) Synthesize(ctx context.Context, req Request) error {
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return err
	}
	outputRel, err := x.paths.Rel(req.OutputPath)
	if err != nil {
		return err
	}
	return x.api.PostJSON(ctx, "/synthesize", xttsSynthesizeRequest{
		Text:       req.Text,
		VoiceID:    req.VoiceID,
		Language:   baseLanguage(req.Language),
		Speed:      req.Speed,
		OutputPath: outputRel,
	}, nil)
}

type cloneResponse struct {
	VoiceID string `json:"voice_id"`
}

// Clone registers a cloned voice from a clean speech sample and returns the
// new voice id.
func (x *XTTS) Clone(ctx context.Context, samplePath, name string) (string, error) {
	sample, err := os.Open(samplePath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "xtts", "clone", "open sample", err)
	}
	defer sample.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", filepath.Base(samplePath))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "xtts", "clone", "build form", err)
	}
	if _, err := io.Copy(part, sample); err != nil {
		return "", services.Wrap(services.ErrValidation, "xtts", "clone", "copy sample", err)
	}
	if err := writer.WriteField("name", name); err != nil {
		return "", services.Wrap(services.ErrValidation, "xtts", "clone", "write name field", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrValidation, "xtts", "clone", "close form", err)
	}

	var response cloneResponse
	if err := x.api.PostRaw(ctx, "/clone", writer.FormDataContentType(), &body, &response); err != nil {
		return "", err
	}
	if strings.TrimSpace(response.VoiceID) == "" {
		return "", services.Wrap(services.ErrExternalCall, "xtts", "clone", "service returned empty voice id", nil)
	}
	return response.VoiceID, nil
}

// Voices lists the voice ids the service currently offers.
func (x *XTTS) Voices(ctx context.Context) ([]string, error) {
	var response struct {
		Voices []string `json:"voices"`
	}
	if err := x.api.GetJSON(ctx, "/voices", &response); err != nil {
		return nil, err
	}
	return response.Voices, nil
}

// Ready implements Backend.
func (x *XTTS) Ready(ctx context.Context) error {
	return x.api.GetJSON(ctx, "/ready", nil)
}

// baseLanguage strips region subtags; XTTS expects bare codes ("pt", not
// "pt-BR").
func baseLanguage(code string) string {
	code = strings.TrimSpace(code)
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		return strings.ToLower(code[:idx])
	}
	return strings.ToLower(code)
}
