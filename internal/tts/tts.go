// Package tts synthesizes translated dialogue. A primary backend handles
// normal operation; a fallback backend keeps the pipeline moving when the
// primary is down. Every synthesized clip is validated on disk before it is
// accepted.
package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dubber/internal/fileutil"
	"dubber/internal/logging"
	"dubber/internal/services"
)

// Request describes one clip to synthesize.
type Request struct {
	Text     string
	VoiceID  string
	// FallbackVoiceID replaces VoiceID when the fallback backend runs;
	// backends do not share voice namespaces.
	FallbackVoiceID string
	Language        string
	// Speed is the nominal speaking rate multiplier (1.0 = natural).
	Speed float64
	// PitchHz shifts the voice baseline in Hz (0 = natural). Backends
	// without pitch control ignore it.
	PitchHz float64
	// GainDB adjusts output loudness in dB (0 = natural).
	GainDB float64
	// OutputPath is the absolute destination for the clip.
	OutputPath string
}

// Backend synthesizes speech into a file.
type Backend interface {
	Name() string
	Synthesize(ctx context.Context, req Request) error
	Ready(ctx context.Context) error
}

// Synthesizer validates backend output and falls back when the primary
// backend fails.
type Synthesizer struct {
	primary        Backend
	fallback       Backend
	minOutputBytes int64
	logger         *slog.Logger
}

// NewSynthesizer wires the backends. fallback may be nil.
func NewSynthesizer(primary, fallback Backend, minOutputBytes int64, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if minOutputBytes <= 0 {
		minOutputBytes = 1000
	}
	return &Synthesizer{primary: primary, fallback: fallback, minOutputBytes: minOutputBytes, logger: logger}
}

// Synthesize produces the clip, returning the name of the backend that
// succeeded.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", services.Wrap(services.ErrValidation, "tts", "synthesize", "empty text", nil)
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return "", services.Wrap(services.ErrValidation, "tts", "synthesize", "empty output path", nil)
	}
	if req.Speed <= 0 {
		req.Speed = 1.0
	}

	primaryErr := s.attempt(ctx, s.primary, req)
	if primaryErr == nil {
		return s.primary.Name(), nil
	}
	if s.fallback == nil || services.IsFatalInput(primaryErr) {
		return "", primaryErr
	}

	s.logger.WarnContext(ctx, "primary tts backend failed, trying fallback",
		logging.String("primary", s.primary.Name()),
		logging.String("fallback", s.fallback.Name()),
		logging.Error(primaryErr))

	if strings.TrimSpace(req.FallbackVoiceID) != "" {
		req.VoiceID = req.FallbackVoiceID
	}
	if fallbackErr := s.attempt(ctx, s.fallback, req); fallbackErr != nil {
		return "", fmt.Errorf("fallback %s after primary failure (%v): %w",
			s.fallback.Name(), primaryErr, fallbackErr)
	}
	return s.fallback.Name(), nil
}

func (s *Synthesizer) attempt(ctx context.Context, backend Backend, req Request) error {
	if backend == nil {
		return services.Wrap(services.ErrConfiguration, "tts", "synthesize", "no backend configured", nil)
	}
	if err := backend.Synthesize(ctx, req); err != nil {
		return err
	}
	if !fileutil.ExistsNonTrivial(req.OutputPath, s.minOutputBytes) {
		return services.Wrap(services.ErrExternalCall, backend.Name(), "synthesize",
			fmt.Sprintf("output %s missing or below %d bytes", req.OutputPath, s.minOutputBytes), nil)
	}
	return nil
}
