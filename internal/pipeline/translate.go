package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"dubber/internal/logging"
	"dubber/internal/stage"
	"dubber/internal/store"
	"dubber/internal/translate"
)

// Translate converts every stored segment's source text into the target
// language for linear mode.
type Translate struct {
	store      *store.Store
	translator *translate.Translator
	configured bool
	logger     *slog.Logger
}

// NewTranslate constructs the linear translation stage handler.
func NewTranslate(st *store.Store, translator *translate.Translator, configured bool, logger *slog.Logger) *Translate {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Translate{store: st, translator: translator, configured: configured, logger: logger}
}

func (t *Translate) Prepare(ctx context.Context, video *store.Video) error { return nil }

func (t *Translate) Execute(ctx context.Context, video *store.Video) error {
	segments, err := t.store.ListSegments(ctx, video.ID)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.SourceText
	}
	translated, err := t.translator.Translate(ctx, texts, video.SourceLanguage, video.TargetLanguage)
	if err != nil {
		return err
	}
	for i, seg := range segments {
		if strings.TrimSpace(translated[i]) == "" {
			continue
		}
		if err := t.store.UpdateSegmentTranslation(ctx, seg.ID, translated[i]); err != nil {
			return err
		}
	}
	video.SetProgress("translate", "translation complete", 100)
	return nil
}

func (t *Translate) HealthCheck(ctx context.Context) stage.Health {
	if !t.configured {
		return stage.Unhealthy("translate", "translation API key not configured")
	}
	return stage.Healthy("translate")
}
