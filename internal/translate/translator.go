package translate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"dubber/internal/httpapi"
	"dubber/internal/logging"
	"dubber/internal/services"
)

// Translator applies caching and batching policy on top of the chat client.
type Translator struct {
	client   *Client
	cache    *Cache
	attempts int
	batchMin int
	logger   *slog.Logger
}

// NewTranslator wires the client behind the cache. batchMin is the smallest
// number of uncached lines worth a single batched call.
func NewTranslator(client *Client, cache *Cache, attempts, batchMin int, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if attempts < 1 {
		attempts = 1
	}
	if batchMin < 2 {
		batchMin = 2
	}
	return &Translator{client: client, cache: cache, attempts: attempts, batchMin: batchMin, logger: logger}
}

// Translate renders texts from sourceLang into targetLang, preserving order
// and length. Identical source and target languages pass text through.
func (t *Translator) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if SameLanguage(sourceLang, targetLang) {
		out := make([]string, len(texts))
		copy(out, texts)
		return out, nil
	}

	out := make([]string, len(texts))
	var missIdx []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = ""
			continue
		}
		if t.cache != nil {
			if hit, ok := t.cache.Get(text, sourceLang, targetLang); ok {
				out[i] = hit
				continue
			}
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	misses := make([]string, len(missIdx))
	for j, i := range missIdx {
		misses[j] = texts[i]
	}

	var (
		translated []string
		err        error
	)
	if len(misses) >= t.batchMin {
		translated, err = t.translateBatch(ctx, misses, sourceLang, targetLang)
		if err != nil {
			t.logger.WarnContext(ctx, "batch translation failed, falling back to per-line",
				logging.Error(err), logging.Int("lines", len(misses)))
			translated, err = t.translateEach(ctx, t.systemPrompt(sourceLang, targetLang), misses)
		}
	} else {
		translated, err = t.translateEach(ctx, t.systemPrompt(sourceLang, targetLang), misses)
	}
	if err != nil {
		return nil, err
	}
	t.retryUntranslated(ctx, misses, translated, sourceLang, targetLang)

	for j, i := range missIdx {
		out[i] = translated[j]
		// An output still in the source language is kept as the best
		// available result but never cached, so a later run gets another
		// chance at a real translation.
		if t.cache != nil && !looksUntranslated(texts[i], translated[j], sourceLang, targetLang) {
			t.cache.Put(texts[i], sourceLang, targetLang, translated[j])
		}
	}
	return out, nil
}

// retryUntranslated re-runs lines that came back still in the source
// language with a firmer instruction, replacing entries of translated in
// place when the retry produces a real translation.
func (t *Translator) retryUntranslated(ctx context.Context, misses, translated []string, sourceLang, targetLang string) {
	var flagged []int
	for j := range translated {
		if looksUntranslated(misses[j], translated[j], sourceLang, targetLang) {
			flagged = append(flagged, j)
		}
	}
	if len(flagged) == 0 {
		return
	}
	t.logger.WarnContext(ctx, "translations still in source language, retrying with strict instruction",
		logging.Int("lines", len(flagged)))

	strict := t.strictPrompt(sourceLang, targetLang)
	for _, j := range flagged {
		redo, err := t.translateEach(ctx, strict, []string{misses[j]})
		if err != nil {
			t.logger.WarnContext(ctx, "strict retry failed, keeping best available output",
				logging.Error(err))
			continue
		}
		if looksUntranslated(misses[j], redo[0], sourceLang, targetLang) {
			t.logger.WarnContext(ctx, "strict retry still in source language, keeping best available output")
			continue
		}
		translated[j] = redo[0]
	}
}

func (t *Translator) systemPrompt(sourceLang, targetLang string) string {
	return fmt.Sprintf(
		"You are a professional dubbing translator. Translate dialogue from %s to %s. "+
			"Keep the translation close to the original length so it fits the same time slot. "+
			"Preserve tone and register. Return only the translation, no commentary.",
		sourceName(sourceLang), LanguageName(targetLang))
}

func (t *Translator) strictPrompt(sourceLang, targetLang string) string {
	return t.systemPrompt(sourceLang, targetLang) + fmt.Sprintf(
		" The previous attempt came back still in %s. Respond in %s only; never repeat the input text.",
		sourceName(sourceLang), LanguageName(targetLang))
}

func sourceName(sourceLang string) string {
	if strings.TrimSpace(sourceLang) == "" {
		return "the source language"
	}
	return LanguageName(sourceLang)
}

func (t *Translator) translateEach(ctx context.Context, system string, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, text := range texts {
		var result string
		err := httpapi.Retry(ctx, t.attempts, func() error {
			var callErr error
			result, callErr = t.client.Complete(ctx, system, text)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		out[i] = result
	}
	return out, nil
}

var numberedLine = regexp.MustCompile(`^\s*(\d+)[.)]\s*(.*)$`)

func (t *Translator) translateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	system := t.systemPrompt(sourceLang, targetLang) +
		" The input is a numbered list; respond with the same numbered list, one translation per line."

	var sb strings.Builder
	for i, text := range texts {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.ReplaceAll(text, "\n", " "))
	}
	user := sb.String()

	var out []string
	err := httpapi.Retry(ctx, t.attempts, func() error {
		response, callErr := t.client.Complete(ctx, system, user)
		if callErr != nil {
			return callErr
		}
		parsed, parseErr := parseNumbered(response, len(texts))
		if parseErr != nil {
			// A malformed list is worth one more round trip.
			return services.Wrap(services.ErrTransient, "translate", "batch", parseErr.Error(), nil)
		}
		out = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseNumbered(response string, want int) ([]string, error) {
	out := make([]string, want)
	seen := 0
	for _, line := range strings.Split(response, "\n") {
		match := numberedLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil || index < 1 || index > want {
			continue
		}
		if out[index-1] == "" {
			seen++
		}
		out[index-1] = strings.TrimSpace(match[2])
	}
	if seen != want {
		return nil, fmt.Errorf("expected %d numbered lines, got %d", want, seen)
	}
	for i, text := range out {
		if text == "" {
			return nil, fmt.Errorf("numbered line %d is empty", i+1)
		}
	}
	return out, nil
}
