package translate

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"dubber/internal/services"
)

// NormalizeLanguage canonicalizes a user-supplied language code ("es",
// "pt-BR", "zh") into its BCP 47 form.
func NormalizeLanguage(code string) (string, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "", services.Wrap(services.ErrValidation, "translate", "normalize language", "empty language code", nil)
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "translate", "normalize language",
			"unknown language code "+trimmed, err)
	}
	return tag.String(), nil
}

// LanguageName renders the English display name used in translation
// prompts ("es" -> "Spanish"). Unknown codes fall back to the raw code so a
// prompt can still be formed.
func LanguageName(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return code
	}
	return name
}

// SameLanguage reports whether two codes share a base language, ignoring
// region and script differences.
func SameLanguage(a, b string) bool {
	tagA, errA := language.Parse(strings.TrimSpace(a))
	tagB, errB := language.Parse(strings.TrimSpace(b))
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	baseA, _ := tagA.Base()
	baseB, _ := tagB.Base()
	return baseA == baseB
}

// languageScripts maps base languages written outside Latin script to their
// unicode ranges. Everything unlisted is treated as Latin.
var languageScripts = map[string][]*unicode.RangeTable{
	"ru": {unicode.Cyrillic},
	"uk": {unicode.Cyrillic},
	"bg": {unicode.Cyrillic},
	"sr": {unicode.Cyrillic, unicode.Latin},
	"zh": {unicode.Han},
	"ja": {unicode.Han, unicode.Hiragana, unicode.Katakana},
	"ko": {unicode.Hangul},
	"ar": {unicode.Arabic},
	"fa": {unicode.Arabic},
	"ur": {unicode.Arabic},
	"he": {unicode.Hebrew},
	"el": {unicode.Greek},
	"hi": {unicode.Devanagari},
	"mr": {unicode.Devanagari},
	"ne": {unicode.Devanagari},
	"th": {unicode.Thai},
}

func expectedScripts(code string) []*unicode.RangeTable {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err == nil {
		base, _ := tag.Base()
		if scripts, ok := languageScripts[base.String()]; ok {
			return scripts
		}
	}
	return []*unicode.RangeTable{unicode.Latin}
}

// scriptRatio is the share of letters in text belonging to any of the given
// scripts. Text with no letters counts as fully matching.
func scriptRatio(text string, scripts []*unicode.RangeTable) float64 {
	letters, matched := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		for _, script := range scripts {
			if unicode.Is(script, r) {
				matched++
				break
			}
		}
	}
	if letters == 0 {
		return 1
	}
	return float64(matched) / float64(letters)
}

// looksUntranslated reports whether a model response is obviously still in
// the source language: a verbatim echo of the input, or, when source and
// target use different scripts, text written mostly outside the target
// script.
func looksUntranslated(source, output, sourceLang, targetLang string) bool {
	normalized := normalizeForCompare(source)
	if normalized != "" && normalized == normalizeForCompare(output) {
		return true
	}
	targetScripts := expectedScripts(targetLang)
	if sameScripts(expectedScripts(sourceLang), targetScripts) {
		return false
	}
	return scriptRatio(output, targetScripts) < 0.5
}

func normalizeForCompare(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func sameScripts(a, b []*unicode.RangeTable) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
