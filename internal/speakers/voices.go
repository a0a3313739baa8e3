package speakers

import "strings"

// Stock XTTS speakers grouped by perceived gender. Cloned voices replace
// these once a clean sample exists.
var xttsVoices = map[string][]string{
	"female": {
		"Claribel Dervla",
		"Ana Florence",
		"Tammie Ema",
		"Alison Dietlinde",
		"Gracie Wise",
	},
	"male": {
		"Andrew Chipper",
		"Damien Black",
		"Viktor Eka",
		"Luis Moray",
		"Badr Odhiambo",
	},
}

// Edge neural voices per base language and gender, used when the fallback
// backend has to speak.
var edgeVoices = map[string]map[string][]string{
	"en": {
		"female": {"en-US-AriaNeural", "en-US-JennyNeural", "en-GB-SoniaNeural"},
		"male":   {"en-US-GuyNeural", "en-US-ChristopherNeural", "en-GB-RyanNeural"},
	},
	"es": {
		"female": {"es-ES-ElviraNeural", "es-MX-DaliaNeural"},
		"male":   {"es-ES-AlvaroNeural", "es-MX-JorgeNeural"},
	},
	"pt": {
		"female": {"pt-BR-FranciscaNeural", "pt-PT-RaquelNeural"},
		"male":   {"pt-BR-AntonioNeural", "pt-PT-DuarteNeural"},
	},
	"fr": {
		"female": {"fr-FR-DeniseNeural", "fr-CA-SylvieNeural"},
		"male":   {"fr-FR-HenriNeural", "fr-CA-JeanNeural"},
	},
	"de": {
		"female": {"de-DE-KatjaNeural", "de-DE-AmalaNeural"},
		"male":   {"de-DE-ConradNeural", "de-DE-KillianNeural"},
	},
	"it": {
		"female": {"it-IT-ElsaNeural", "it-IT-IsabellaNeural"},
		"male":   {"it-IT-DiegoNeural", "it-IT-GiuseppeNeural"},
	},
	"hi": {
		"female": {"hi-IN-SwaraNeural"},
		"male":   {"hi-IN-MadhurNeural"},
	},
	"ja": {
		"female": {"ja-JP-NanamiNeural"},
		"male":   {"ja-JP-KeitaNeural"},
	},
	"ko": {
		"female": {"ko-KR-SunHiNeural"},
		"male":   {"ko-KR-InJoonNeural"},
	},
	"zh": {
		"female": {"zh-CN-XiaoxiaoNeural", "zh-CN-XiaoyiNeural"},
		"male":   {"zh-CN-YunxiNeural", "zh-CN-YunjianNeural"},
	},
	"ru": {
		"female": {"ru-RU-SvetlanaNeural"},
		"male":   {"ru-RU-DmitryNeural"},
	},
	"ar": {
		"female": {"ar-SA-ZariyahNeural"},
		"male":   {"ar-SA-HamedNeural"},
	},
}

func normalizeGender(gender string) string {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "male", "m":
		return "male"
	case "female", "f":
		return "female"
	default:
		return "female"
	}
}

func baseLang(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		return code[:idx]
	}
	return code
}

// xttsVoice returns the index-th stock voice for a gender, wrapping around
// the pool.
func xttsVoice(gender string, index int) string {
	pool := xttsVoices[normalizeGender(gender)]
	return pool[index%len(pool)]
}

// edgeVoice returns the index-th edge voice for a language and gender. An
// unmapped language falls back to English so the fallback backend can still
// speak.
func edgeVoice(targetLang, gender string, index int) string {
	byGender, ok := edgeVoices[baseLang(targetLang)]
	if !ok {
		byGender = edgeVoices["en"]
	}
	pool := byGender[normalizeGender(gender)]
	return pool[index%len(pool)]
}
