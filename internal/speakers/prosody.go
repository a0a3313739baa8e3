package speakers

import (
	"strings"

	"dubber/internal/store"
)

// Prosody is the delivery applied to one synthesized clip.
type Prosody struct {
	// Rate is the speaking-rate multiplier (1.0 = natural).
	Rate float64
	// PitchHz shifts the voice baseline in Hz (0 = natural).
	PitchHz float64
	// GainDB adjusts clip loudness in dB (0 = natural).
	GainDB float64
}

// ProsodyFor resolves the delivery for one segment. The transcript's own
// emotion annotation wins, then the speaker's stored defaults, then a
// punctuation heuristic on the text being voiced.
func ProsodyFor(seg *store.Segment, speaker *store.Speaker) Prosody {
	if emotion := normalizeEmotion(seg.Emotion); emotion != "" {
		return emotionProsody(emotion)
	}
	if speaker != nil && normalizeEmotion(speaker.Emotion) != "" {
		return Prosody{Rate: speaker.Rate, PitchHz: speaker.Pitch, GainDB: speaker.Gain}
	}
	text := seg.TranslatedText
	if strings.TrimSpace(text) == "" {
		text = seg.SourceText
	}
	return emotionProsody(textEmotion(text))
}

// emotionProsody maps a dominant emotion to delivery adjustments.
func emotionProsody(emotion string) Prosody {
	switch strings.ToLower(strings.TrimSpace(emotion)) {
	case "excited", "happy", "surprised":
		return Prosody{Rate: 1.08, PitchHz: 15, GainDB: 1}
	case "angry":
		return Prosody{Rate: 1.08, PitchHz: -10, GainDB: 2}
	case "sad", "calm":
		return Prosody{Rate: 0.94, PitchHz: -10, GainDB: -1}
	default:
		return Prosody{Rate: 1.0}
	}
}

// normalizeEmotion treats "neutral" as no signal so weaker sources still
// get a say.
func normalizeEmotion(emotion string) string {
	emotion = strings.ToLower(strings.TrimSpace(emotion))
	if emotion == "neutral" {
		return ""
	}
	return emotion
}

// textEmotion guesses delivery from punctuation when nothing upstream
// annotated the segment.
func textEmotion(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.Contains(text, "!"):
		return "excited"
	case strings.HasSuffix(text, "..."):
		return "calm"
	default:
		return ""
	}
}
