package speakers

import (
	"context"
	"path/filepath"
	"testing"

	"dubber/internal/asr"
	"dubber/internal/store"
)

func newTestStore(t *testing.T) (*store.Store, int64) {
	t.Helper()
	s, err := store.OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	video, err := s.NewVideo(context.Background(), "https://example.com/v.mp4", "", "es", store.ModeChunked)
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	return s, video.ID
}

func TestResolveIsStableAcrossCalls(t *testing.T) {
	s, videoID := newTestStore(t)
	r := NewRegistry(s, nil)
	ctx := context.Background()

	info := asr.SpeakerInfo{Gender: "female", GenderConfidence: 0.9, AgeGroup: "adult", Emotion: "neutral"}
	first, err := r.Resolve(ctx, videoID, "SPEAKER_00", info)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve(ctx, videoID, "SPEAKER_00", info)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected stable speaker identity, got %d and %d", first.ID, second.ID)
	}
	if first.VoiceID != second.VoiceID {
		t.Fatalf("voice changed between resolutions: %q vs %q", first.VoiceID, second.VoiceID)
	}
}

func TestResolveRoundRobinsVoicesWithinGender(t *testing.T) {
	s, videoID := newTestStore(t)
	r := NewRegistry(s, nil)
	ctx := context.Background()

	info := asr.SpeakerInfo{Gender: "male"}
	a, err := r.Resolve(ctx, videoID, "SPEAKER_00", info)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(ctx, videoID, "SPEAKER_01", info)
	if err != nil {
		t.Fatal(err)
	}
	if a.VoiceID == b.VoiceID {
		t.Fatalf("expected distinct voices for distinct speakers, both got %q", a.VoiceID)
	}
}

func TestVoiceForPrefersClonedVoice(t *testing.T) {
	s, videoID := newTestStore(t)
	r := NewRegistry(s, nil)
	ctx := context.Background()

	speaker, err := r.Resolve(ctx, videoID, "SPEAKER_00", asr.SpeakerInfo{Gender: "female"})
	if err != nil {
		t.Fatal(err)
	}

	primary, fallback, err := r.VoiceFor(ctx, speaker, "es")
	if err != nil {
		t.Fatalf("VoiceFor: %v", err)
	}
	if primary != speaker.VoiceID {
		t.Fatalf("expected stock voice before cloning, got %q", primary)
	}
	if fallback != "es-ES-ElviraNeural" {
		t.Fatalf("unexpected fallback voice %q", fallback)
	}

	speaker.ClonedVoiceID = "cloned-1"
	if err := s.UpdateSpeaker(ctx, speaker); err != nil {
		t.Fatal(err)
	}
	primary, _, err = r.VoiceFor(ctx, speaker, "es")
	if err != nil {
		t.Fatalf("VoiceFor: %v", err)
	}
	if primary != "cloned-1" {
		t.Fatalf("expected cloned voice, got %q", primary)
	}
}

type fakeCloner struct {
	calls int
}

func (f *fakeCloner) Clone(context.Context, string, string) (string, error) {
	f.calls++
	return "cloned-voice", nil
}

func TestEnsureClonedRunsOnce(t *testing.T) {
	s, videoID := newTestStore(t)
	r := NewRegistry(s, nil)
	ctx := context.Background()

	speaker, err := r.Resolve(ctx, videoID, "SPEAKER_00", asr.SpeakerInfo{Gender: "male"})
	if err != nil {
		t.Fatal(err)
	}

	cloner := &fakeCloner{}
	for range 3 {
		if err := r.EnsureCloned(ctx, speaker, cloner, "/tmp/sample.wav"); err != nil {
			t.Fatalf("EnsureCloned: %v", err)
		}
	}
	if cloner.calls != 1 {
		t.Fatalf("expected exactly one clone call, got %d", cloner.calls)
	}
	stored, err := s.GetSpeaker(ctx, speaker.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ClonedVoiceID != "cloned-voice" {
		t.Fatalf("clone not persisted: %+v", stored)
	}
}

func TestEdgeVoiceFallsBackToEnglish(t *testing.T) {
	if v := edgeVoice("xx", "female", 0); v != "en-US-AriaNeural" {
		t.Fatalf("unexpected voice for unmapped language: %q", v)
	}
}

func TestEmotionProsody(t *testing.T) {
	if p := emotionProsody("excited"); p.Rate <= 1.0 || p.PitchHz <= 0 {
		t.Fatalf("excited speech should be faster and higher: %+v", p)
	}
	if p := emotionProsody("sad"); p.Rate >= 1.0 || p.PitchHz >= 0 {
		t.Fatalf("sad speech should be slower and lower: %+v", p)
	}
	if p := emotionProsody(""); p.Rate != 1.0 || p.PitchHz != 0 || p.GainDB != 0 {
		t.Fatalf("unknown emotion should be neutral delivery: %+v", p)
	}
}

func TestProsodyForPrefersSegmentAnnotation(t *testing.T) {
	speaker := &store.Speaker{Emotion: "sad", Rate: 0.94, Pitch: -10, Gain: -1}
	seg := &store.Segment{Emotion: "excited", TranslatedText: "Vamos."}
	if p := ProsodyFor(seg, speaker); p.Rate <= 1.0 {
		t.Fatalf("segment annotation should win over speaker default: %+v", p)
	}
}

func TestProsodyForFallsBackToSpeakerDefault(t *testing.T) {
	speaker := &store.Speaker{Emotion: "sad", Rate: 0.94, Pitch: -10, Gain: -1}
	seg := &store.Segment{TranslatedText: "Vamos."}
	p := ProsodyFor(seg, speaker)
	if p.Rate != 0.94 || p.PitchHz != -10 || p.GainDB != -1 {
		t.Fatalf("expected speaker defaults, got %+v", p)
	}
}

func TestProsodyForUsesTextHeuristicLast(t *testing.T) {
	speaker := &store.Speaker{Emotion: "neutral", Rate: 1.0}
	seg := &store.Segment{TranslatedText: "¡Corre!"}
	if p := ProsodyFor(seg, speaker); p.Rate <= 1.0 {
		t.Fatalf("exclamation should read as excited: %+v", p)
	}
	calm := &store.Segment{TranslatedText: "Bueno..."}
	if p := ProsodyFor(calm, speaker); p.Rate >= 1.0 {
		t.Fatalf("trailing ellipsis should read as calm: %+v", p)
	}
	plain := &store.Segment{TranslatedText: "Bueno."}
	if p := ProsodyFor(plain, speaker); p.Rate != 1.0 {
		t.Fatalf("plain text should stay neutral: %+v", p)
	}
}

func TestResolvePersistsProsodyDefaults(t *testing.T) {
	st, videoID := newTestStore(t)
	r := NewRegistry(st, nil)
	speaker, err := r.Resolve(context.Background(), videoID, "SPEAKER_00", asr.SpeakerInfo{Gender: "female", Emotion: "excited"})
	if err != nil {
		t.Fatal(err)
	}
	if speaker.Rate <= 1.0 || speaker.Pitch == 0 || speaker.Gain == 0 {
		t.Fatalf("prosody defaults not persisted: %+v", speaker)
	}
}
