package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnalyzeParsesAndCleansSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["audio_path"] != "videos/1/audio/transcribe.wav" {
			t.Errorf("unexpected audio path %q", req["audio_path"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"language": "en",
			"segments": []map[string]any{
				{"start": 0.5, "end": 2.0, "text": "  hello there  ", "speaker": "SPEAKER_00"},
				{"start": 2.1, "end": 2.0, "text": "inverted window"},
				{"start": 3.0, "end": 4.0, "text": "   "},
				{"start": 5.0, "end": 6.0, "text": "untagged"},
			},
			"speakers": map[string]any{
				"SPEAKER_00": map[string]any{"gender": "female", "gender_confidence": 0.92, "age_group": "adult", "emotion": "neutral"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 1)
	result, err := c.Analyze(context.Background(), "videos/1/audio/transcribe.wav")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Language != "en" {
		t.Fatalf("unexpected language %q", result.Language)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 valid segments, got %d", len(result.Segments))
	}
	if result.Segments[0].Text != "hello there" {
		t.Fatalf("expected trimmed text, got %q", result.Segments[0].Text)
	}
	if result.Segments[1].Speaker != "SPEAKER_00" {
		t.Fatalf("expected default speaker tag, got %q", result.Segments[1].Speaker)
	}
	info, ok := result.Speakers["SPEAKER_00"]
	if !ok || info.Gender != "female" {
		t.Fatalf("unexpected speaker metadata %+v", result.Speakers)
	}
}

func TestAnalyzeRejectsEmptyPath(t *testing.T) {
	c := New("http://localhost:1", time.Second, 1)
	if _, err := c.Analyze(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
