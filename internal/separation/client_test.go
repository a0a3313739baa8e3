package separation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dubber/internal/storage"
)

func TestSeparateRequestsTwoStems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req separateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if !req.TwoStems {
			t.Error("expected two_stems request")
		}
		if req.Model != "htdemucs" {
			t.Errorf("unexpected model %q", req.Model)
		}
		json.NewEncoder(w).Encode(separateResponse{
			OK:          true,
			NoVocalsRel: "videos/1/audio/stems/no_vocals.wav",
			VocalsRel:   "videos/1/audio/stems/vocals.wav",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	stems, err := c.Separate(context.Background(), 1, "videos/1/audio/mix.wav")
	if err != nil {
		t.Fatalf("Separate: %v", err)
	}
	if stems.NoVocalsRel != "videos/1/audio/stems/no_vocals.wav" {
		t.Fatalf("unexpected stems %+v", stems)
	}
}

func TestSeparateFailureFromService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(separateResponse{OK: false})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "htdemucs", time.Second)
	if _, err := c.Separate(context.Background(), 1, "videos/1/audio/mix.wav"); err == nil {
		t.Fatal("expected error when service reports failure")
	}
}

func TestDisabledSeparatorSkipsStems(t *testing.T) {
	paths := storage.NewPaths(t.TempDir())
	s := NewSeparator(nil, nil, paths, true, 0.3, nil)
	if err := s.EnsureStems(context.Background(), 1); err != nil {
		t.Fatalf("EnsureStems on disabled separator: %v", err)
	}
	if s.HasStems(1) {
		t.Fatal("expected no stems")
	}
}
