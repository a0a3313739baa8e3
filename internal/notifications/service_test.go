package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"dubber/internal/config"
	"dubber/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyDubbingCompleted(context.Background(), "clip.mp4", ""); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceSendsHeadersAndBody(t *testing.T) {
	var gotTitle, gotTags, gotPriority, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyDubbingCompleted(context.Background(), "clip.mp4", "/videos/1/dubbed.mp4"); err != nil {
		t.Fatalf("NotifyDubbingCompleted: %v", err)
	}
	if gotTitle != "Dubber - Complete" {
		t.Fatalf("unexpected title %q", gotTitle)
	}
	if gotTags != "dubber,workflow,completed" {
		t.Fatalf("unexpected tags %q", gotTags)
	}
	if gotPriority != "high" {
		t.Fatalf("unexpected priority %q", gotPriority)
	}
	if gotBody != "Dub complete: clip.mp4\nFile: /videos/1/dubbed.mp4" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestNtfyServiceRespectsGates(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completion = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyDubbingCompleted(context.Background(), "clip.mp4", ""); err != nil {
		t.Fatalf("NotifyDubbingCompleted: %v", err)
	}
	if err := svc.NotifyError(context.Background(), io.EOF, "download"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected gated notifications to be suppressed, got %d calls", calls)
	}
}

func TestNtfyServiceSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 503 response")
	}
}
