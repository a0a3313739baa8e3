package daemon_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"dubber/internal/api"
	"dubber/internal/config"
	"dubber/internal/daemon"
	"dubber/internal/logging"
	"dubber/internal/stage"
	"dubber/internal/store"
	"dubber/internal/workflow"
)

type noopHandler struct{ name string }

func (h noopHandler) Prepare(context.Context, *store.Video) error { return nil }
func (h noopHandler) Execute(context.Context, *store.Video) error { return nil }
func (h noopHandler) HealthCheck(context.Context) stage.Health    { return stage.Healthy(h.name) }

func newTestDaemon(t *testing.T, dir string) (*daemon.Daemon, *store.Store) {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.StorageDir = filepath.Join(dir, "storage")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"

	st, err := store.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	logger := logging.NewNop()
	manager := workflow.NewManager(&cfg, st, logger)
	manager.ConfigureStages(workflow.StageSet{
		Download:   noopHandler{name: "download"},
		Extract:    noopHandler{name: "extract"},
		Chunks:     noopHandler{name: "chunks"},
		Combine:    noopHandler{name: "combine"},
		Transcribe: noopHandler{name: "transcribe"},
		Translate:  noopHandler{name: "translate"},
		Synthesize: noopHandler{name: "synthesize"},
		Mix:        noopHandler{name: "mix"},
		Mux:        noopHandler{name: "mux"},
		Finalize:   noopHandler{name: "finalize"},
	})

	d, err := daemon.New(&cfg, st, logger, manager, api.NewServer(&cfg, st, manager, logger))
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d, st
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := config.Default()
	if _, err := daemon.New(&cfg, nil, logging.NewNop(), nil, nil); err == nil {
		t.Fatal("expected missing dependencies to error")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	dir := t.TempDir()
	d, _ := newTestDaemon(t, dir)
	defer func() { _ = d.Close() }()

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to error")
	}

	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("expected running daemon, got %+v", status)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected stopped daemon")
	}
}

func TestLockBlocksSecondInstance(t *testing.T) {
	dir := t.TempDir()
	first, _ := newTestDaemon(t, dir)
	defer func() { _ = first.Close() }()

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start first: %v", err)
	}

	second, secondStore := newTestDaemon(t, dir)
	defer func() { _ = secondStore.Close() }()
	err := second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("start after release: %v", err)
	}
	second.Stop()
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	dir := t.TempDir()
	d, _ := newTestDaemon(t, dir)
	defer func() { _ = d.Close() }()

	sent, detail, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("test notification: %v", err)
	}
	if sent {
		t.Fatal("expected no send without a topic")
	}
	if detail == "" {
		t.Fatal("expected a detail message")
	}
}
