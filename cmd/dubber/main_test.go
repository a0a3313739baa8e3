package main

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dubber/internal/api"
	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/store"
)

type cliTestEnv struct {
	configPath string
	apiURL     string
	store      *store.Store
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	contents := fmt.Sprintf("[paths]\nstorage_dir = %q\nlog_dir = %q\n", filepath.Join(base, "storage"), filepath.Join(base, "logs"))
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	srv := api.NewServer(cfg, st, nil, logging.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &cliTestEnv{configPath: configPath, apiURL: ts.URL, store: st}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) string {
	t.Helper()

	cmd := newRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--config", env.configPath, "--api", env.apiURL}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("run %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestSubmitListShowRoundTrip(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "submit", "https://example.com/talk.mp4", "--lang", "es")
	if !strings.Contains(out, "Queued video 1") {
		t.Fatalf("unexpected submit output: %s", out)
	}

	out = env.run(t, "list")
	if !strings.Contains(out, "pending") || !strings.Contains(out, "https://example.com/talk.mp4") {
		t.Fatalf("unexpected list output: %s", out)
	}

	out = env.run(t, "show", "1")
	if !strings.Contains(out, "Video 1") || !strings.Contains(out, "Target:     es") {
		t.Fatalf("unexpected show output: %s", out)
	}
}

func TestListEmptyQueue(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "list")
	if !strings.Contains(out, "Queue is empty") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestSubmitRequiresLangFlag(t *testing.T) {
	env := setupCLITestEnv(t)

	cmd := newRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--config", env.configPath, "--api", env.apiURL, "submit", "https://example.com/talk.mp4"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected missing --lang to error")
	}
}

func TestStatusAgainstDaemonlessAPI(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "status")
	if !strings.Contains(out, "stopped") {
		t.Fatalf("expected stopped workflow, got: %s", out)
	}
	if !strings.Contains(out, "0 total") {
		t.Fatalf("expected empty queue counts, got: %s", out)
	}
}

func TestRetryRejectsAmbiguousArgs(t *testing.T) {
	env := setupCLITestEnv(t)

	cmd := newRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--config", env.configPath, "--api", env.apiURL, "retry"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected retry without id or --all to error")
	}
}

func TestConfigValidateCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "config", "validate")
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected output: %s", out)
	}
}
