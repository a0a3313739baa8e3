package chunk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dubber/internal/asr"
	"dubber/internal/fileutil"
	"dubber/internal/media/ffmpeg"
	"dubber/internal/media/ffprobe"
	"dubber/internal/mix"
	"dubber/internal/separation"
	"dubber/internal/services"
	"dubber/internal/speakers"
	"dubber/internal/storage"
	"dubber/internal/store"
	"dubber/internal/timefit"
	"dubber/internal/translate"
	"dubber/internal/tts"
)

// fakeCommands stands in for the ffmpeg binary: it records each invocation
// and writes a plausible artifact to the last argument.
type fakeCommands struct {
	mu    sync.Mutex
	calls []string
	fail  func(args []string) error
}

func (f *fakeCommands) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	invocation := strings.Join(args, " ")
	f.mu.Lock()
	f.calls = append(f.calls, invocation)
	fail := f.fail
	f.mu.Unlock()
	if fail != nil {
		if err := fail(args); err != nil {
			return []byte("simulated tool failure"), err
		}
	}
	output := args[len(args)-1]
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, err
	}
	return nil, os.WriteFile(output, make([]byte, 2048), 0o644)
}

func (f *fakeCommands) invocations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCommands) find(sub string) string {
	for _, call := range f.invocations() {
		if strings.Contains(call, sub) {
			return call
		}
	}
	return ""
}

// fakeVoice is a tts backend that writes a valid clip unless told to fail.
type fakeVoice struct {
	mu   sync.Mutex
	reqs []tts.Request
	fail func(req tts.Request) error
}

func (f *fakeVoice) Name() string                { return "fake" }
func (f *fakeVoice) Ready(context.Context) error { return nil }

func (f *fakeVoice) Synthesize(ctx context.Context, req tts.Request) error {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	fail := f.fail
	f.mu.Unlock()
	if fail != nil {
		if err := fail(req); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(req.OutputPath, make([]byte, 2048), 0o644)
}

type procHarness struct {
	store *store.Store
	paths storage.Paths
	cmds  *fakeCommands
	voice *fakeVoice
	proc  *Processor
	video *store.Video
}

func newProcHarness(t *testing.T, transcription asr.Result) *procHarness {
	t.Helper()
	root := t.TempDir()

	st, err := store.OpenPath(filepath.Join(root, "dubber.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	asrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(transcription)
	}))
	t.Cleanup(asrSrv.Close)

	chatSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode chat request: %v", err)
		}
		user := req.Messages[len(req.Messages)-1].Content
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "[es] " + user}},
			},
		})
	}))
	t.Cleanup(chatSrv.Close)

	cmds := &fakeCommands{}
	runner := ffmpeg.New("ffmpeg")
	t.Cleanup(runner.SetCommandRunnerForTests(cmds.run))

	paths := storage.NewPaths(filepath.Join(root, "storage"))
	voice := &fakeVoice{}
	proc := NewProcessor(
		st,
		paths,
		runner,
		"ffprobe",
		asr.New(asrSrv.URL, 5*time.Second, 1),
		separation.NewSeparator(nil, runner, paths, false, 0.25, nil),
		translate.NewTranslator(translate.NewClient(chatSrv.URL, "test-key", "test-model", 5*time.Second), nil, 1, 3, nil),
		speakers.NewRegistry(st, nil),
		tts.NewSynthesizer(voice, nil, 1000, nil),
		nil,
		Options{TimeFit: timefit.DefaultConfig(), Mix: mix.DefaultOptions()},
		nil,
	)

	video, err := st.NewVideo(context.Background(), "https://example.com/v.mp4", "", "es", store.ModeChunked)
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	video.OriginalFile = paths.Original(video.ID, "mp4")
	video.TranscribeAudioFile = paths.TranscribeAudio(video.ID)
	video.MixAudioFile = paths.MixAudio(video.ID)

	return &procHarness{store: st, paths: paths, cmds: cmds, voice: voice, proc: proc, video: video}
}

// stubClipDuration makes every probed clip report the given duration.
func stubClipDuration(t *testing.T, seconds string) {
	t.Helper()
	prev := inspectMedia
	inspectMedia = func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		return ffprobe.Result{Format: ffprobe.Format{Duration: seconds}}, nil
	}
	t.Cleanup(func() { inspectMedia = prev })
}

func speechResult(texts ...string) asr.Result {
	result := asr.Result{
		Language: "en",
		Speakers: map[string]asr.SpeakerInfo{"SPEAKER_00": {Gender: "male"}},
	}
	start := 0.0
	for _, text := range texts {
		result.Segments = append(result.Segments, asr.Segment{
			Start:   start,
			End:     start + 2,
			Text:    text,
			Speaker: "SPEAKER_00",
		})
		start += 2.5
	}
	return result
}

func TestProcessorSkipsPublishedChunk(t *testing.T) {
	h := newProcHarness(t, asr.Result{Language: "en"})
	window := Window{Index: 0, Start: 0, Duration: 8}

	artifact := h.paths.ChunkArtifact(h.video.ID, window.Index)
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(artifact, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := h.proc.Process(context.Background(), h.video, window); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if calls := h.cmds.invocations(); len(calls) != 0 {
		t.Fatalf("published chunk triggered %d ffmpeg invocations: %v", len(calls), calls)
	}
}

func TestProcessorAttenuatesSilentChunk(t *testing.T) {
	h := newProcHarness(t, asr.Result{Language: "en"})
	window := Window{Index: 0, Start: 0, Duration: 8}

	if err := h.proc.Process(context.Background(), h.video, window); err != nil {
		t.Fatalf("Process: %v", err)
	}

	artifact := h.paths.ChunkArtifact(h.video.ID, window.Index)
	if !fileutil.ExistsNonTrivial(artifact, 1024) {
		t.Fatalf("artifact %s not published", artifact)
	}
	// The original soundscape must come through at bed level, not full volume.
	if h.cmds.find("volume=0.450") == "" {
		t.Fatalf("no volume reduction in invocations: %v", h.cmds.invocations())
	}
	if _, err := os.Stat(h.paths.ChunkWorkDir(h.video.ID, window.Index)); !os.IsNotExist(err) {
		t.Fatalf("work dir survived publish: %v", err)
	}
}

func TestProcessorPersistsDurableSegmentPaths(t *testing.T) {
	h := newProcHarness(t, speechResult("Hello there"))
	stubClipDuration(t, "2.0")
	window := Window{Index: 0, Start: 0, Duration: 8}

	if err := h.proc.Process(context.Background(), h.video, window); err != nil {
		t.Fatalf("Process: %v", err)
	}

	segments, err := h.store.ListChunkSegments(context.Background(), h.video.ID, window.Index)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	seg := segments[0]
	if seg.SynthesizedPath != h.paths.SegmentAudio(h.video.ID, seg.ID) {
		t.Fatalf("synthesized path %q not durable", seg.SynthesizedPath)
	}
	// The fitted clip must outlive the chunk work dir the mix ran in.
	for _, path := range []string{seg.SynthesizedPath, seg.FittedPath} {
		if strings.Contains(path, "work_") {
			t.Fatalf("segment path %q lives in the chunk work dir", path)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("segment clip missing after publish: %v", err)
		}
	}
}

func TestProcessorSkipsFailedSegment(t *testing.T) {
	h := newProcHarness(t, speechResult("first line", "second line"))
	stubClipDuration(t, "2.0")
	h.voice.fail = func(req tts.Request) error {
		if strings.Contains(req.Text, "first line") {
			return services.Wrap(services.ErrExternalCall, "fake", "synthesize", "backend refused", nil)
		}
		return nil
	}
	window := Window{Index: 0, Start: 0, Duration: 8}

	if err := h.proc.Process(context.Background(), h.video, window); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !fileutil.ExistsNonTrivial(h.paths.ChunkArtifact(h.video.ID, window.Index), 1024) {
		t.Fatal("chunk not published after single-segment failure")
	}
	segments, err := h.store.ListChunkSegments(context.Background(), h.video.ID, window.Index)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	var voiced int
	for _, seg := range segments {
		if seg.SynthesizedPath != "" {
			voiced++
		}
	}
	if voiced != 1 {
		t.Fatalf("expected exactly one voiced segment, got %d", voiced)
	}
}

func TestProcessorFailsWhenEverySegmentFails(t *testing.T) {
	h := newProcHarness(t, speechResult("first line", "second line"))
	stubClipDuration(t, "2.0")
	h.voice.fail = func(tts.Request) error {
		return services.Wrap(services.ErrExternalCall, "fake", "synthesize", "backend down", nil)
	}

	err := h.proc.Process(context.Background(), h.video, Window{Index: 0, Start: 0, Duration: 8})
	if !errors.Is(err, services.ErrExternalCall) {
		t.Fatalf("expected external call failure, got %v", err)
	}
	if fileutil.ExistsNonTrivial(h.paths.ChunkArtifact(h.video.ID, 0), 1024) {
		t.Fatal("chunk published despite total synthesis failure")
	}
}

func TestProcessorRendersVoicesOnlyWhenBedMixFails(t *testing.T) {
	h := newProcHarness(t, speechResult("Hello there"))
	stubClipDuration(t, "2.0")
	h.cmds.fail = func(args []string) error {
		mixGraph := false
		withBed := false
		for _, arg := range args {
			if arg == "-filter_complex" {
				mixGraph = true
			}
			if strings.HasSuffix(arg, "bed.wav") {
				withBed = true
			}
		}
		if mixGraph && withBed {
			return errors.New("bed input unreadable")
		}
		return nil
	}
	window := Window{Index: 0, Start: 0, Duration: 8}

	if err := h.proc.Process(context.Background(), h.video, window); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !fileutil.ExistsNonTrivial(h.paths.ChunkArtifact(h.video.ID, window.Index), 1024) {
		t.Fatal("chunk not published after bed mix failure")
	}
	voicesOnly := false
	for _, call := range h.cmds.invocations() {
		if strings.Contains(call, "-filter_complex") && !strings.Contains(call, "bed.wav") {
			voicesOnly = true
		}
	}
	if !voicesOnly {
		t.Fatalf("no voice-only mix attempted: %v", h.cmds.invocations())
	}
}
