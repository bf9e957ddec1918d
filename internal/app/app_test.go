package app_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/recallcheck/internal/app"
	"github.com/MrWong99/recallcheck/internal/assessment"
	"github.com/MrWong99/recallcheck/internal/config"
	"github.com/MrWong99/recallcheck/internal/observe"
	"github.com/MrWong99/recallcheck/pkg/audio"
	audiomock "github.com/MrWong99/recallcheck/pkg/audio/mock"
	"github.com/MrWong99/recallcheck/pkg/provider/stt"
	sttmock "github.com/MrWong99/recallcheck/pkg/provider/stt/mock"
	"github.com/MrWong99/recallcheck/pkg/provider/tts"
	ttsmock "github.com/MrWong99/recallcheck/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

// syncBuffer is a bytes.Buffer safe for the console goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, title+": "+message)
	return nil
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func wavPayload() *tts.Payload {
	clip := audio.Clip{Data: make([]byte, 3200), SampleRate: 16000, Channels: 1}
	return &tts.Payload{Data: audio.EncodeWAV(clip), ContentType: audio.ContentTypeWAV}
}

// speechFrame is 100 ms of a loud 16 kHz tone.
func speechFrame() []byte {
	const n = 1600
	buf := make([]byte, n*2)
	for i := range n {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

type fixture struct {
	cfg       *config.Config
	providers *app.Providers
	tts       *ttsmock.Provider
	stt       *sttmock.Provider
	player    *audiomock.Player
	in        *io.PipeWriter
	out       *syncBuffer
	notifier  *recordingNotifier
	opts      []app.Option
}

// newFixture returns mocks for a host with a microphone and a transcriber
// that hears transcript.
func newFixture(t *testing.T, transcript string) *fixture {
	t.Helper()
	r, w := io.Pipe()
	t.Cleanup(func() { w.Close() })

	f := &fixture{
		cfg:      config.Default(),
		tts:      &ttsmock.Provider{Payload: wavPayload()},
		stt:      &sttmock.Provider{Results: []stt.Transcript{{Text: transcript}}},
		player:   &audiomock.Player{},
		in:       w,
		out:      &syncBuffer{},
		notifier: &recordingNotifier{},
	}
	capturer := &audiomock.Capturer{Frames: [][]byte{speechFrame()}}
	f.providers = &app.Providers{
		TTS:   f.tts,
		STT:   f.stt,
		Audio: audio.NewPlatform(f.player, capturer, nil),
	}
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	f.opts = []app.Option{
		app.WithInput(r),
		app.WithOutput(f.out),
		app.WithNotifier(f.notifier),
		app.WithMetrics(metrics),
		app.WithSleep(noSleep),
		app.WithMachineOptions(assessment.WithPicker(func(int) int { return 0 })),
	}
	return f
}

func (f *fixture) newApp(t *testing.T, extra ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), f.cfg, f.providers, append(f.opts, extra...)...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

// run starts a.Run and returns a channel that receives its result.
func run(ctx context.Context, a *app.App) <-chan error {
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return done
}

func (f *fixture) send(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(f.in, line+"\n"); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
}

func waitOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("output never contained %q:\n%s", want, out.String())
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	if _, err := app.New(context.Background(), f.cfg, &app.Providers{Audio: f.providers.Audio}, f.opts...); err == nil {
		t.Error("New without TTS succeeded")
	}
	if _, err := app.New(context.Background(), f.cfg, &app.Providers{TTS: f.tts}, f.opts...); err == nil {
		t.Error("New without audio succeeded")
	}
}

func TestRun_FullAssessment(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "I remember banana and chair")
	a := f.newApp(t)
	if !a.Machine().RecallSupported() {
		t.Fatal("recall should be supported with a capturer and a transcriber")
	}
	done := run(context.Background(), a)

	f.send(t, "")
	waitOutput(t, f.out, "Score: 2 of 3")
	waitOutput(t, f.out, "Words: Banana, Sunrise, Chair")

	if got := f.tts.Texts(); len(got) != 6 || got[1] != "Banana" || got[3] != "Chair" {
		t.Errorf("spoken texts = %q", got)
	}
	if f.stt.CallCount() != 1 {
		t.Fatalf("Transcribe calls = %d, want 1", f.stt.CallCount())
	}
	if lang := f.stt.TranscribeCalls[0].Cfg.Language; lang != config.DefaultLanguage {
		t.Errorf("recognition language = %q, want %q", lang, config.DefaultLanguage)
	}
	if msgs := f.notifier.Messages(); len(msgs) != 1 || !strings.Contains(msgs[0], "Score: 2 of 3") {
		t.Errorf("notifications = %q", msgs)
	}

	f.send(t, "r")
	f.send(t, "q")
	waitDone(t, done)
	waitOutput(t, f.out, "Goodbye.")
}

func TestRun_RecallUnsupported(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.providers.STT = nil
	a := f.newApp(t)
	if a.Machine().RecallSupported() {
		t.Fatal("recall should be unsupported without a transcriber")
	}
	done := run(context.Background(), a)

	waitOutput(t, f.out, "answers cannot be captured")
	f.send(t, "s")
	waitOutput(t, f.out, "The test stopped: speech recognition is not available on this device")
	if got := a.Machine().Snapshot().Phase; got != assessment.Idle {
		t.Errorf("phase = %v, want idle", got)
	}

	f.send(t, "q")
	waitDone(t, done)
}

func TestRun_DeliveryFailureAborts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.tts.Err = &tts.ProviderError{Provider: "mock", StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}
	a := f.newApp(t)
	done := run(context.Background(), a)

	f.send(t, "s")
	waitOutput(t, f.out, "The test stopped: speech could not be played and no local voice is available")
	if f.tts.CallCount() != 2 {
		t.Errorf("Synthesize calls = %d, want 2", f.tts.CallCount())
	}
	if f.player.CallCount() != 0 {
		t.Errorf("Play calls = %d, want 0", f.player.CallCount())
	}

	f.send(t, "q")
	waitDone(t, done)
}

func TestRun_WrongPhaseIsReported(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "river")
	a := f.newApp(t)
	done := run(context.Background(), a)

	f.send(t, "l")
	waitOutput(t, f.out, "that is not possible right now")
	f.send(t, "x")
	waitOutput(t, f.out, `Unknown command "x"`)

	f.send(t, "q")
	waitDone(t, done)
}

func TestRun_ContextCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	a := f.newApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, a)

	waitOutput(t, f.out, "Press Enter to start.")
	cancel()
	waitDone(t, done)
}

func TestRun_Diagnostics(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.providers.STT = nil
	f.cfg.Server.DiagnosticsAddr = "127.0.0.1:0"
	f.cfg.Providers.TTS.Name = "coqui"
	a := f.newApp(t)
	addr := a.DiagnosticsAddr()
	if addr == "" {
		t.Fatal("DiagnosticsAddr() is empty")
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, a)

	resp, err := http.Get("http://" + addr + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	err = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "degraded" {
		t.Errorf("readyz = %d %q, want 200 degraded", resp.StatusCode, body.Status)
	}
	if body.Checks["tts"] != "ok" {
		t.Errorf("tts check = %q, want ok", body.Checks["tts"])
	}
	if !strings.HasPrefix(body.Checks["recognition"], "warn:") {
		t.Errorf("recognition check = %q, want warn", body.Checks["recognition"])
	}

	cancel()
	waitDone(t, done)
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "apple penny table")
	lv := new(slog.LevelVar)
	a := f.newApp(t, app.WithLogLevel(lv))

	updated := config.Default()
	updated.Server.LogLevel = config.LogDebug
	updated.Assessment.WordSets = [][]string{{"Apple", "Penny", "Table"}}
	if err := config.Validate(updated); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	a.ApplyConfig(f.cfg, updated)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", lv.Level())
	}

	if err := a.Machine().Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := a.Machine().Snapshot()
	if snap.Words != (assessment.WordSet{"Apple", "Penny", "Table"}) {
		t.Errorf("words = %v, want the reloaded set", snap.Words)
	}
	if snap.Score != 3 {
		t.Errorf("score = %d, want 3", snap.Score)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := app.SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRun_NearMissSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		similarity   float64
		wantNearMiss bool
	}{
		{name: "default matcher", similarity: 0, wantNearMiss: true},
		{name: "strict similarity", similarity: 0.99, wantNearMiss: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, "banana chairs")
			f.cfg.Assessment.NearMissSimilarity = tc.similarity
			a := f.newApp(t)
			done := run(context.Background(), a)

			f.send(t, "")
			waitOutput(t, f.out, "Score: 1 of 3")
			if got := strings.Contains(f.out.String(), `Chair sounded like "chairs"`); got != tc.wantNearMiss {
				t.Errorf("near miss reported = %v, want %v:\n%s", got, tc.wantNearMiss, f.out.String())
			}

			f.send(t, "q")
			waitDone(t, done)
		})
	}
}
