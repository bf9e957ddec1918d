package delivery_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/recallcheck/internal/delivery"
	"github.com/MrWong99/recallcheck/internal/observe"
	"github.com/MrWong99/recallcheck/pkg/audio"
	"github.com/MrWong99/recallcheck/pkg/audio/audiotest"
	audiomock "github.com/MrWong99/recallcheck/pkg/audio/mock"
	"github.com/MrWong99/recallcheck/pkg/provider/tts"
	ttsmock "github.com/MrWong99/recallcheck/pkg/provider/tts/mock"
)

// fakeFallback records the texts it was asked to speak.
type fakeFallback struct {
	mu          sync.Mutex
	unavailable bool
	err         error
	texts       []string
}

func (f *fakeFallback) Available() bool { return !f.unavailable }

func (f *fakeFallback) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakeFallback) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

// sleeps records backoff waits instead of sleeping.
type sleeps struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func wavPayload() *tts.Payload {
	clip := audio.Clip{Data: make([]byte, 3200), SampleRate: 16000, Channels: 1}
	return &tts.Payload{Data: audio.EncodeWAV(clip), ContentType: audio.ContentTypeWAV}
}

func unavailable() error {
	return &tts.ProviderError{Provider: "mock", StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}
}

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

type fixture struct {
	provider *ttsmock.Provider
	player   *audiomock.Player
	fallback *fakeFallback
	sleeps   *sleeps
	pipeline *delivery.Pipeline
}

func newFixture(t *testing.T, opts ...delivery.Option) *fixture {
	t.Helper()
	m, _ := newTestMetrics(t)
	f := &fixture{
		provider: &ttsmock.Provider{Payload: wavPayload()},
		player:   &audiomock.Player{},
		fallback: &fakeFallback{},
		sleeps:   &sleeps{},
	}
	base := []delivery.Option{
		delivery.WithFallback(f.fallback),
		delivery.WithSleep(f.sleeps.sleep),
		delivery.WithMetrics(m),
		delivery.WithProviderName("mock"),
	}
	f.pipeline = delivery.New(f.provider, f.player, append(base, opts...)...)
	return f
}

func TestSpeak_PrimarySucceeds(t *testing.T) {
	f := newFixture(t)

	if err := f.pipeline.Speak(context.Background(), "Banana"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if f.provider.CallCount() != 1 || f.player.CallCount() != 1 {
		t.Errorf("synthesize = %d, play = %d, want 1 each", f.provider.CallCount(), f.player.CallCount())
	}
	if f.fallback.calls() != 0 {
		t.Error("fallback must not run when the remote path succeeds")
	}
	if got := f.provider.Texts(); got[0] != "Banana" {
		t.Errorf("text = %q", got[0])
	}
}

func TestSpeak_RetriesThenFallbackSucceeds(t *testing.T) {
	f := newFixture(t)
	f.provider.Err = unavailable()

	if err := f.pipeline.Speak(context.Background(), "Sunrise"); err != nil {
		t.Fatalf("Speak: %v, want nil after fallback", err)
	}
	if got := f.provider.CallCount(); got != 2 {
		t.Errorf("synthesize calls = %d, want 2", got)
	}
	if got := f.fallback.calls(); got != 1 {
		t.Errorf("fallback calls = %d, want 1", got)
	}
	if f.fallback.texts[0] != "Sunrise" {
		t.Errorf("fallback text = %q", f.fallback.texts[0])
	}
	if len(f.sleeps.waits) != 1 || f.sleeps.waits[0] != time.Second {
		t.Errorf("backoff waits = %v, want [1s]", f.sleeps.waits)
	}
	if f.player.CallCount() != 0 {
		t.Error("player must not be used when synthesis never succeeded")
	}
}

func TestSpeak_BothFailSurfacesPrimaryError(t *testing.T) {
	f := newFixture(t)
	f.provider.Err = unavailable()
	f.fallback.err = errors.New("espeak: exit status 1")

	err := f.pipeline.Speak(context.Background(), "Chair")

	var de *delivery.Error
	if !errors.As(err, &de) {
		t.Fatalf("err = %T %v, want *delivery.Error", err, err)
	}
	var pe *tts.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err does not unwrap to *tts.ProviderError: %v", err)
	}
	if pe.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", pe.StatusCode)
	}
	var fe *delivery.FallbackFailedError
	if !errors.As(de.Fallback, &fe) {
		t.Errorf("Fallback = %v, want *FallbackFailedError", de.Fallback)
	}
	if errors.As(err, &fe) {
		t.Error("the fallback error must not be on the unwrap chain")
	}
	if de.Attempts != 2 || de.Text != "Chair" {
		t.Errorf("Attempts = %d, Text = %q", de.Attempts, de.Text)
	}
	if got := f.fallback.calls(); got != 1 {
		t.Errorf("fallback calls = %d, want 1", got)
	}
}

func TestSpeak_FallbackUnavailable(t *testing.T) {
	f := newFixture(t)
	f.provider.Err = unavailable()
	f.fallback.unavailable = true

	err := f.pipeline.Speak(context.Background(), "Leader")

	var de *delivery.Error
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *delivery.Error", err)
	}
	if !de.FallbackUnavailable() {
		t.Errorf("Fallback = %v, want ErrFallbackUnavailable", de.Fallback)
	}
	if f.fallback.calls() != 0 {
		t.Error("an unavailable fallback must not be invoked")
	}
}

func TestSpeak_NoFallbackConfigured(t *testing.T) {
	m, _ := newTestMetrics(t)
	s := &sleeps{}
	p := delivery.New(&ttsmock.Provider{Err: unavailable()}, &audiomock.Player{},
		delivery.WithSleep(s.sleep), delivery.WithMetrics(m))

	err := p.Speak(context.Background(), "Season")
	var de *delivery.Error
	if !errors.As(err, &de) || !de.FallbackUnavailable() {
		t.Fatalf("err = %v, want *delivery.Error with unavailable fallback", err)
	}
}

func TestSpeak_LastPrimaryErrorWins(t *testing.T) {
	f := newFixture(t)
	f.fallback.unavailable = true
	f.provider.Errs = []error{unavailable(), nil}
	f.provider.Payload = &tts.Payload{Data: []byte("ID3\x04"), ContentType: "audio/mpeg"}

	err := f.pipeline.Speak(context.Background(), "Table")

	var decErr *audio.DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("err = %v, want the second attempt's *audio.DecodeError", err)
	}
	var pe *tts.ProviderError
	if errors.As(err, &pe) {
		t.Error("the first attempt's error must not be surfaced")
	}
}

func TestSpeak_PlaybackErrorRetried(t *testing.T) {
	f := newFixture(t)
	f.player.PlayErrs = []error{errors.New("output underflowed")}

	if err := f.pipeline.Speak(context.Background(), "Village"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if f.player.CallCount() != 2 {
		t.Errorf("play calls = %d, want 2", f.player.CallCount())
	}
	if f.fallback.calls() != 0 {
		t.Error("fallback must not run after a successful retry")
	}
}

func TestSpeak_ConvertsToPlayerFormat(t *testing.T) {
	f := newFixture(t)
	f.player.OutputFormat = audio.Format{SampleRate: 48000, Channels: 2}

	if err := f.pipeline.Speak(context.Background(), "Kitchen"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	played := f.player.PlayCalls[0]
	if played.SampleRate != 48000 || played.Channels != 2 {
		t.Errorf("played format = %s, want 48000 Hz stereo", played.Format())
	}
}

func TestSpeak_FLACPayloadPlays(t *testing.T) {
	f := newFixture(t)
	samples := make([]int16, 800)
	for i := range samples {
		samples[i] = int16(1000 - i)
	}
	f.provider.Payload = &tts.Payload{Data: audiotest.EncodeFLAC(samples, 16000, 1), ContentType: audio.ContentTypeFLAC}

	if err := f.pipeline.Speak(context.Background(), "Table"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if f.provider.CallCount() != 1 || f.fallback.calls() != 0 {
		t.Errorf("synthesize = %d, fallback = %d, want 1 and 0", f.provider.CallCount(), f.fallback.calls())
	}
	if got := f.player.PlayCalls[0].Frames(); got != len(samples) {
		t.Errorf("played frames = %d, want %d", got, len(samples))
	}
}

func TestSpeak_IndependentCalls(t *testing.T) {
	f := newFixture(t)

	for range 2 {
		if err := f.pipeline.Speak(context.Background(), "Baby"); err != nil {
			t.Fatalf("Speak: %v", err)
		}
	}
	if f.player.CallCount() != 2 {
		t.Errorf("play calls = %d, want 2", f.player.CallCount())
	}

	// A failed call does not consume the next call's attempt budget.
	f.provider.Errs = []error{unavailable(), unavailable()}
	if err := f.pipeline.Speak(context.Background(), "River"); err != nil {
		t.Fatalf("Speak after failures: %v", err)
	}
	if err := f.pipeline.Speak(context.Background(), "River"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := f.fallback.calls(); got != 1 {
		t.Errorf("fallback calls = %d, want 1", got)
	}
	if got := f.player.CallCount(); got != 3 {
		t.Errorf("play calls = %d, want 3", got)
	}
}

func TestSpeak_CustomRetryBudget(t *testing.T) {
	f := newFixture(t, delivery.WithRetry(3, 250*time.Millisecond))
	f.provider.Err = unavailable()
	f.fallback.unavailable = true

	err := f.pipeline.Speak(context.Background(), "Nation")
	var de *delivery.Error
	if !errors.As(err, &de) || de.Attempts != 3 {
		t.Fatalf("err = %v, want 3 attempts", err)
	}
	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond}
	if len(f.sleeps.waits) != 2 || f.sleeps.waits[0] != want[0] || f.sleeps.waits[1] != want[1] {
		t.Errorf("waits = %v, want %v", f.sleeps.waits, want)
	}
}

func TestSpeak_CancelledSkipsFallback(t *testing.T) {
	f := newFixture(t)
	f.provider.Err = unavailable()

	ctx, cancel := context.WithCancel(context.Background())
	s := &sleeps{}
	m, _ := newTestMetrics(t)
	p := delivery.New(f.provider, f.player,
		delivery.WithFallback(f.fallback),
		delivery.WithMetrics(m),
		delivery.WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return s.sleep(ctx, d)
		}),
	)

	err := p.Speak(ctx, "Finger")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if f.fallback.calls() != 0 {
		t.Error("fallback must not run once the caller has gone away")
	}
}

func TestSpeak_RecordsMetrics(t *testing.T) {
	m, reader := newTestMetrics(t)
	provider := &ttsmock.Provider{Payload: wavPayload(), Errs: []error{unavailable()}}
	s := &sleeps{}
	p := delivery.New(provider, &audiomock.Player{}, delivery.WithMetrics(m), delivery.WithSleep(s.sleep))

	if err := p.Speak(context.Background(), "Captain"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "recallcheck.delivery.attempts" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				got[v.AsString()] = dp.Value
			}
		}
	}
	if got[observe.OutcomeError] != 1 || got[observe.OutcomeOK] != 1 {
		t.Errorf("attempt outcomes = %v, want one error and one ok", got)
	}
}
