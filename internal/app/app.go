// Package app wires the recallcheck subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the delivery pipeline,
// the recogniser and the assessment machine from the providers, Run executes
// the console loop alongside the diagnostics listener and config watcher,
// and Shutdown tears everything down in order.
//
// For testing, inject the console streams and a notifier via functional
// options (WithInput, WithOutput, WithNotifier, and so on).
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/recallcheck/internal/assessment"
	"github.com/MrWong99/recallcheck/internal/config"
	"github.com/MrWong99/recallcheck/internal/delivery"
	"github.com/MrWong99/recallcheck/internal/health"
	"github.com/MrWong99/recallcheck/internal/observe"
	"github.com/MrWong99/recallcheck/internal/phonetic"
	"github.com/MrWong99/recallcheck/pkg/audio"
	"github.com/MrWong99/recallcheck/pkg/provider/stt"
	"github.com/MrWong99/recallcheck/pkg/provider/tts"
)

// Providers holds one value per provider slot. Nil means the provider is not
// configured. Populated by main.go via the config registry.
type Providers struct {
	TTS      tts.Provider
	Fallback delivery.Fallback
	STT      stt.Provider
	Audio    *audio.Platform
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	pipeline   *delivery.Pipeline
	recognizer *stt.Recognizer
	machine    *assessment.Machine
	console    *Console
	notifier   Notifier
	watcher    *config.Watcher
	logLevel   *slog.LevelVar
	metrics    *observe.Metrics

	in       io.Reader
	out      io.Writer
	sleep    func(ctx context.Context, d time.Duration) error
	machOpts []assessment.Option

	diagListener net.Listener
	diagServer   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithInput sets the console input. Default: os.Stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.in = r }
}

// WithOutput sets the console output. Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithNotifier injects a notifier instead of the desktop one.
func WithNotifier(n Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithWatcher runs w alongside the console. Reloaded configs are applied
// through [App.ApplyConfig], which the watcher callback should call.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithLogLevel lets ApplyConfig change the level of the running logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithMetrics overrides the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSleep replaces every timed wait (retry backoff, word pauses), mainly
// for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(a *App) { a.sleep = fn }
}

// WithMachineOptions passes extra options to the assessment machine.
func WithMachineOptions(opts ...assessment.Option) Option {
	return func(a *App) { a.machOpts = append(a.machOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). providers.TTS and
// providers.Audio are required.
//
// New binds the diagnostics listener when one is configured, so a port
// conflict is reported before the console starts.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		in:        os.Stdin,
		out:       os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.notifier == nil {
		a.notifier = NewDesktopNotifier(cfg.Server.Notify)
	}

	if providers.TTS == nil {
		return nil, errors.New("app: a TTS provider is required")
	}
	if providers.Audio == nil {
		return nil, errors.New("app: an audio platform is required")
	}
	a.closers = append(a.closers, providers.Audio.Close)

	// ── 1. Delivery pipeline ─────────────────────────────────────────────
	a.initPipeline()

	// ── 2. Recogniser ────────────────────────────────────────────────────
	if err := a.initRecognizer(); err != nil {
		return nil, fmt.Errorf("app: init recognizer: %w", err)
	}

	// ── 3. Assessment machine ────────────────────────────────────────────
	if err := a.initMachine(); err != nil {
		return nil, fmt.Errorf("app: init assessment: %w", err)
	}

	// ── 4. Console ───────────────────────────────────────────────────────
	a.console = NewConsole(a.machine, a.in, a.out, a.notifier)

	// ── 5. Diagnostics listener ──────────────────────────────────────────
	if err := a.initDiagnostics(ctx); err != nil {
		return nil, fmt.Errorf("app: init diagnostics: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initPipeline() {
	opts := []delivery.Option{
		delivery.WithRetry(a.cfg.Delivery.MaxAttempts, a.cfg.Delivery.BaseDelay),
		delivery.WithProviderName(a.cfg.Providers.TTS.Name),
		delivery.WithVoice(a.cfg.Providers.TTS.Voice),
		delivery.WithMetrics(a.metrics),
	}
	if a.providers.Fallback != nil {
		opts = append(opts, delivery.WithFallback(a.providers.Fallback))
	}
	if a.sleep != nil {
		opts = append(opts, delivery.WithSleep(a.sleep))
	}
	a.pipeline = delivery.New(a.providers.TTS, a.providers.Audio.Player(), opts...)
}

// initRecognizer builds the recogniser when both a transcriber and a capture
// device exist. Otherwise recall is reported as unsupported.
func (a *App) initRecognizer() error {
	switch {
	case a.providers.STT == nil:
		slog.Warn("no STT provider configured; recall is unsupported")
		return nil
	case !a.providers.Audio.HasCapture():
		slog.Warn("no audio input device; recall is unsupported")
		return nil
	}
	r, err := stt.NewRecognizer(a.providers.Audio.Capturer(), a.providers.STT,
		stt.WithLanguage(a.cfg.Assessment.Language),
	)
	if err != nil {
		return err
	}
	a.recognizer = r
	return nil
}

func (a *App) initMachine() error {
	settings, err := a.cfg.Assessment.Settings()
	if err != nil {
		return err
	}
	opts := []assessment.Option{
		assessment.WithSettings(settings),
		assessment.WithMetrics(a.metrics),
	}
	if a.sleep != nil {
		opts = append(opts, assessment.WithSleep(a.sleep))
	}
	if s := a.cfg.Assessment.NearMissSimilarity; s > 0 {
		opts = append(opts, assessment.WithMatcher(phonetic.New(
			phonetic.WithPhoneticThreshold(s),
			phonetic.WithFuzzyThreshold(s),
		)))
	}
	opts = append(opts, a.machOpts...)

	// A nil *stt.Recognizer must not become a non-nil interface.
	var rec assessment.Recognizer
	if a.recognizer != nil {
		rec = a.recognizer
	}
	m, err := assessment.New(a.pipeline, rec, opts...)
	if err != nil {
		return err
	}
	a.machine = m
	return nil
}

// initDiagnostics binds the health and metrics listener.
func (a *App) initDiagnostics(ctx context.Context) error {
	addr := a.cfg.Server.DiagnosticsAddr
	if addr == "" {
		return nil
	}

	checkers := []health.Checker{a.ttsChecker()}
	checkers = append(checkers,
		health.Fallback(a.providers.Fallback),
		health.Recognition(a.machine.RecallSupported),
	)
	mux := http.NewServeMux()
	health.New(checkers).Register(mux)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	a.diagListener = ln
	a.diagServer = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("diagnostics listening", "addr", ln.Addr().String())
	return nil
}

// ttsChecker fails readiness while the remote provider's key is missing.
// Providers that need no key always pass.
func (a *App) ttsChecker() health.Checker {
	src, needed := a.cfg.Providers.TTS.Credential()
	if !needed {
		return health.Checker{
			Name:  "tts",
			Check: func(context.Context) error { return nil },
		}
	}
	return health.Credential("tts", src)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Machine returns the assessment machine.
func (a *App) Machine() *assessment.Machine { return a.machine }

// DiagnosticsAddr returns the bound diagnostics address, or "" when the
// listener is disabled.
func (a *App) DiagnosticsAddr() string {
	if a.diagListener == nil {
		return ""
	}
	return a.diagListener.Addr().String()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes the console loop, the diagnostics server and the config
// watcher until the console quits or ctx is cancelled. Quitting the console
// is not an error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return a.console.Run(runCtx)
	})

	if a.diagServer != nil {
		g.Go(func() error {
			err := a.diagServer.Serve(a.diagListener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: diagnostics server: %w", err)
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer done()
			return a.diagServer.Shutdown(shutdownCtx)
		})
	}

	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(runCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ApplyConfig applies a reloaded config. Log level changes take effect
// immediately; assessment settings apply from the next run. Changes to
// providers or delivery are logged and need a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.AssessmentChanged {
		settings, err := new.Assessment.Settings()
		if err == nil {
			err = a.machine.UpdateSettings(settings)
		}
		if err != nil {
			slog.Warn("reloaded assessment settings rejected", "err", err)
		} else {
			slog.Info("assessment settings updated; applies from the next run", "fields", d.AssessmentFields)
		}
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown resets any active run and tears down all subsystems. It respects
// the context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.machine != nil {
			a.machine.Reset()
		}
		if a.console != nil {
			a.console.Wait()
		}
		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.diagServer != nil {
			if err := a.diagServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("diagnostics shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// SlogLevel converts a config log level.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
