// Command recallcheck runs the spoken three-word recall test on the console.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/recallcheck/internal/app"
	"github.com/MrWong99/recallcheck/internal/config"
	"github.com/MrWong99/recallcheck/internal/delivery"
	"github.com/MrWong99/recallcheck/internal/observe"
	"github.com/MrWong99/recallcheck/pkg/audio"
	"github.com/MrWong99/recallcheck/pkg/audio/portaudio"
	"github.com/MrWong99/recallcheck/pkg/provider/stt"
	"github.com/MrWong99/recallcheck/pkg/provider/stt/deepgram"
	"github.com/MrWong99/recallcheck/pkg/provider/stt/whisper"
	"github.com/MrWong99/recallcheck/pkg/provider/tts"
	"github.com/MrWong99/recallcheck/pkg/provider/tts/coqui"
	"github.com/MrWong99/recallcheck/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/recallcheck/pkg/provider/tts/hfinference"
	"github.com/MrWong99/recallcheck/pkg/provider/tts/openai"
	"github.com/MrWong99/recallcheck/pkg/synth/system"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Load configuration ────────────────────────────────────────────────────
	// The watcher's callback fires only once Run polls, after application is set.
	var application *app.App
	var watcher *config.Watcher
	var cfg *config.Config
	if _, err := os.Stat(*configPath); errors.Is(err, os.ErrNotExist) {
		slog.Info("config file not found, using defaults", "path", *configPath)
		cfg = config.Default()
	} else {
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config) {
			application.ApplyConfig(old, new)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "recallcheck: %v\n", err)
			return 1
		}
		cfg = watcher.Current()
	}
	level.Set(app.SlogLevel(cfg.Server.LogLevel))

	slog.Info("recallcheck starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"diagnostics_addr", cfg.Server.DiagnosticsAddr,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg, providers)

	opts := []app.Option{app.WithLogLevel(level)}
	if watcher != nil {
		opts = append(opts, app.WithWatcher(watcher))
	}
	application, err = app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		if providers.Audio != nil {
			_ = providers.Audio.Close()
		}
		return 1
	}

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Debug("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// cfg supplies settings shared across providers, such as the test language.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	lang := cfg.Assessment.Language

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("hfinference", func(entry config.ProviderEntry) (tts.Provider, error) {
		src, _ := entry.Credential()
		opts := []hfinference.Option{hfinference.WithCredential(src)}
		if entry.BaseURL != "" {
			opts = append(opts, hfinference.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, hfinference.WithModel(entry.Model))
		}
		if endpoint := entry.StringOption("endpoint"); endpoint != "" {
			opts = append(opts, hfinference.WithEndpoint(endpoint))
		}
		return hfinference.New(opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		src, _ := entry.Credential()
		opts := []openai.Option{openai.WithCredential(src)}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if entry.Voice != "" {
			opts = append(opts, openai.WithVoice(entry.Voice))
		}
		if speed, ok := entry.Options["speed"].(float64); ok {
			opts = append(opts, openai.WithSpeed(speed))
		}
		return openai.New(entry.Model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		src, _ := entry.Credential()
		opts := []elevenlabs.Option{elevenlabs.WithCredential(src)}
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, elevenlabs.WithVoice(entry.Voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := entry.StringOption("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithLanguage(lang)}
		if mode := entry.StringOption("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if entry.Voice != "" {
			opts = append(opts, coqui.WithSpeaker(entry.Voice))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Fallback ──────────────────────────────────────────────────────────────

	reg.RegisterFallback("system", func(entry config.ProviderEntry) (delivery.Fallback, error) {
		opts := []system.Option{system.WithLanguage(lang)}
		if rate := entry.IntOption("rate"); rate > 0 {
			opts = append(opts, system.WithRate(rate))
		}
		if cmd := entry.StringOption("command"); cmd != "" {
			opts = append(opts, system.WithCommand(cmd))
		}
		return system.New(opts...), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		src, _ := entry.Credential()
		opts := []deepgram.Option{deepgram.WithCredential(src)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(entry config.ProviderEntry) (*audio.Platform, error) {
		var playerOpts []portaudio.Option
		if rate := entry.IntOption("sample_rate"); rate > 0 {
			playerOpts = append(playerOpts, portaudio.WithSampleRate(rate))
		}
		return portaudio.Open(playerOpts, nil)
	})
}

// buildProviders instantiates the providers named in cfg and returns them in
// an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	p, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTS = p
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	if entry := cfg.Providers.Fallback; entry.Enabled() {
		f, err := reg.CreateFallback(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback %q: %w", entry.Name, err)
		}
		if f.Available() {
			ps.Fallback = f
			slog.Info("provider created", "kind", "fallback", "name", entry.Name)
		} else {
			slog.Warn("local synthesiser not found on this host; remote failures cannot fall back", "name", entry.Name)
		}
	}

	if entry := cfg.Providers.STT; entry.Enabled() {
		s, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		ps.STT = s
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
	}

	a, err := reg.CreateAudio(cfg.Providers.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio platform %q: %w", cfg.Providers.Audio.Name, err)
	}
	ps.Audio = a
	slog.Info("provider created", "kind", "audio", "name", cfg.Providers.Audio.Name, "capture", a.HasCapture())

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, ps *app.Providers) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       recallcheck: startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fallback := cfg.Providers.Fallback.Name
	if ps.Fallback == nil {
		fallback = ""
	}
	printProvider("Fallback", fallback, "")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Audio", cfg.Providers.Audio.Name, "")
	capture := "available"
	if !ps.Audio.HasCapture() {
		capture = "(no microphone)"
	}
	fmt.Printf("║  Capture         : %-19s ║\n", capture)
	fmt.Printf("║  Language        : %-19s ║\n", cfg.Assessment.Language)
	if cfg.Server.DiagnosticsAddr != "" {
		fmt.Printf("║  Diagnostics     : %-19s ║\n", cfg.Server.DiagnosticsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
