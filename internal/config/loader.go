package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts":      {"hfinference", "openai", "elevenlabs", "coqui"},
	"fallback": {"system", "none"},
	"stt":      {"whisper", "deepgram"},
	"audio":    {"portaudio"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = Validate(cfg)
	return cfg
}

// Validate fills in defaults and checks that cfg contains a coherent set of
// values. It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if addr := cfg.Server.DiagnosticsAddr; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("server.diagnostics_addr %q: %w", addr, err))
		}
	}

	if cfg.Providers.TTS.Name == "" {
		cfg.Providers.TTS.Name = DefaultTTSProvider
	}
	if cfg.Providers.Fallback.Name == "" {
		cfg.Providers.Fallback.Name = DefaultFallbackProvider
	}
	if cfg.Providers.Audio.Name == "" {
		cfg.Providers.Audio.Name = DefaultAudioProvider
	}
	if !cfg.Providers.TTS.Enabled() {
		errs = append(errs, errors.New("providers.tts: a remote TTS provider is required"))
	}
	if cfg.Providers.TTS.APIKey != "" && cfg.Providers.TTS.APIKeyEnv != "" {
		errs = append(errs, errors.New("providers.tts: set either api_key or api_key_env, not both"))
	}
	if cfg.Providers.STT.APIKey != "" && cfg.Providers.STT.APIKeyEnv != "" {
		errs = append(errs, errors.New("providers.stt: set either api_key or api_key_env, not both"))
	}
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("fallback", cfg.Providers.Fallback.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)
	if !cfg.Providers.STT.Enabled() {
		slog.Warn("providers.stt is not configured; recall cannot be captured")
	}
	for _, m := range cfg.MissingCredentials() {
		slog.Warn("API key not set; requests will fail until it is", "provider", m)
	}

	if cfg.Delivery.MaxAttempts == 0 {
		cfg.Delivery.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Delivery.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("delivery.max_attempts %d must be at least 1", cfg.Delivery.MaxAttempts))
	}
	if cfg.Delivery.BaseDelay == 0 {
		cfg.Delivery.BaseDelay = DefaultBaseDelay
	}
	if cfg.Delivery.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("delivery.base_delay %v is negative", cfg.Delivery.BaseDelay))
	}

	if cfg.Assessment.Language == "" {
		cfg.Assessment.Language = DefaultLanguage
	}
	if s := cfg.Assessment.NearMissSimilarity; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("assessment.near_miss_similarity %v must be between 0 and 1", s))
	}
	badSets := false
	for i, ws := range cfg.Assessment.WordSets {
		if len(ws) != 3 {
			errs = append(errs, fmt.Errorf("assessment.word_sets[%d]: need exactly 3 words, got %d", i, len(ws)))
			badSets = true
		}
	}
	if !badSets {
		if _, err := cfg.Assessment.Settings(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
