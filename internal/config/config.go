// Package config provides the configuration schema, loader, watcher, and
// provider registry for recallcheck.
package config

import (
	"time"

	"github.com/MrWong99/recallcheck/internal/assessment"
	"github.com/MrWong99/recallcheck/pkg/provider/credential"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [Validate] to zero values.
const (
	DefaultTTSProvider      = "hfinference"
	DefaultFallbackProvider = "system"
	DefaultAudioProvider    = "portaudio"
	DefaultLanguage         = "en-US"
	DefaultMaxAttempts      = 2
	DefaultBaseDelay        = time.Second
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Assessment AssessmentConfig `yaml:"assessment"`
}

// ServerConfig holds logging and diagnostics settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Empty means info.
	LogLevel LogLevel `yaml:"log_level"`

	// DiagnosticsAddr is the TCP address of the health and metrics listener
	// (e.g., "127.0.0.1:9090"). Empty disables it.
	DiagnosticsAddr string `yaml:"diagnostics_addr"`

	// Notify enables a desktop notification when a run is scored.
	Notify bool `yaml:"notify"`
}

// ProvidersConfig selects the implementation for each collaborator.
type ProvidersConfig struct {
	// TTS is the remote speech synthesiser. Defaults to hfinference.
	TTS ProviderEntry `yaml:"tts"`

	// Fallback is the local synthesiser tried once after the remote one
	// gives up. Defaults to system; name "none" disables it.
	Fallback ProviderEntry `yaml:"fallback"`

	// STT is the batch transcriber used for recall. An empty name disables
	// recall capture.
	STT ProviderEntry `yaml:"stt"`

	// Audio selects the host audio backend. Defaults to portaudio.
	Audio ProviderEntry `yaml:"audio"`
}

// ProviderEntry is the configuration for a single provider.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey is a literal key. Prefer APIKeyEnv for files under version control.
	APIKey string `yaml:"api_key"`

	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider's default endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Voice selects a provider voice where supported.
	Voice string `yaml:"voice"`

	// Options holds provider-specific settings not covered above.
	Options map[string]any `yaml:"options"`
}

// Enabled reports whether a provider has been selected.
func (e ProviderEntry) Enabled() bool {
	return e.Name != "" && e.Name != "none"
}

// DefaultKeyEnv maps providers that need an API key to the environment
// variable they read when neither api_key nor api_key_env is set.
var DefaultKeyEnv = map[string]string{
	"hfinference": "HF_TOKEN",
	"openai":      "OPENAI_API_KEY",
	"elevenlabs":  "ELEVENLABS_API_KEY",
	"deepgram":    "DEEPGRAM_API_KEY",
}

// Credential returns the key source for e and whether the provider needs a
// key at all.
func (e ProviderEntry) Credential() (credential.Source, bool) {
	if e.APIKey != "" || e.APIKeyEnv != "" {
		return credential.Source{Value: e.APIKey, Env: e.APIKeyEnv}, true
	}
	env, ok := DefaultKeyEnv[e.Name]
	return credential.FromEnv(env), ok
}

// StringOption returns Options[key] when it is a string.
func (e ProviderEntry) StringOption(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// IntOption returns Options[key] when it is an integer.
func (e ProviderEntry) IntOption(key string) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// DeliveryConfig tunes the retry budget of the speech delivery pipeline.
type DeliveryConfig struct {
	// MaxAttempts is the total number of remote synthesis attempts. Default 2.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the backoff before the second attempt; it doubles for each
	// further attempt. Default 1s.
	BaseDelay time.Duration `yaml:"base_delay"`
}

// AssessmentConfig tunes the recall test. Zero durations take the defaults
// of [assessment.DefaultSettings]; negative ones are rejected.
type AssessmentConfig struct {
	WordPause           time.Duration `yaml:"word_pause"`
	DistractionInterval time.Duration `yaml:"distraction_interval"`
	MaxListen           time.Duration `yaml:"max_listen"`

	// Language is the locale for synthesis fallback and recognition.
	Language string `yaml:"language"`

	Prompts PromptsConfig `yaml:"prompts"`

	// WordSets replaces the built-in catalog. Each entry must hold exactly
	// three words.
	WordSets [][]string `yaml:"word_sets"`

	// NearMissSimilarity is the minimum Jaro-Winkler similarity in (0, 1] for
	// a heard token to be reported as a near miss. Zero keeps the matcher's
	// defaults.
	NearMissSimilarity float64 `yaml:"near_miss_similarity"`
}

// PromptsConfig overrides the spoken instructions. Empty fields keep the
// defaults.
type PromptsConfig struct {
	Intro       string `yaml:"intro"`
	Distraction string `yaml:"distraction"`
	Recall      string `yaml:"recall"`
}

// MissingCredentials lists the enabled providers that need an API key which
// cannot currently be resolved, e.g. "providers.tts (HF_TOKEN)".
func (c *Config) MissingCredentials() []string {
	var missing []string
	for _, p := range []struct {
		key   string
		entry ProviderEntry
	}{
		{"providers.tts", c.Providers.TTS},
		{"providers.stt", c.Providers.STT},
	} {
		if !p.entry.Enabled() {
			continue
		}
		src, needed := p.entry.Credential()
		if !needed || src.Configured() {
			continue
		}
		switch {
		case src.Env != "":
			missing = append(missing, p.key+" ("+src.Env+")")
		default:
			missing = append(missing, p.key)
		}
	}
	return missing
}

// Settings converts the section into machine settings.
func (a AssessmentConfig) Settings() (assessment.Settings, error) {
	s := assessment.DefaultSettings()
	if a.WordPause != 0 {
		s.WordPause = a.WordPause
	}
	if a.DistractionInterval != 0 {
		s.DistractionInterval = a.DistractionInterval
	}
	if a.MaxListen != 0 {
		s.MaxListen = a.MaxListen
	}
	if a.Prompts.Intro != "" {
		s.Prompts.Intro = a.Prompts.Intro
	}
	if a.Prompts.Distraction != "" {
		s.Prompts.Distraction = a.Prompts.Distraction
	}
	if a.Prompts.Recall != "" {
		s.Prompts.Recall = a.Prompts.Recall
	}
	if len(a.WordSets) > 0 {
		catalog := make([]assessment.WordSet, 0, len(a.WordSets))
		for _, words := range a.WordSets {
			ws, err := assessment.ParseWordSet(words)
			if err != nil {
				return assessment.Settings{}, err
			}
			catalog = append(catalog, ws)
		}
		s.Catalog = catalog
	}
	return s, s.Validate()
}
