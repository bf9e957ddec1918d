// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Audio is requested as WAV so that the shared decoder can handle it without
// additional codecs. The client's built-in retries are disabled; retrying is
// the delivery pipeline's job.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/recallcheck/pkg/provider/credential"
	"github.com/MrWong99/recallcheck/pkg/provider/tts"
)

const (
	providerName = "openai"

	// DefaultModel is the default OpenAI speech model.
	DefaultModel = string(oai.SpeechModelTTS1)

	// DefaultVoice is used when neither the request nor the provider names one.
	DefaultVoice = string(oai.AudioSpeechNewParamsVoiceAlloy)

	defaultEnv     = "OPENAI_API_KEY"
	maxAudioBytes  = 32 << 20
	defaultTimeout = 30 * time.Second
)

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	cred   credential.Source
	model  string
	voice  string
	speed  float64
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
	voice   string
	speed   float64
	cred    credential.Source
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithVoice sets the default voice, e.g. "alloy" or "nova".
func WithVoice(v string) Option {
	return func(c *config) {
		c.voice = v
	}
}

// WithSpeed sets the speaking rate (0.25 to 4.0). Zero keeps the API default.
func WithSpeed(s float64) Option {
	return func(c *config) {
		c.speed = s
	}
}

// WithCredential sets where the API key comes from. Defaults to the
// OPENAI_API_KEY environment variable.
func WithCredential(src credential.Source) Option {
	return func(c *config) {
		c.cred = src
	}
}

// New constructs a new OpenAI TTS Provider. If model is empty, DefaultModel is
// used.
func New(model string, opts ...Option) (*Provider, error) {
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{
		timeout: defaultTimeout,
		voice:   DefaultVoice,
		cred:    credential.FromEnv(defaultEnv),
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.speed != 0 && (cfg.speed < 0.25 || cfg.speed > 4.0) {
		return nil, fmt.Errorf("openai tts: speed %.2f out of range [0.25, 4.0]", cfg.speed)
	}

	reqOpts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.timeout),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		cred:   cfg.cred,
		model:  model,
		voice:  cfg.voice,
		speed:  cfg.speed,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Payload, error) {
	key, err := p.cred.Resolve()
	if err != nil {
		return nil, &tts.ProviderError{Provider: providerName, Err: err}
	}

	voice := p.voice
	if req.Voice != "" {
		voice = req.Voice
	}
	params := oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	}
	if p.speed != 0 {
		params.Speed = oai.Float(p.speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params, option.WithAPIKey(key))
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return nil, &tts.ProviderError{
				Provider:   providerName,
				StatusCode: apiErr.StatusCode,
				Status:     statusText(apiErr),
				Body:       apiErr.Message,
				Err:        err,
			}
		}
		return nil, &tts.ProviderError{Provider: providerName, Err: err}
	}
	defer resp.Body.Close()

	data, err := tts.ReadAudio(providerName, resp.Body, maxAudioBytes)
	if err != nil {
		return nil, err
	}
	return &tts.Payload{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func statusText(apiErr *oai.Error) string {
	if apiErr.Response != nil {
		return apiErr.Response.Status
	}
	return ""
}
