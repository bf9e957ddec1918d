// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
//
// Each Synthesize call opens one socket, sends the utterance followed by a
// flush, and concatenates the returned PCM chunks until the server marks the
// stream final. The payload is raw 16-bit PCM tagged "audio/L16;rate=N".
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/recallcheck/pkg/provider/credential"
	"github.com/MrWong99/recallcheck/pkg/provider/tts"
)

const (
	providerName     = "elevenlabs"
	wsEndpointFmt    = "%s/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	defaultBaseURL   = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
	defaultEnv       = "ELEVENLABS_API_KEY"

	// DefaultVoice is the ElevenLabs "Rachel" premade voice.
	DefaultVoice = "21m00Tcm4TlvDq8ikWAM"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithOutputFormat sets the audio output format. Only "pcm_<rate>" formats
// are accepted because the decoder handles raw PCM but not MP3.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoice sets the default voice ID.
func WithVoice(id string) Option {
	return func(p *Provider) {
		if id != "" {
			p.voice = id
		}
	}
}

// WithBaseURL overrides the WebSocket origin (e.g., for a local test server).
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithCredential sets where the API key comes from. Defaults to the
// ELEVENLABS_API_KEY environment variable.
func WithCredential(src credential.Source) Option {
	return func(p *Provider) {
		p.cred = src
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	cred         credential.Source
	baseURL      string
	model        string
	voice        string
	outputFormat string
	sampleRate   int
}

// New creates a new ElevenLabs Provider.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		cred:         credential.FromEnv(defaultEnv),
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		voice:        DefaultVoice,
		outputFormat: defaultOutputFmt,
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := pcmRate(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.sampleRate = rate
	return p, nil
}

// pcmRate extracts the sample rate from a "pcm_<rate>" output format.
func pcmRate(format string) (int, error) {
	rateStr, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", format)
	}
	rate, err := strconv.Atoi(rateStr)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid PCM rate in output format %q", format)
	}
	return rate, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
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

	conn, resp, err := websocket.Dial(ctx, p.buildURL(voice), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, tts.StatusError(providerName, resp, body)
		}
		return nil, &tts.ProviderError{Provider: providerName, Err: fmt.Errorf("dial: %w", err)}
	}
	defer conn.CloseNow()

	msgs := []any{
		boiMessage{
			Text:          " ", // ElevenLabs requires a non-empty first text value
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
			XiAPIKey:      key,
		},
		textMessage{Text: req.Text + " ", Flush: true},
		textMessage{Text: ""}, // end of input
	}
	for _, m := range msgs {
		data, _ := json.Marshal(m)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return nil, &tts.ProviderError{Provider: providerName, Err: fmt.Errorf("send: %w", err)}
		}
	}

	pcm, err := collectAudio(ctx, conn)
	if err != nil {
		return nil, err
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	return &tts.Payload{
		Data:        pcm,
		ContentType: "audio/L16;rate=" + strconv.Itoa(p.sampleRate),
	}, nil
}

// collectAudio reads messages until the final marker or a normal close.
func collectAudio(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(pcm) > 0 {
				return pcm, nil
			}
			return nil, &tts.ProviderError{Provider: providerName, Err: fmt.Errorf("read: %w", err)}
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return nil, &tts.ProviderError{Provider: providerName, Body: resp.Error, Err: errors.New(resp.Message)}
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, &tts.ProviderError{Provider: providerName, Err: fmt.Errorf("decode audio chunk: %w", err)}
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			return pcm, nil
		}
	}
}

// buildURL constructs the WebSocket URL for a given voice.
func (p *Provider) buildURL(voiceID string) string {
	return fmt.Sprintf(wsEndpointFmt, p.baseURL, voiceID, p.model, p.outputFormat)
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)
