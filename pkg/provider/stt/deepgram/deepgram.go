// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// A clip is streamed to the socket in 100 ms chunks followed by a CloseStream
// message. Only results flagged is_final are kept; interim hypotheses are
// never requested.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/recallcheck/pkg/audio"
	"github.com/MrWong99/recallcheck/pkg/provider/credential"
	"github.com/MrWong99/recallcheck/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en-US"
	defaultEnv       = "DEEPGRAM_API_KEY"

	chunkDuration = 100 * time.Millisecond
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithEndpoint overrides the streaming endpoint (e.g., for a test server).
func WithEndpoint(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.endpoint = u
		}
	}
}

// WithCredential sets where the API key comes from. Defaults to the
// DEEPGRAM_API_KEY environment variable.
func WithCredential(src credential.Source) Option {
	return func(p *Provider) {
		p.cred = src
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	cred     credential.Source
	endpoint string
	model    string
}

// New creates a new Deepgram Provider.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		cred:     credential.FromEnv(defaultEnv),
		endpoint: deepgramEndpoint,
		model:    defaultModel,
	}
	for _, o := range opts {
		o(p)
	}
	if _, err := url.Parse(p.endpoint); err != nil {
		return nil, fmt.Errorf("deepgram: invalid endpoint: %w", err)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, cfg stt.Config) (stt.Transcript, error) {
	key, err := p.cred.Resolve()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", err)
	}
	wsURL, err := p.buildURL(clip.Format(), cfg)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+key)
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return stt.Transcript{}, fmt.Errorf("deepgram: dial: status %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- sendClip(ctx, conn, clip)
	}()

	var (
		parts []string
		words []stt.WordDetail
		conf  float64
		n     int
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				if werr := <-writeErr; werr != nil {
					return stt.Transcript{}, fmt.Errorf("deepgram: send audio: %w", werr)
				}
				if ctx.Err() != nil {
					return stt.Transcript{}, ctx.Err()
				}
				if len(parts) == 0 {
					return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
				}
			}
			break
		}
		t, ok := parseDeepgramResponse(msg)
		if !ok || !t.final {
			continue
		}
		if text := strings.TrimSpace(t.Text); text != "" {
			parts = append(parts, text)
			words = append(words, t.Words...)
			conf += t.Confidence
			n++
		}
	}

	tr := stt.Transcript{
		Text:     strings.Join(parts, " "),
		Words:    words,
		Duration: clip.Duration(),
	}
	if n > 0 {
		tr.Confidence = conf / float64(n)
	}
	return tr, nil
}

// sendClip streams the clip in fixed-duration binary frames and then asks the
// server to flush and close.
func sendClip(ctx context.Context, conn *websocket.Conn, clip audio.Clip) error {
	step := clip.SampleRate * max(clip.Channels, 1) * 2 * int(chunkDuration/time.Millisecond) / 1000
	if step <= 0 {
		step = 3200
	}
	for off := 0; off < len(clip.Data); off += step {
		end := min(off+step, len(clip.Data))
		if err := conn.Write(ctx, websocket.MessageBinary, clip.Data[off:end]); err != nil {
			return err
		}
	}
	return conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
}

// buildURL constructs the Deepgram streaming endpoint URL for the given
// audio format and config.
func (p *Provider) buildURL(format audio.Format, cfg stt.Config) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	lang := cfg.Language
	if lang == "" {
		lang = defaultLanguage
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(format.SampleRate))
	q.Set("channels", strconv.Itoa(max(format.Channels, 1)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- response parsing ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is a parsed Results message.
type result struct {
	stt.Transcript
	final bool
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message.
// Returns (result, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}
	return result{
		Transcript: stt.Transcript{
			Text:       alt.Transcript,
			Confidence: alt.Confidence,
			Words:      words,
		},
		final: resp.IsFinal,
	}, true
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)
