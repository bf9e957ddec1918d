// Package hfinference provides a TTS provider backed by a hosted inference
// endpoint that follows the Hugging Face Inference API convention: the
// request is an HTTP POST with a JSON body {"inputs": "<text>"} and a bearer
// token, and the response body is the encoded audio.
//
// Typical usage:
//
//	p, err := hfinference.New(
//	    hfinference.WithModel("facebook/mms-tts-eng"),
//	    hfinference.WithCredential(credential.FromEnv("HF_TOKEN")),
//	)
//	payload, err := p.Synthesize(ctx, tts.Request{Text: "Banana"})
package hfinference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/recallcheck/pkg/provider/credential"
	"github.com/MrWong99/recallcheck/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	providerName   = "hfinference"
	defaultBaseURL = "https://router.huggingface.co/hf-inference/models"
	defaultModel   = "facebook/mms-tts-eng"
	defaultEnv     = "HF_TOKEN"
	defaultTimeout = 30 * time.Second

	// maxAudioBytes bounds the response body read into memory.
	maxAudioBytes = 32 << 20
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the inference host. The model path is appended.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel sets the model repository id, e.g. "facebook/mms-tts-eng".
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithEndpoint sets a full endpoint URL, bypassing base URL and model. Use
// this for dedicated inference endpoints.
func WithEndpoint(u string) Option {
	return func(p *Provider) {
		p.endpoint = u
	}
}

// WithCredential sets where the bearer token comes from. Defaults to the
// HF_TOKEN environment variable.
func WithCredential(src credential.Source) Option {
	return func(p *Provider) {
		p.cred = src
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements tts.Provider against an inference endpoint.
type Provider struct {
	baseURL    string
	model      string
	endpoint   string
	cred       credential.Source
	httpClient *http.Client
	maxBytes   int64
}

// New creates a Provider. A missing credential is not an error here; it is
// reported by the first Synthesize call.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		cred:       credential.FromEnv(defaultEnv),
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxBytes:   maxAudioBytes,
	}
	for _, o := range opts {
		o(p)
	}
	if p.url() == "" {
		return nil, errors.New("hfinference: no endpoint configured")
	}
	return p, nil
}

// url returns the request URL.
func (p *Provider) url() string {
	if p.endpoint != "" {
		return p.endpoint
	}
	return p.baseURL + "/" + strings.TrimLeft(p.model, "/")
}

// inferenceRequest is the JSON body sent to the endpoint.
type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Payload, error) {
	token, err := p.cred.Resolve()
	if err != nil {
		return nil, &tts.ProviderError{Provider: providerName, Err: err}
	}

	body, err := json.Marshal(inferenceRequest{Inputs: req.Text})
	if err != nil {
		return nil, fmt.Errorf("hfinference: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("hfinference: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav, audio/flac;q=0.9, audio/mpeg;q=0.8")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &tts.ProviderError{Provider: providerName, Err: fmt.Errorf("POST %s: %w", p.url(), err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, tts.StatusError(providerName, resp, errBody)
	}

	data, err := tts.ReadAudio(providerName, resp.Body, p.maxBytes)
	if err != nil {
		return nil, err
	}
	return &tts.Payload{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}
