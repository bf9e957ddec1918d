// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled payloads to consumers and to verify the
// requests passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Payload: &tts.Payload{Data: wav, ContentType: "audio/wav"},
//	    Errs:    []error{&tts.ProviderError{Provider: "mock", StatusCode: 503}},
//	}
//	payload, err := p.Synthesize(ctx, tts.Request{Text: "Banana"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/recallcheck/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Request is the request passed to Synthesize.
	Request tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Payload is returned by Synthesize when no error applies. A copy is made
	// per call so callers may mutate the result.
	Payload *tts.Payload

	// Err, if non-nil, is returned by every call once Errs is exhausted.
	Err error

	// Errs supplies per-call errors in order. A nil entry means that call
	// succeeds.
	Errs []error

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the next configured result.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Payload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Request: req})

	err := p.Err
	if len(p.Errs) > 0 {
		err = p.Errs[0]
		p.Errs = p.Errs[1:]
	}
	if err != nil {
		return nil, err
	}
	if p.Payload == nil {
		return &tts.Payload{}, nil
	}
	out := *p.Payload
	out.Data = append([]byte(nil), p.Payload.Data...)
	return &out, nil
}

// CallCount returns the number of Synthesize calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Texts returns the text of every recorded request, in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Request.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
