// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to return controlled transcripts from Transcribe and to inspect
// the clips and configs it received.
//
// Example:
//
//	p := &mock.Provider{Results: []stt.Transcript{{Text: "banana chair"}}}
//	tr, _ := p.Transcribe(ctx, clip, stt.Config{Language: "en-US"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/recallcheck/pkg/audio"
	"github.com/MrWong99/recallcheck/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Clip is the audio passed to Transcribe.
	Clip audio.Clip
	// Cfg is the Config passed to Transcribe.
	Cfg stt.Config
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order; the last one repeats once exhausted.
	Results []stt.Transcript

	// Err, if non-nil, is returned by every call.
	Err error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next configured result.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, cfg stt.Config) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Clip: clip, Cfg: cfg})
	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	if len(p.Results) == 0 {
		return stt.Transcript{}, nil
	}
	r := p.Results[0]
	if len(p.Results) > 1 {
		p.Results = p.Results[1:]
	}
	return r, nil
}

// CallCount returns the number of Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Recognizer is a scripted stand-in for a microphone plus transcriber. Each
// Listen call consumes the next entry of Transcripts and Errs.
type Recognizer struct {
	mu sync.Mutex

	// Transcripts are returned in order. Once exhausted, "" is returned.
	Transcripts []string

	// Errs supplies per-call errors in order. A nil entry means that call
	// succeeds with the next transcript.
	Errs []error

	// Block, if true, makes Listen wait for ctx cancellation.
	Block bool

	// ListenCalls counts calls to Listen.
	ListenCalls int
}

// Listen returns the next scripted transcript or error.
func (r *Recognizer) Listen(ctx context.Context) (string, error) {
	r.mu.Lock()
	r.ListenCalls++
	block := r.Block
	var err error
	if len(r.Errs) > 0 {
		err = r.Errs[0]
		r.Errs = r.Errs[1:]
	}
	var text string
	if err == nil && len(r.Transcripts) > 0 {
		text = r.Transcripts[0]
		r.Transcripts = r.Transcripts[1:]
	}
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Calls returns the number of Listen calls made so far.
func (r *Recognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ListenCalls
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
