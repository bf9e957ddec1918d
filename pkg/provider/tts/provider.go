// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a hosted inference
// endpoint, OpenAI, ElevenLabs, or a local Coqui server) and presents a
// uniform batch interface: one request carrying a complete utterance, one
// encoded audio payload in return. Decoding and playback are the caller's
// concern (see pkg/audio).
//
// Implementations must be safe for concurrent use and must not keep state
// between calls that influences later results.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts req.Text into an encoded audio payload.
	//
	// A non-2xx HTTP response or a transport failure is reported as a
	// *ProviderError. The returned payload is owned by the caller.
	Synthesize(ctx context.Context, req Request) (*Payload, error)
}
