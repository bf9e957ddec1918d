// Package stt defines the Provider interface for Speech-to-Text backends and
// the Recognizer that turns a microphone into single-utterance transcripts.
//
// A Provider wraps a transcription service (a local whisper.cpp server or
// Deepgram) and transcribes one complete clip per call. A Recognizer pairs a
// Provider with an audio.Capturer: it listens until the speaker stops
// talking, then submits the captured utterance and returns only the final
// text. No interim results are ever surfaced.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/recallcheck/pkg/audio"
)

// ErrUnsupported is reported when speech recognition cannot work on this
// host at all, e.g. no transcription backend is configured or no capture
// device exists.
var ErrUnsupported = errors.New("stt: speech recognition is not supported")

// ErrNoSpeech is returned by Recognizer.Listen when no speech was detected
// before the listening window closed.
var ErrNoSpeech = errors.New("stt: no speech detected")

// Config carries recognition hints for a single request.
type Config struct {
	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// The locale is fixed for the lifetime of an assessment.
	Language string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe returns the final transcript of clip. An empty Text with a
	// nil error means the backend heard nothing intelligible.
	Transcribe(ctx context.Context, clip audio.Clip, cfg Config) (Transcript, error)
}
