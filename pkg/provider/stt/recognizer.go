package stt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/recallcheck/pkg/audio"
)

const (
	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
	// units) below which audio is considered silent. The maximum possible value
	// for 16-bit audio is 32 767; 300 corresponds to near-silence.
	defaultRMSThreshold = 300.0

	defaultTrailingSilence = 1500 * time.Millisecond
	defaultNoSpeechTimeout = 8 * time.Second
	defaultMaxUtterance    = 20 * time.Second
)

// RecognizerOption is a functional option for configuring a Recognizer.
type RecognizerOption func(*Recognizer)

// WithLanguage fixes the recognition locale. Defaults to "en-US".
func WithLanguage(lang string) RecognizerOption {
	return func(r *Recognizer) {
		if lang != "" {
			r.cfg.Language = lang
		}
	}
}

// WithTrailingSilence sets how long the speaker must stay quiet after
// speaking before the utterance is considered complete. Defaults to 1.5 s;
// three recalled words are often separated by short hesitations.
func WithTrailingSilence(d time.Duration) RecognizerOption {
	return func(r *Recognizer) {
		if d > 0 {
			r.trailingSilence = d
		}
	}
}

// WithNoSpeechTimeout bounds the wait for the first spoken sound.
func WithNoSpeechTimeout(d time.Duration) RecognizerOption {
	return func(r *Recognizer) {
		if d > 0 {
			r.noSpeechTimeout = d
		}
	}
}

// WithMaxUtterance bounds the total capture length.
func WithMaxUtterance(d time.Duration) RecognizerOption {
	return func(r *Recognizer) {
		if d > 0 {
			r.maxUtterance = d
		}
	}
}

// WithRMSThreshold sets the energy level separating speech from silence.
func WithRMSThreshold(v float64) RecognizerOption {
	return func(r *Recognizer) {
		if v > 0 {
			r.rmsThreshold = v
		}
	}
}

// Recognizer captures one utterance from a microphone and transcribes it.
// Each Listen call is independent: one activation, one final transcript.
type Recognizer struct {
	capturer audio.Capturer
	provider Provider
	cfg      Config

	rmsThreshold    float64
	trailingSilence time.Duration
	noSpeechTimeout time.Duration
	maxUtterance    time.Duration
}

// NewRecognizer pairs a capture device with a transcription backend. It
// returns ErrUnsupported when either is missing.
func NewRecognizer(capturer audio.Capturer, provider Provider, opts ...RecognizerOption) (*Recognizer, error) {
	if capturer == nil || provider == nil {
		return nil, ErrUnsupported
	}
	r := &Recognizer{
		capturer:        capturer,
		provider:        provider,
		cfg:             Config{Language: "en-US"},
		rmsThreshold:    defaultRMSThreshold,
		trailingSilence: defaultTrailingSilence,
		noSpeechTimeout: defaultNoSpeechTimeout,
		maxUtterance:    defaultMaxUtterance,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Language returns the fixed recognition locale.
func (r *Recognizer) Language() string { return r.cfg.Language }

// Listen captures a single utterance and returns its final transcript.
// Returns ErrNoSpeech if the speaker never started talking.
func (r *Recognizer) Listen(ctx context.Context) (string, error) {
	clip, err := r.capture(ctx)
	if err != nil {
		return "", err
	}

	tr, err := r.provider.Transcribe(ctx, clip, r.cfg)
	if err != nil {
		return "", fmt.Errorf("stt: transcribe: %w", err)
	}
	text := strings.TrimSpace(tr.Text)
	slog.Debug("stt: utterance transcribed",
		"duration", clip.Duration(),
		"chars", len(text),
		"confidence", tr.Confidence,
	)
	return text, nil
}

// capture reads frames until trailing silence, the utterance limit, or the
// no-speech timeout ends the listening window.
func (r *Recognizer) capture(ctx context.Context) (audio.Clip, error) {
	capCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	format := r.capturer.Format()
	frames, err := r.capturer.Stream(capCtx)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("stt: start capture: %w", err)
	}
	defer audio.Drain(frames)
	defer cancel()

	clip := audio.Clip{SampleRate: format.SampleRate, Channels: format.Channels}
	var (
		heard   time.Duration // total audio received
		silence time.Duration // consecutive silence after speech started
		speech  bool
	)
	for {
		select {
		case <-ctx.Done():
			return audio.Clip{}, ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				if speech {
					return clip, nil
				}
				if err := ctx.Err(); err != nil {
					return audio.Clip{}, err
				}
				return audio.Clip{}, ErrNoSpeech
			}
			clip.Data = append(clip.Data, frame...)
			d := audio.Clip{Data: frame, SampleRate: format.SampleRate, Channels: format.Channels}.Duration()
			heard += d

			if audio.RMS(frame) >= r.rmsThreshold {
				speech = true
				silence = 0
			} else if speech {
				silence += d
			}

			switch {
			case speech && silence >= r.trailingSilence:
				return clip, nil
			case heard >= r.maxUtterance:
				if !speech {
					return audio.Clip{}, ErrNoSpeech
				}
				return clip, nil
			case !speech && heard >= r.noSpeechTimeout:
				return audio.Clip{}, ErrNoSpeech
			}
		}
	}
}
