// Package delivery turns text into audible speech.
//
// A [Pipeline] asks a remote [tts.Provider] for audio, decodes the payload,
// converts it to the output device format and plays it to completion. Any
// failure along that path is retried with exponential backoff; once the
// attempt budget is spent the text is handed to a local [Fallback]
// synthesiser exactly once. When that fails too, [Pipeline.Speak] returns an
// [*Error] that unwraps to the remote path's last error.
//
// A Pipeline keeps no state between Speak calls.
package delivery

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/recallcheck/internal/observe"
	"github.com/MrWong99/recallcheck/internal/resilience"
	"github.com/MrWong99/recallcheck/pkg/audio"
	"github.com/MrWong99/recallcheck/pkg/provider/tts"
)

// Fallback is a local synthesiser that speaks text directly, without the
// remote provider or the audio player. *system.Synth implements it.
type Fallback interface {
	// Available reports whether the synthesiser can be used at all.
	Available() bool

	// Speak speaks text and returns once it has been spoken.
	Speak(ctx context.Context, text string) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetry sets the total attempt budget and the backoff base. Non-positive
// values keep the defaults (2 attempts, 1s).
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) {
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			p.baseDelay = baseDelay
		}
	}
}

// WithFallback sets the local synthesiser used after the remote path gives
// up. Without one, exhausted attempts fail with ErrFallbackUnavailable.
func WithFallback(f Fallback) Option {
	return func(p *Pipeline) {
		p.fallback = f
	}
}

// WithProviderName labels metrics, spans and log lines. Default: "tts".
func WithProviderName(name string) Option {
	return func(p *Pipeline) {
		if name != "" {
			p.providerName = name
		}
	}
}

// WithVoice sets the voice passed on every synthesis request.
func WithVoice(voice string) Option {
	return func(p *Pipeline) {
		p.voice = voice
	}
}

// WithMetrics overrides the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) {
		p.sleep = fn
	}
}

// Pipeline delivers utterances. It is safe for concurrent use, although
// callers normally serialise Speak because there is one output device.
type Pipeline struct {
	provider tts.Provider
	player   audio.Player
	fallback Fallback

	providerName string
	voice        string
	maxAttempts  int
	baseDelay    time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	metrics      *observe.Metrics
}

// New creates a Pipeline that synthesises with provider and plays through
// player.
func New(provider tts.Provider, player audio.Player, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider:     provider,
		player:       player,
		providerName: "tts",
		maxAttempts:  resilience.DefaultMaxAttempts,
		baseDelay:    resilience.DefaultBaseDelay,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Speak delivers text and returns once it has been heard in full.
//
// It returns nil when the remote path or the fallback succeeded, ctx.Err()
// when ctx ended first, and an *Error otherwise.
func (p *Pipeline) Speak(ctx context.Context, text string) error {
	ctx, span := observe.StartSpan(ctx, "delivery.speak",
		trace.WithAttributes(
			attribute.String("provider", p.providerName),
			attribute.Int("text.length", len(text)),
		),
	)
	defer span.End()
	log := observe.Logger(ctx)

	attempts, primaryErr := resilience.Retry(ctx, resilience.RetryConfig{
		Name:        "speak via " + p.providerName,
		MaxAttempts: p.maxAttempts,
		BaseDelay:   p.baseDelay,
		Sleep:       p.sleep,
	}, func(ctx context.Context, attempt int) error {
		return p.attempt(ctx, text, attempt)
	})
	span.SetAttributes(attribute.Int("attempts", attempts))
	if primaryErr == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return err
	}

	log.Warn("remote speech failed, using local synthesis",
		"provider", p.providerName,
		"attempts", attempts,
		"error", primaryErr,
	)

	fbErr := p.speakFallback(ctx, text)
	if fbErr == nil {
		span.SetAttributes(attribute.Bool("fallback", true))
		return nil
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return err
	}

	err := &Error{Text: text, Attempts: attempts, Err: primaryErr, Fallback: fbErr}
	span.RecordError(err)
	span.SetStatus(codes.Error, "delivery failed")
	log.Error("speech delivery failed", "provider", p.providerName, "error", err)
	return err
}

// attempt runs the remote path once: synthesise, decode, convert, play.
func (p *Pipeline) attempt(ctx context.Context, text string, n int) (err error) {
	ctx, span := observe.StartSpan(ctx, "delivery.attempt",
		trace.WithAttributes(attribute.Int("attempt", n)),
	)
	defer func() {
		outcome := observe.OutcomeOK
		if err != nil {
			outcome = observe.OutcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, stage(err))
		}
		p.metrics.RecordDeliveryAttempt(ctx, outcome)
		span.End()
	}()

	start := time.Now()
	payload, err := p.provider.Synthesize(ctx, tts.Request{Text: text, Voice: p.voice})
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", p.providerName)),
	)
	if err != nil {
		p.metrics.RecordProviderRequest(ctx, p.providerName, "tts", observe.OutcomeError)
		p.metrics.RecordProviderError(ctx, p.providerName, "tts")
		return err
	}
	p.metrics.RecordProviderRequest(ctx, p.providerName, "tts", observe.OutcomeOK)

	clip, err := audio.Decode(payload.Data, payload.ContentType)
	if err != nil {
		return err
	}
	clip, err = audio.ConvertTo(clip, p.player.Format())
	if err != nil {
		return &audio.DecodeError{ContentType: payload.ContentType, Reason: "convert to output format", Err: err}
	}

	start = time.Now()
	if err := p.player.Play(ctx, clip); err != nil {
		return &PlaybackError{Err: err}
	}
	p.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds())
	return nil
}

func (p *Pipeline) speakFallback(ctx context.Context, text string) error {
	if p.fallback == nil || !p.fallback.Available() {
		p.metrics.RecordFallback(ctx, observe.OutcomeUnavailable)
		return ErrFallbackUnavailable
	}
	ctx, span := observe.StartSpan(ctx, "delivery.fallback")
	defer span.End()

	if err := p.fallback.Speak(ctx, text); err != nil {
		p.metrics.RecordFallback(ctx, observe.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback failed")
		return &FallbackFailedError{Err: err}
	}
	p.metrics.RecordFallback(ctx, observe.OutcomeOK)
	return nil
}

// stage names the remote-path step that produced err.
func stage(err error) string {
	var (
		pe *tts.ProviderError
		de *audio.DecodeError
		pb *PlaybackError
	)
	switch {
	case errors.As(err, &pe):
		return "synthesis"
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &pb):
		return "playback"
	default:
		return "synthesis"
	}
}
