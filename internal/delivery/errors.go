package delivery

import (
	"errors"
	"fmt"
)

// ErrFallbackUnavailable is recorded on [Error.Fallback] when no local
// synthesiser is configured or none was found on the host.
var ErrFallbackUnavailable = errors.New("delivery: local speech synthesis unavailable")

// FallbackFailedError reports that the local synthesiser was invoked and
// failed.
type FallbackFailedError struct {
	// Err is the synthesiser's error.
	Err error
}

func (e *FallbackFailedError) Error() string {
	return fmt.Sprintf("delivery: local speech synthesis failed: %v", e.Err)
}

func (e *FallbackFailedError) Unwrap() error { return e.Err }

// Error is returned by [Pipeline.Speak] when both the remote path and the
// local fallback failed.
//
// Unwrap yields the last remote-path error (a *tts.ProviderError,
// *audio.DecodeError or playback error), so errors.As on the result finds
// the primary cause. The fallback outcome is kept separately in Fallback.
type Error struct {
	// Text is the utterance that could not be delivered.
	Text string

	// Attempts is the number of remote-path attempts made.
	Attempts int

	// Err is the last remote-path error.
	Err error

	// Fallback is ErrFallbackUnavailable or a *FallbackFailedError.
	Fallback error
}

func (e *Error) Error() string {
	return fmt.Sprintf("delivery: %d attempt(s) failed: %v (fallback: %v)", e.Attempts, e.Err, e.Fallback)
}

func (e *Error) Unwrap() error { return e.Err }

// FallbackUnavailable reports whether the fallback was skipped because no
// local synthesiser exists.
func (e *Error) FallbackUnavailable() bool {
	return errors.Is(e.Fallback, ErrFallbackUnavailable)
}

// PlaybackError reports that the output device failed while playing a
// decoded clip.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string { return fmt.Sprintf("delivery: playback: %v", e.Err) }

func (e *PlaybackError) Unwrap() error { return e.Err }
