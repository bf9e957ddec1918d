// Package mock provides in-memory implementations of [audio.Player] and
// [audio.Capturer] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	player := &mock.Player{}
//	capturer := &mock.Capturer{Frames: [][]byte{speech, silence}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/recallcheck/pkg/audio"
)

// ─── Player ──────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// OutputFormat is returned by Format. Defaults to 16 kHz mono if zero.
	OutputFormat audio.Format

	// PlayErr is returned by every Play call when non-nil.
	PlayErr error

	// PlayErrs, if non-empty, supplies per-call errors in order; once exhausted
	// PlayErr applies.
	PlayErrs []error

	// OnPlay, if set, is invoked synchronously for every call before returning.
	OnPlay func(ctx context.Context, clip audio.Clip)

	// PlayCalls records every clip passed to Play, in order.
	PlayCalls []audio.Clip
}

// Format returns OutputFormat, or 16 kHz mono when unset.
func (p *Player) Format() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OutputFormat == (audio.Format{}) {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return p.OutputFormat
}

// Play records the clip and returns the configured error.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	p.mu.Lock()
	p.PlayCalls = append(p.PlayCalls, clip)
	err := p.PlayErr
	if len(p.PlayErrs) > 0 {
		err = p.PlayErrs[0]
		p.PlayErrs = p.PlayErrs[1:]
	}
	hook := p.OnPlay
	p.mu.Unlock()

	if hook != nil {
		hook(ctx, clip)
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// CallCount returns the number of Play calls made so far.
func (p *Player) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.PlayCalls)
}

// ─── Capturer ────────────────────────────────────────────────────────────────

// Capturer is a mock implementation of [audio.Capturer]. Each Stream call
// emits Frames in order and then, unless Hold is set, closes the channel.
type Capturer struct {
	mu sync.Mutex

	// InputFormat is returned by Format. Defaults to 16 kHz mono if zero.
	InputFormat audio.Format

	// Frames are delivered on the stream channel in order.
	Frames [][]byte

	// Hold keeps the channel open after Frames are sent until ctx is cancelled.
	Hold bool

	// StreamErr, if non-nil, is returned from Stream.
	StreamErr error

	// StreamCalls counts calls to Stream.
	StreamCalls int
}

// Format returns InputFormat, or 16 kHz mono when unset.
func (c *Capturer) Format() audio.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.InputFormat == (audio.Format{}) {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return c.InputFormat
}

// Stream records the call and returns a channel carrying Frames.
func (c *Capturer) Stream(ctx context.Context) (<-chan []byte, error) {
	c.mu.Lock()
	c.StreamCalls++
	if c.StreamErr != nil {
		err := c.StreamErr
		c.mu.Unlock()
		return nil, err
	}
	frames := make([][]byte, len(c.Frames))
	copy(frames, c.Frames)
	hold := c.Hold
	c.mu.Unlock()

	ch := make(chan []byte)
	go func() {
		defer close(ch)
		for _, f := range frames {
			select {
			case <-ctx.Done():
				return
			case ch <- f:
			}
		}
		if hold {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

// Compile-time interface assertions.
var (
	_ audio.Player   = (*Player)(nil)
	_ audio.Capturer = (*Capturer)(nil)
)
