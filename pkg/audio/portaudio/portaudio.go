// Package portaudio implements [audio.Player] and [audio.Capturer] on top of
// the PortAudio default host devices.
//
// Call [Init] once at program start and invoke the returned terminate
// function on shutdown:
//
//	terminate, err := portaudio.Init()
//	if err != nil { ... }
//	defer terminate()
//
//	player := portaudio.NewPlayer(portaudio.WithSampleRate(48000))
//	err = player.Play(ctx, clip)
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/recallcheck/pkg/audio"
)

const (
	defaultPlaybackRate  = 48000
	defaultCaptureRate   = 16000
	defaultFramesPerBuf  = 1024
	captureChannelBuffer = 32
)

// ErrNoInputDevice is returned when the host has no default capture device.
var ErrNoInputDevice = errors.New("portaudio: no default input device")

// Init initialises the PortAudio library. The returned function terminates it.
func Init() (func() error, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return pa.Terminate, nil
}

// HasInputDevice reports whether a default capture device is present. Init
// must have been called.
func HasInputDevice() bool {
	dev, err := pa.DefaultInputDevice()
	return err == nil && dev != nil && dev.MaxInputChannels > 0
}

// Open initialises PortAudio and returns a platform with a Player and, when
// the host has a default input device, a Capturer. Closing the platform
// terminates PortAudio.
func Open(playerOpts, captureOpts []Option) (*audio.Platform, error) {
	terminate, err := Init()
	if err != nil {
		return nil, err
	}
	var capturer audio.Capturer
	if HasInputDevice() {
		capturer = NewCapturer(captureOpts...)
	}
	return audio.NewPlatform(NewPlayer(playerOpts...), capturer, terminate), nil
}

// Option configures a Player or Capturer.
type Option func(*device)

// WithSampleRate overrides the device sample rate.
func WithSampleRate(rate int) Option {
	return func(d *device) {
		if rate > 0 {
			d.format.SampleRate = rate
		}
	}
}

// WithChannels overrides the device channel count (1 or 2).
func WithChannels(n int) Option {
	return func(d *device) {
		if n == 1 || n == 2 {
			d.format.Channels = n
		}
	}
}

// WithFramesPerBuffer sets the PortAudio buffer size in frames.
func WithFramesPerBuffer(n int) Option {
	return func(d *device) {
		if n > 0 {
			d.framesPerBuffer = n
		}
	}
}

type device struct {
	format          audio.Format
	framesPerBuffer int
}

func newDevice(rate int, opts []Option) device {
	d := device{
		format:          audio.Format{SampleRate: rate, Channels: 1},
		framesPerBuffer: defaultFramesPerBuf,
	}
	for _, o := range opts {
		o(&d)
	}
	return d
}

// ─── Player ──────────────────────────────────────────────────────────────────

// Player plays clips on the default output device. Play calls are serialised.
type Player struct {
	mu sync.Mutex
	device
}

// NewPlayer returns a Player. The default format is 48 kHz mono.
func NewPlayer(opts ...Option) *Player {
	return &Player{device: newDevice(defaultPlaybackRate, opts)}
}

// Format implements audio.Player.
func (p *Player) Format() audio.Format { return p.format }

// Play implements audio.Player. The clip must already be in the player's
// format. Play returns after PortAudio has drained the final buffer.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Format() != p.format {
		return fmt.Errorf("portaudio: clip format %s does not match device format %s", clip.Format(), p.format)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]int16, p.framesPerBuffer*p.format.Channels)
	stream, err := pa.OpenDefaultStream(0, p.format.Channels, float64(p.format.SampleRate), p.framesPerBuffer, buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}

	samples := clip.Data
	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			_ = stream.Abort()
			return err
		}
		n := min(len(buf), len(samples)/2)
		for i := range n {
			buf[i] = int16(samples[i*2]) | int16(samples[i*2+1])<<8
		}
		clear(buf[n:])
		samples = samples[n*2:]
		if err := stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			_ = stream.Abort()
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}

	// Stop blocks until all queued buffers have been played.
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: stop output stream: %w", err)
	}
	return nil
}

// ─── Capturer ────────────────────────────────────────────────────────────────

// Capturer streams PCM from the default input device.
type Capturer struct {
	device
}

// NewCapturer returns a Capturer. The default format is 16 kHz mono, the rate
// speech recognisers expect.
func NewCapturer(opts ...Option) *Capturer {
	return &Capturer{device: newDevice(defaultCaptureRate, opts)}
}

// Format implements audio.Capturer.
func (c *Capturer) Format() audio.Format { return c.format }

// Stream implements audio.Capturer.
func (c *Capturer) Stream(ctx context.Context) (<-chan []byte, error) {
	if !HasInputDevice() {
		return nil, ErrNoInputDevice
	}
	buf := make([]int16, c.framesPerBuffer*c.format.Channels)
	stream, err := pa.OpenDefaultStream(c.format.Channels, 0, float64(c.format.SampleRate), c.framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start input stream: %w", err)
	}

	out := make(chan []byte, captureChannelBuffer)
	go func() {
		defer close(out)
		defer stream.Close()
		defer stream.Stop() //nolint:errcheck

		for ctx.Err() == nil {
			if err := stream.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
				return
			}
			frame := make([]byte, len(buf)*2)
			for i, s := range buf {
				frame[i*2] = byte(s)
				frame[i*2+1] = byte(s >> 8)
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Compile-time interface assertions.
var (
	_ audio.Player   = (*Player)(nil)
	_ audio.Capturer = (*Capturer)(nil)
)
