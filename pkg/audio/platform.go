package audio

import "sync"

// Platform bundles the devices of one host audio backend: a [Player] for
// speech output and an optional [Capturer] for the microphone.
type Platform struct {
	player   Player
	capturer Capturer
	close    func() error
	once     sync.Once
	closeErr error
}

// NewPlatform returns a Platform over player and capturer. capturer may be
// nil when the host has no input device. closeFn releases the backend and
// may be nil.
func NewPlatform(player Player, capturer Capturer, closeFn func() error) *Platform {
	return &Platform{player: player, capturer: capturer, close: closeFn}
}

// Player returns the output device.
func (p *Platform) Player() Player { return p.player }

// Capturer returns the input device, or nil when there is none.
func (p *Platform) Capturer() Capturer { return p.capturer }

// HasCapture reports whether an input device is available.
func (p *Platform) HasCapture() bool { return p.capturer != nil }

// Close releases the backend. It is safe to call more than once.
func (p *Platform) Close() error {
	p.once.Do(func() {
		if p.close != nil {
			p.closeErr = p.close()
		}
	})
	return p.closeErr
}
