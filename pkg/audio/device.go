// Package audio defines the audio types and device abstractions used by
// recallcheck: decoded [Clip] values, the [Decode] entry point for synthesised
// payloads, format conversion, and the two device interfaces.
//
//   - [Player] renders a clip to the default output device and blocks until
//     playback has finished.
//   - [Capturer] streams PCM frames from the default input device.
//
// Device implementations live in sub-packages (audio/portaudio); audio/mock
// provides test doubles.
package audio

import "context"

// Player renders decoded clips.
//
// Implementations must be safe for concurrent use, but callers are expected
// to serialise playback: a Player plays one clip at a time.
type Player interface {
	// Format returns the PCM format the output device expects. Callers convert
	// clips with [ConvertTo] before calling Play.
	Format() Format

	// Play renders clip and returns once its last sample has been played, or
	// when ctx is cancelled (in which case playback stops early and ctx.Err()
	// is returned).
	Play(ctx context.Context, clip Clip) error
}

// Capturer streams microphone audio.
type Capturer interface {
	// Format returns the PCM format of the frames delivered by Stream.
	Format() Format

	// Stream starts capturing and returns a channel of PCM frames. The channel
	// is closed when ctx is cancelled or the device fails. Callers that stop
	// reading early must cancel ctx and [Drain] the channel.
	Stream(ctx context.Context) (<-chan []byte, error)
}
