package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of 16-bit PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// String renders the format as "16000Hz/1ch".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// bytesPerFrame is the size of one interleaved sample frame.
func (f Format) bytesPerFrame() int {
	return 2 * max(f.Channels, 1)
}

// Clip is a fully decoded, playable piece of audio. Clips are the unit handed
// from the decoder to a [Player] and from a [Capturer] to a transcriber.
type Clip struct {
	// Data holds little-endian signed 16-bit PCM, channels interleaved.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT, 22050 for most TTS models).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Format returns the clip's sample rate and channel count.
func (c Clip) Format() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// Frames returns the number of complete sample frames in the clip.
func (c Clip) Frames() int {
	return len(c.Data) / c.Format().bytesPerFrame()
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Empty reports whether the clip holds no complete frame.
func (c Clip) Empty() bool {
	return c.Frames() == 0
}

func formatString(sampleRate, channels int) string {
	return fmt.Sprintf("%dHz/%dch", sampleRate, channels)
}
