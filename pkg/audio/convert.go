package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// ConvertTo converts c to the target format. If the clip already matches the
// target it is returned unchanged (zero allocation).
//
// Conversion order: downmix first (avoids resampling stereo when the target
// is mono), then resample, then upmix.
func ConvertTo(c Clip, target Format) (Clip, error) {
	if c.Format() == target {
		return c, nil
	}
	if target.SampleRate <= 0 || target.Channels < 1 || target.Channels > 2 {
		return Clip{}, fmt.Errorf("audio: invalid target format %s", target)
	}

	out := c
	if out.Channels == 2 && target.Channels == 1 {
		out = Clip{Data: StereoToMono(out.Data), SampleRate: out.SampleRate, Channels: 1}
	}
	if out.SampleRate != target.SampleRate {
		var err error
		out, err = Resample(out, target.SampleRate)
		if err != nil {
			return Clip{}, err
		}
	}
	if out.Channels == 1 && target.Channels == 2 {
		out = Clip{Data: MonoToStereo(out.Data), SampleRate: out.SampleRate, Channels: 2}
	}
	return out, nil
}

// Resample converts the clip to dstRate using a windowed-sinc resampler. The
// channel count is preserved.
func Resample(c Clip, dstRate int) (Clip, error) {
	if c.SampleRate <= 0 || dstRate <= 0 {
		return Clip{}, fmt.Errorf("audio: resample %d Hz -> %d Hz: invalid rate", c.SampleRate, dstRate)
	}
	if c.SampleRate == dstRate || c.Empty() {
		return Clip{Data: c.Data, SampleRate: dstRate, Channels: c.Channels}, nil
	}
	channels := max(c.Channels, 1)

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(c.SampleRate),
		OutputRate: float64(dstRate),
		Channels:   channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return Clip{}, fmt.Errorf("audio: create resampler: %w", err)
	}

	samples := len(c.Data) / 2 / channels * channels
	input := make([]float64, samples)
	for i := range samples {
		input[i] = float64(int16(c.Data[i*2])|int16(c.Data[i*2+1])<<8) / 32768.0
	}

	output, err := r.Process(input)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: resample %d Hz -> %d Hz: %w", c.SampleRate, dstRate, err)
	}

	pcm := make([]byte, len(output)*2)
	for i, v := range output {
		s := int16(max(-32768, min(32767, math.Round(v*32768.0))))
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return Clip{Data: pcm, SampleRate: dstRate, Channels: channels}, nil
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Input must be little-endian int16 PCM (2 bytes per sample).
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// RMS returns the root-mean-square energy of little-endian int16 PCM. The
// maximum for full-scale audio is 32767; speech typically sits well above a
// few hundred while room noise stays below.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
