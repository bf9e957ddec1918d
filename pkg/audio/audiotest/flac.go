// Package audiotest builds encoded audio payloads for tests.
package audiotest

import (
	"encoding/binary"
	"unicode/utf8"
)

// flacBlockSize is the number of sample frames per FLAC frame.
const flacBlockSize = 4096

// EncodeFLAC returns a FLAC stream holding 16-bit samples, interleaved when
// channels is 2. Every subframe is stored verbatim, so the stream is slightly
// larger than the PCM it carries. sampleRate must fit in 16 bits.
func EncodeFLAC(samples []int16, sampleRate, channels int) []byte {
	frames := len(samples) / channels

	b := []byte("fLaC")
	b = append(b, 0x80, 0, 0, 34) // last metadata block: STREAMINFO, 34 bytes
	b = binary.BigEndian.AppendUint16(b, flacBlockSize)
	b = binary.BigEndian.AppendUint16(b, flacBlockSize)
	b = append(b, 0, 0, 0, 0, 0, 0) // frame sizes unknown
	info := uint64(sampleRate)<<44 | uint64(channels-1)<<41 | uint64(16-1)<<36 | uint64(frames)
	b = binary.BigEndian.AppendUint64(b, info)
	b = append(b, make([]byte, 16)...) // MD5 not computed

	for n, start := 0, 0; start < frames; n, start = n+1, start+flacBlockSize {
		size := min(flacBlockSize, frames-start)
		b = appendFrame(b, samples[start*channels:(start+size)*channels], n, size, sampleRate, channels)
	}
	return b
}

func appendFrame(b []byte, pcm []int16, num, size, sampleRate, channels int) []byte {
	start := len(b)
	b = append(b, 0xFF, 0xF8)               // sync code, fixed block size
	b = append(b, 0x7D)                     // 16-bit block size and 16-bit rate in Hz follow
	b = append(b, byte(channels-1)<<4|0x08) // independent channels, 16 bits per sample
	b = utf8.AppendRune(b, rune(num))       // frame number
	b = binary.BigEndian.AppendUint16(b, uint16(size-1))
	b = binary.BigEndian.AppendUint16(b, uint16(sampleRate))
	b = append(b, crc8(b[start:]))

	for ch := range channels {
		b = append(b, 0x02) // verbatim subframe, no wasted bits
		for i := range size {
			b = binary.BigEndian.AppendUint16(b, uint16(pcm[i*channels+ch]))
		}
	}
	return binary.BigEndian.AppendUint16(b, crc16(b[start:]))
}

// crc8 is the frame header checksum: polynomial x^8+x^2+x+1, initial 0.
func crc8(p []byte) byte {
	var c byte
	for _, v := range p {
		c ^= v
		for range 8 {
			if c&0x80 != 0 {
				c = c<<1 ^ 0x07
			} else {
				c <<= 1
			}
		}
	}
	return c
}

// crc16 is the frame footer checksum: polynomial x^16+x^15+x^2+1, initial 0.
func crc16(p []byte) uint16 {
	var c uint16
	for _, v := range p {
		c ^= uint16(v) << 8
		for range 8 {
			if c&0x8000 != 0 {
				c = c<<1 ^ 0x8005
			} else {
				c <<= 1
			}
		}
	}
	return c
}
