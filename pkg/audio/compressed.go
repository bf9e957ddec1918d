package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// Compressed content types understood by [Decode].
const (
	ContentTypeFLAC = "audio/flac"
	ContentTypeMP3  = "audio/mpeg"
)

func isFLAC(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "fLaC"
}

// isMP3 matches an ID3v2 tag or an MPEG audio frame sync.
func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// decodeFLAC converts a FLAC stream of any bit depth to 16-bit PCM.
func decodeFLAC(data []byte, contentType string) (Clip, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "invalid FLAC stream", Err: err}
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	bps := int(stream.Info.BitsPerSample)
	if channels < 1 || channels > 2 {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: fmt.Sprintf("unsupported FLAC channel count %d", channels)}
	}

	var pcm []byte
	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Clip{}, &DecodeError{ContentType: contentType, Reason: "corrupt FLAC frame", Err: err}
		}
		if len(f.Subframes) != channels {
			return Clip{}, &DecodeError{ContentType: contentType, Reason: "FLAC frame channel count changed"}
		}
		for i := range f.Subframes[0].Samples {
			for ch := range channels {
				pcm = binary.LittleEndian.AppendUint16(pcm, uint16(to16(f.Subframes[ch].Samples[i], bps)))
			}
		}
	}

	clip := Clip{Data: pcm, SampleRate: int(stream.Info.SampleRate), Channels: channels}
	if clip.Empty() {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "FLAC stream holds no samples"}
	}
	return clip, nil
}

// to16 rescales a sample of the given bit depth to 16 bits.
func to16(s int32, bps int) int16 {
	switch {
	case bps > 16:
		return int16(s >> (bps - 16))
	case bps < 16:
		return int16(s << (16 - bps))
	}
	return int16(s)
}

// decodeMP3 decodes an MPEG-1/2 layer III stream. The decoder always
// produces interleaved 16-bit stereo.
func decodeMP3(data []byte, contentType string) (Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "invalid MP3 stream", Err: err}
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "corrupt MP3 frame", Err: err}
	}
	clip := Clip{SampleRate: dec.SampleRate(), Channels: 2}
	clip.Data = pcm[:len(pcm)/clip.Format().bytesPerFrame()*clip.Format().bytesPerFrame()]
	if clip.Empty() {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "MP3 stream holds no samples"}
	}
	return clip, nil
}
