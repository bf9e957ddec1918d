package audio

import (
	"encoding/binary"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

// Content types understood by [Decode].
const (
	ContentTypeWAV = "audio/wav"
	ContentTypeL16 = "audio/l16"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE

	// defaultL16Rate is assumed for raw PCM payloads that carry no rate parameter.
	defaultL16Rate = 16000
)

// DecodeError reports an audio payload that could not be turned into a [Clip].
type DecodeError struct {
	// ContentType is the content type hint that accompanied the payload.
	ContentType string
	// Reason is a short human-readable description of the problem.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	ct := e.ContentType
	if ct == "" {
		ct = "unknown content type"
	}
	if e.Err != nil {
		return fmt.Sprintf("audio: decode %s: %s: %v", ct, e.Reason, e.Err)
	}
	return fmt.Sprintf("audio: decode %s: %s", ct, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns a synthesised audio payload into a playable [Clip].
//
// RIFF/WAVE and FLAC payloads are recognised by their magic bytes regardless
// of the content type hint; WAV must contain 16-bit integer PCM. Raw PCM is
// accepted when contentType is audio/L16 (or audio/pcm) and may carry rate
// and channels parameters, e.g. "audio/L16;rate=16000;channels=1". MP3 is
// decoded when the content type says so or the payload starts with an ID3 tag
// or a frame sync.
func Decode(data []byte, contentType string) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "empty payload"}
	}
	if isWAV(data) {
		return decodeWAV(data, contentType)
	}
	if isFLAC(data) {
		return decodeFLAC(data, contentType)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil && contentType != "" {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "malformed content type", Err: err}
	}
	switch strings.ToLower(mediaType) {
	case ContentTypeL16, "audio/pcm", "audio/x-pcm":
		return decodeL16(data, contentType, params)
	case ContentTypeWAV, "audio/x-wav", "audio/wave":
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "payload is not a RIFF/WAVE file"}
	case ContentTypeFLAC, "audio/x-flac":
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "payload is not a FLAC stream"}
	case ContentTypeMP3, "audio/mp3":
		return decodeMP3(data, contentType)
	}
	if isMP3(data) {
		return decodeMP3(data, contentType)
	}
	return Clip{}, &DecodeError{ContentType: contentType, Reason: "unsupported audio format"}
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func decodeL16(data []byte, contentType string, params map[string]string) (Clip, error) {
	rate := defaultL16Rate
	channels := 1
	if v, ok := params["rate"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Clip{}, &DecodeError{ContentType: contentType, Reason: "invalid rate parameter", Err: err}
		}
		rate = n
	}
	if v, ok := params["channels"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 2 {
			return Clip{}, &DecodeError{ContentType: contentType, Reason: "invalid channels parameter", Err: err}
		}
		channels = n
	}
	clip := Clip{SampleRate: rate, Channels: channels}
	clip.Data = data[:len(data)/clip.Format().bytesPerFrame()*clip.Format().bytesPerFrame()]
	if clip.Empty() {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "payload shorter than one sample frame"}
	}
	return clip, nil
}

// wavInfo holds the parameters extracted from a WAV header.
type wavInfo struct {
	dataOffset    int
	dataSize      int
	sampleRate    int
	channels      int
	audioFormat   int
	bitsPerSample int
}

func decodeWAV(data []byte, contentType string) (Clip, error) {
	info, err := parseWAV(data)
	if err != nil {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "invalid WAV container", Err: err}
	}
	if info.audioFormat != wavFormatPCM && info.audioFormat != wavFormatExtensible {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: fmt.Sprintf("unsupported WAV encoding %d", info.audioFormat)}
	}
	if info.bitsPerSample != 16 {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: fmt.Sprintf("unsupported bit depth %d", info.bitsPerSample)}
	}
	if info.sampleRate <= 0 || info.channels < 1 || info.channels > 2 {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "invalid WAV format parameters"}
	}

	clip := Clip{SampleRate: info.sampleRate, Channels: info.channels}
	pcm := data[info.dataOffset : info.dataOffset+info.dataSize]
	clip.Data = pcm[:len(pcm)/clip.Format().bytesPerFrame()*clip.Format().bytesPerFrame()]
	if clip.Empty() {
		return Clip{}, &DecodeError{ContentType: contentType, Reason: "WAV data chunk is empty"}
	}
	return clip, nil
}

// parseWAV walks the RIFF chunks of wav and locates the fmt and data chunks.
// Servers that stream their output often write 0 or 0xFFFFFFFF as the data
// chunk size; in that case the data extends to the end of the buffer.
func parseWAV(wav []byte) (wavInfo, error) {
	if !isWAV(wav) {
		return wavInfo{}, fmt.Errorf("missing RIFF/WAVE header")
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || offset+8+16 > len(wav) {
				return wavInfo{}, fmt.Errorf("fmt chunk too short (%d bytes)", chunkSize)
			}
			fmtData := wav[offset+8:]
			info.audioFormat = int(binary.LittleEndian.Uint16(fmtData[0:2]))
			info.channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			info.sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			info.bitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return wavInfo{}, fmt.Errorf("data chunk precedes fmt chunk")
			}
			info.dataOffset = offset + 8
			remaining := len(wav) - info.dataOffset
			if chunkSize == 0 || chunkSize > remaining {
				chunkSize = remaining
			}
			info.dataSize = chunkSize
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if odd size.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, fmt.Errorf("missing data chunk")
}
