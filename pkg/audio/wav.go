package audio

import "encoding/binary"

// EncodeWAV wraps the clip's PCM in a canonical 44-byte RIFF/WAVE header.
// Transcription backends that accept file uploads expect this container.
func EncodeWAV(c Clip) []byte {
	channels := max(c.Channels, 1)
	dataSize := uint32(len(c.Data))
	byteRate := uint32(c.SampleRate * channels * 2)
	blockAlign := uint16(channels * 2)

	buf := make([]byte, 44, 44+len(c.Data))
	le := binary.LittleEndian
	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], 36+dataSize)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], wavFormatPCM)
	le.PutUint16(buf[22:24], uint16(channels))
	le.PutUint32(buf[24:28], uint32(c.SampleRate))
	le.PutUint32(buf[28:32], byteRate)
	le.PutUint16(buf[32:34], blockAlign)
	le.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], dataSize)
	return append(buf, c.Data...)
}
