package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const bitsPerSample = 16

// EncodeWAV wraps 16-bit little-endian PCM in a canonical 44-byte RIFF/WAVE
// header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

var errBadWAV = errors.New("audio: malformed wav")

// DecodeWAV extracts 16-bit PCM from a RIFF/WAVE file, walking the chunk
// list so that LIST and other metadata chunks are skipped.
func DecodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, errBadWAV
	}
	var haveFmt bool
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// Streaming recorders often write a placeholder size for data.
			if id == "data" {
				size = len(data) - body
			} else {
				return nil, 0, 0, errBadWAV
			}
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, errBadWAV
			}
			if format := binary.LittleEndian.Uint16(data[body:]); format != 1 {
				return nil, 0, 0, fmt.Errorf("%w: wav format tag %d", ErrUnsupportedFormat, format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			if bits := binary.LittleEndian.Uint16(data[body+14:]); bits != bitsPerSample {
				return nil, 0, 0, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedFormat, bits)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, 0, errBadWAV
			}
			return data[body : body+size], sampleRate, channels, nil
		}
		off = body + size + size%2
	}
	return nil, 0, 0, errBadWAV
}
