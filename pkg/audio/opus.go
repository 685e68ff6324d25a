package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Browser Opus encoders produce 48 kHz stereo at up to 60 ms per frame.
const (
	opusSampleRate   = 48000
	opusChannels     = 2
	opusMaxFrameSize = opusSampleRate * 60 / 1000
)

// OpusDecoder decodes consecutive Opus packets of a single stream. Decoder
// state carries across packets, so use one per segment.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates a 48 kHz stereo decoder.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes one packet into interleaved little-endian int16 PCM.
func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, opusMaxFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// DecodePackets decodes packets in order and concatenates the PCM. Empty
// packets are skipped.
func (d *OpusDecoder) DecodePackets(packets [][]byte) ([]byte, error) {
	var out []byte
	for i, p := range packets {
		if len(p) == 0 {
			continue
		}
		pcm, err := d.Decode(p)
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w", i, err)
		}
		out = append(out, pcm...)
	}
	return out, nil
}

func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
