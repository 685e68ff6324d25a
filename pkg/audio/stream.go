package audio

import "fmt"

// StreamDecoder converts a live stream of recorder chunks to 16 kHz mono PCM
// one chunk at a time. Only raw formats can be streamed.
type StreamDecoder struct {
	format Format
	opus   *OpusDecoder
}

// NewStreamDecoder returns a decoder for f. Container formats return
// [ErrUnsupportedFormat] since their chunks are not independently decodable.
func NewStreamDecoder(f Format) (*StreamDecoder, error) {
	d := &StreamDecoder{format: f}
	switch f.Container {
	case PCM:
	case Opus:
		dec, err := NewOpusDecoder()
		if err != nil {
			return nil, err
		}
		d.opus = dec
	default:
		return nil, fmt.Errorf("%w for streaming: %s", ErrUnsupportedFormat, f.MIME)
	}
	return d, nil
}

// Decode converts one chunk. For Opus each chunk must be one packet.
func (d *StreamDecoder) Decode(chunk []byte) ([]byte, error) {
	if d.opus == nil {
		return ResampleMono16(chunk, d.format.SampleRate, STTSampleRate), nil
	}
	pcm, err := d.opus.Decode(chunk)
	if err != nil {
		return nil, err
	}
	return ToMono16k(pcm, opusSampleRate, opusChannels), nil
}
