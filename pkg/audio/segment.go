// Package audio holds the audio plumbing shared by the caption engine and the
// speech providers: captured segments, MIME negotiation, and PCM conversion.
package audio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Container identifies how the bytes of a [Segment] are encoded.
type Container int

const (
	// Unknown is an unrecognised MIME type.
	Unknown Container = iota
	// PCM is raw 16-bit little-endian mono PCM ("audio/pcm;rate=N").
	PCM
	// Opus is a sequence of raw Opus packets, one per chunk ("audio/opus").
	Opus
	// WAV is a RIFF/WAVE file.
	WAV
	// WebM is a WebM container, typically with Opus inside.
	WebM
	// MP4 is an MP4/M4A container.
	MP4
)

// ErrUnsupportedFormat is returned when a segment cannot be decoded to PCM on
// the server. Container formats can still be uploaded verbatim to providers
// that accept files.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// RecorderMIMETypes is the preference list offered to the page recorder. The
// first type the page supports wins.
var RecorderMIMETypes = []string{
	"audio/webm;codecs=opus",
	"audio/wav",
	"audio/mp4",
	"audio/webm",
}

// RawMIMETypes are the formats the server decodes itself. Pages that can
// produce them are asked for these first.
var RawMIMETypes = []string{
	"audio/pcm;rate=16000",
	"audio/opus",
}

// Format is a parsed recorder MIME type.
type Format struct {
	MIME       string
	Container  Container
	SampleRate int
}

// ParseMIME parses a recorder MIME type. Parameters other than rate are kept
// in MIME but otherwise ignored.
func ParseMIME(mime string) Format {
	f := Format{MIME: mime}
	base, params, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mime)), ";")
	switch strings.TrimSpace(base) {
	case "audio/pcm", "audio/l16":
		f.Container = PCM
		f.SampleRate = STTSampleRate
	case "audio/opus":
		f.Container = Opus
		f.SampleRate = opusSampleRate
	case "audio/wav", "audio/wave", "audio/x-wav":
		f.Container = WAV
	case "audio/webm":
		f.Container = WebM
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		f.Container = MP4
	}
	for p := range strings.SplitSeq(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && k == "rate" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				f.SampleRate = n
			}
		}
	}
	return f
}

// Extension returns a file extension suitable for uploading the container.
func (f Format) Extension() string {
	switch f.Container {
	case WAV, PCM, Opus:
		return "wav"
	case WebM:
		return "webm"
	case MP4:
		return "m4a"
	default:
		return "bin"
	}
}

// Negotiate returns the first entry of preferred that appears in supported,
// compared case-insensitively. ok is false when nothing matches.
func Negotiate(preferred, supported []string) (mime string, ok bool) {
	for _, p := range preferred {
		for _, s := range supported {
			if strings.EqualFold(strings.ReplaceAll(p, " ", ""), strings.ReplaceAll(s, " ", "")) {
				return p, true
			}
		}
	}
	return "", false
}

// Segment is one finalised capture window: every chunk the recorder emitted
// between start and stop.
type Segment struct {
	Format Format

	// Chunks are the recorder's data chunks in arrival order. For Opus each
	// chunk is exactly one packet.
	Chunks [][]byte

	// Start is the video position at the beginning of the window.
	Start time.Duration
}

// Size returns the total number of bytes in the segment.
func (s Segment) Size() int {
	n := 0
	for _, c := range s.Chunks {
		n += len(c)
	}
	return n
}

// Bytes concatenates the chunks.
func (s Segment) Bytes() []byte {
	out := make([]byte, 0, s.Size())
	for _, c := range s.Chunks {
		out = append(out, c...)
	}
	return out
}

// PCM16k decodes the segment to 16 kHz mono PCM. Only raw formats and WAV
// can be decoded; other containers return [ErrUnsupportedFormat].
func (s Segment) PCM16k() ([]byte, error) {
	switch s.Format.Container {
	case PCM:
		return ResampleMono16(s.Bytes(), s.Format.SampleRate, STTSampleRate), nil
	case WAV:
		pcm, rate, channels, err := DecodeWAV(s.Bytes())
		if err != nil {
			return nil, err
		}
		return ToMono16k(pcm, rate, channels), nil
	case Opus:
		dec, err := NewOpusDecoder()
		if err != nil {
			return nil, err
		}
		pcm, err := dec.DecodePackets(s.Chunks)
		if err != nil {
			return nil, err
		}
		return ToMono16k(pcm, opusSampleRate, opusChannels), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, s.Format.MIME)
	}
}

// File returns bytes suitable for a file upload along with the file name. Raw
// formats are wrapped in WAV; containers are passed through.
func (s Segment) File() (data []byte, name string, contentType string, err error) {
	switch s.Format.Container {
	case WebM, MP4, WAV:
		return s.Bytes(), "audio." + s.Format.Extension(), s.Format.MIME, nil
	}
	pcm, err := s.PCM16k()
	if err != nil {
		return nil, "", "", err
	}
	return EncodeWAV(pcm, STTSampleRate, 1), "audio.wav", "audio/wav", nil
}
