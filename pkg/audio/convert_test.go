package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/eclectech/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	got := bytesToSamples(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDownmix_Extremes(t *testing.T) {
	t.Parallel()
	in := samplesToBytes([]int16{32767, 32767, 32767, -32768, -32768, -32768})
	got := bytesToSamples(audio.Downmix(in, 3))
	want := []int16{32767, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	t.Parallel()
	in := samplesToBytes([]int16{1, 2, 3})
	if got := audio.Downmix(in, 1); &got[0] != &in[0] {
		t.Error("expected mono input to be returned unchanged")
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		in        []int16
		src, dst  int
		wantCount int
	}{
		{"same rate", []int16{1, 2, 3, 4}, 16000, 16000, 4},
		{"upsample x2", []int16{0, 100}, 8000, 16000, 4},
		{"downsample x3", make([]int16, 48), 48000, 16000, 16},
		{"zero src rate", []int16{1, 2}, 0, 16000, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := audio.ResampleMono16(samplesToBytes(tc.in), tc.src, tc.dst)
			if n := len(got) / 2; n != tc.wantCount {
				t.Errorf("got %d samples, want %d", n, tc.wantCount)
			}
		})
	}
}

func TestToMono16k(t *testing.T) {
	t.Parallel()
	// 10 ms of 48 kHz stereo → 160 mono samples.
	in := make([]byte, 480*4)
	if got := len(audio.ToMono16k(in, 48000, 2)) / 2; got != 160 {
		t.Errorf("got %d samples, want 160", got)
	}
}

func TestFloat32AndRMS(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{-32768, 0, 16384})
	f := audio.Float32(pcm)
	if f[0] != -1 || f[1] != 0 || f[2] != 0.5 {
		t.Errorf("unexpected float samples: %v", f)
	}

	if rms := audio.RMS(samplesToBytes([]int16{300, -300, 300, -300})); rms != 300 {
		t.Errorf("RMS = %v, want 300", rms)
	}
	if rms := audio.RMS(nil); rms != 0 {
		t.Errorf("RMS(nil) = %v, want 0", rms)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{1, -1, 2, -2})
	wav := audio.EncodeWAV(pcm, 22050, 2)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav size = %d", len(wav))
	}
	got, rate, ch, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 22050 || ch != 2 || string(got) != string(pcm) {
		t.Errorf("round trip mismatch: rate=%d ch=%d", rate, ch)
	}
}

func TestDecodeWAV_Malformed(t *testing.T) {
	t.Parallel()
	if _, _, _, err := audio.DecodeWAV([]byte("RIFFxxxxJUNK")); err == nil {
		t.Error("expected error for non-WAVE data")
	}
}

func TestParseMIME(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mime      string
		container audio.Container
		rate      int
		ext       string
	}{
		{"audio/pcm;rate=16000", audio.PCM, 16000, "wav"},
		{"audio/pcm; rate=44100", audio.PCM, 44100, "wav"},
		{"audio/opus", audio.Opus, 48000, "wav"},
		{"audio/webm;codecs=opus", audio.WebM, 0, "webm"},
		{"audio/wav", audio.WAV, 0, "wav"},
		{"AUDIO/MP4", audio.MP4, 0, "m4a"},
		{"video/quicktime", audio.Unknown, 0, "bin"},
	}
	for _, tc := range tests {
		t.Run(tc.mime, func(t *testing.T) {
			t.Parallel()
			f := audio.ParseMIME(tc.mime)
			if f.Container != tc.container {
				t.Errorf("container = %v, want %v", f.Container, tc.container)
			}
			if f.SampleRate != tc.rate {
				t.Errorf("rate = %d, want %d", f.SampleRate, tc.rate)
			}
			if ext := f.Extension(); ext != tc.ext {
				t.Errorf("ext = %q, want %q", ext, tc.ext)
			}
		})
	}
}

func TestNegotiate(t *testing.T) {
	t.Parallel()
	mime, ok := audio.Negotiate(audio.RecorderMIMETypes, []string{"audio/mp4", "audio/wav"})
	if !ok || mime != "audio/wav" {
		t.Errorf("got %q, %v; want audio/wav", mime, ok)
	}
	if _, ok := audio.Negotiate(audio.RecorderMIMETypes, []string{"audio/ogg"}); ok {
		t.Error("expected no match")
	}
}

func TestSegment(t *testing.T) {
	t.Parallel()
	seg := audio.Segment{
		Format: audio.ParseMIME("audio/pcm;rate=16000"),
		Chunks: [][]byte{samplesToBytes([]int16{1, 2}), samplesToBytes([]int16{3})},
		Start:  2 * time.Second,
	}
	if seg.Size() != 6 {
		t.Errorf("Size = %d, want 6", seg.Size())
	}
	pcm, err := seg.PCM16k()
	if err != nil {
		t.Fatalf("PCM16k: %v", err)
	}
	if got := bytesToSamples(pcm); len(got) != 3 || got[2] != 3 {
		t.Errorf("unexpected pcm %v", got)
	}

	data, name, ct, err := seg.File()
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if name != "audio.wav" || ct != "audio/wav" || len(data) != 44+6 {
		t.Errorf("File() = %d bytes, %q, %q", len(data), name, ct)
	}
}

func TestSegment_ContainerPassthrough(t *testing.T) {
	t.Parallel()
	seg := audio.Segment{
		Format: audio.ParseMIME("audio/webm;codecs=opus"),
		Chunks: [][]byte{[]byte("webm-bytes")},
	}
	if _, err := seg.PCM16k(); !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("PCM16k err = %v, want ErrUnsupportedFormat", err)
	}
	data, name, ct, err := seg.File()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "webm-bytes" || name != "audio.webm" || ct != "audio/webm;codecs=opus" {
		t.Errorf("File() = %q, %q, %q", data, name, ct)
	}
}

func TestStreamDecoder_PCMPassThrough(t *testing.T) {
	t.Parallel()
	dec, err := audio.NewStreamDecoder(audio.ParseMIME("audio/pcm;rate=16000"))
	if err != nil {
		t.Fatalf("NewStreamDecoder: %v", err)
	}
	in := samplesToBytes([]int16{1, 2, 3, 4})
	out, err := dec.Decode(in)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != len(in) {
		t.Errorf("Decode length = %d, want %d", len(out), len(in))
	}
}

func TestStreamDecoder_RejectsContainers(t *testing.T) {
	t.Parallel()
	for _, mime := range []string{"audio/webm;codecs=opus", "audio/mp4", "audio/wav"} {
		if _, err := audio.NewStreamDecoder(audio.ParseMIME(mime)); !errors.Is(err, audio.ErrUnsupportedFormat) {
			t.Errorf("NewStreamDecoder(%q) err = %v, want ErrUnsupportedFormat", mime, err)
		}
	}
}
