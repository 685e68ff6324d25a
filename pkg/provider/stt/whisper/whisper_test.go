package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/eclectech/pkg/audio"
	"github.com/MrWong99/eclectech/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. It increments *callCount on every
// matched request and records the language form field.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32, lang *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if lang != nil {
			lang.Store(r.FormValue("language"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// makeSpeechPCM generates a 440 Hz sine wave whose RMS (≈7071) is well above
// the silence threshold.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func pcmSegment(pcm []byte) audio.Segment {
	return audio.Segment{
		Format: audio.ParseMIME("audio/pcm;rate=16000"),
		Chunks: [][]byte{pcm},
	}
}

// ---- tests ------------------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestTranscribe_Speech(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var lang atomic.Value
	srv := newMockServer(t, "  hello there  ", &calls, &lang)

	tr, err := whisper.New(srv.URL+"/", whisper.WithLanguage("de"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := tr.Transcribe(context.Background(), pcmSegment(makeSpeechPCM(16000)))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "hello there" {
		t.Errorf("Text = %q", got.Text)
	}
	if !got.IsFinal {
		t.Error("expected IsFinal")
	}
	if got.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", got.Duration)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	if l, _ := lang.Load().(string); l != "de" {
		t.Errorf("language field = %q", l)
	}
}

func TestTranscribe_SilenceSkipsInference(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newMockServer(t, "should not be used", &calls, nil)
	tr, _ := whisper.New(srv.URL)

	got, err := tr.Transcribe(context.Background(), pcmSegment(make([]byte, 32000)))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "" {
		t.Errorf("Text = %q, want empty", got.Text)
	}
	if calls.Load() != 0 {
		t.Errorf("server calls = %d, want 0", calls.Load())
	}
}

func TestTranscribe_BlankAudioMarkerDropped(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, "[BLANK_AUDIO]", nil, nil)
	tr, _ := whisper.New(srv.URL)

	got, err := tr.Transcribe(context.Background(), pcmSegment(makeSpeechPCM(1600)))
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "" {
		t.Errorf("Text = %q, want empty", got.Text)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	tr, _ := whisper.New(srv.URL)
	if _, err := tr.Transcribe(context.Background(), pcmSegment(makeSpeechPCM(1600))); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_UnsupportedContainer(t *testing.T) {
	t.Parallel()
	tr, _ := whisper.New("http://127.0.0.1:1")
	seg := audio.Segment{Format: audio.ParseMIME("audio/webm"), Chunks: [][]byte{{1, 2, 3}}}
	if _, err := tr.Transcribe(context.Background(), seg); !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestTranscribe_WAVSegment(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newMockServer(t, "wav ok", &calls, nil)
	tr, _ := whisper.New(srv.URL)

	wav := audio.EncodeWAV(makeSpeechPCM(8000), 16000, 1)
	seg := audio.Segment{Format: audio.ParseMIME("audio/wav"), Chunks: [][]byte{wav[:100], wav[100:]}}
	got, err := tr.Transcribe(context.Background(), seg)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "wav ok" || calls.Load() != 1 {
		t.Errorf("Text = %q calls = %d", got.Text, calls.Load())
	}
}
