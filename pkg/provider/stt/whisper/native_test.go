package whisper_test

import (
	"context"
	"os"
	"testing"

	"github.com/MrWong99/eclectech/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads WHISPER_MODEL_PATH; if unset the test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	if _, err := whisper.NewNative("/nonexistent/path/to/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNative_SilenceReturnsEmpty(t *testing.T) {
	tr, err := whisper.NewNative(testModelPath(t), whisper.WithNativeLanguage("en"), whisper.WithNativeConcurrency(1))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer tr.Close()

	got, err := tr.Transcribe(context.Background(), pcmSegment(make([]byte, 32000)))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "" {
		t.Errorf("expected empty text for silence, got %q", got.Text)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
