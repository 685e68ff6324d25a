package stt_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

func TestFatal(t *testing.T) {
	t.Parallel()
	cause := errors.New("not-allowed")
	err := fmt.Errorf("deepgram: %w", stt.Fatal(cause))

	if !stt.IsFatal(err) {
		t.Error("expected wrapped fatal error to be fatal")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to stay inspectable")
	}
	if stt.IsFatal(cause) {
		t.Error("plain error must not be fatal")
	}
	if stt.Fatal(nil) != nil {
		t.Error("Fatal(nil) must be nil")
	}
	if err.Error() != "deepgram: not-allowed" {
		t.Errorf("message = %q", err.Error())
	}
}
