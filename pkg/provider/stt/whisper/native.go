// This file contains the NativeTranscriber implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/eclectech/pkg/audio"
	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

// Compile-time assertion that NativeTranscriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*NativeTranscriber)(nil)

// NativeTranscriber implements stt.Transcriber using whisper.cpp Go bindings,
// eliminating HTTP overhead entirely. The model is loaded once and shared;
// each call creates its own inference context.
type NativeTranscriber struct {
	model      whisperlib.Model
	language   string
	silenceRMS float64

	// sem bounds concurrent inferences; whisper.cpp contexts are memory heavy.
	sem chan struct{}

	closeOnce sync.Once
}

// NativeOption is a functional option for configuring a NativeTranscriber.
type NativeOption func(*NativeTranscriber)

// WithNativeLanguage sets the language code for transcription. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(t *NativeTranscriber) { t.language = lang }
}

// WithNativeConcurrency caps the number of concurrent inferences. Defaults to 2.
func WithNativeConcurrency(n int) NativeOption {
	return func(t *NativeTranscriber) {
		if n > 0 {
			t.sem = make(chan struct{}, n)
		}
	}
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the transcriber is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeTranscriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &NativeTranscriber{
		model:      model,
		language:   defaultLanguage,
		silenceRMS: defaultRMSThreshold,
		sem:        make(chan struct{}, 2),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the whisper model.
func (t *NativeTranscriber) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.model != nil {
			err = t.model.Close()
		}
	})
	return err
}

// Transcribe implements stt.Transcriber.
func (t *NativeTranscriber) Transcribe(ctx context.Context, seg audio.Segment) (stt.Transcript, error) {
	pcm, err := seg.PCM16k()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: decode segment: %w", err)
	}
	if silent(pcm, t.silenceRMS) {
		return stt.Transcript{IsFinal: true, Language: t.language}, nil
	}

	select {
	case t.sem <- struct{}{}:
		defer func() { <-t.sem }()
	case <-ctx.Done():
		return stt.Transcript{}, ctx.Err()
	}

	text, err := t.infer(audio.Float32(pcm))
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{
		Text:     text,
		IsFinal:  true,
		Language: t.language,
		Duration: pcmDuration(pcm),
	}, nil
}

func (t *NativeTranscriber) infer(samples []float32) (string, error) {
	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", t.language, "err", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := cleanText(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
