// Package stt defines the interfaces for Speech-to-Text backends.
//
// Two shapes are supported, matching the two caption modes:
//
//   - [Provider] opens a streaming session. Audio is pushed with SendAudio and
//     two streams of [Transcript] come back: low-latency partials (interim
//     captions) and authoritative finals.
//   - [Transcriber] transcribes one finalised capture window at a time.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/eclectech/pkg/audio"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// ErrFatal marks recognition errors that must not trigger an automatic
// restart: rejected credentials, denied permissions, or an aborted session.
// Wrap with [Fatal] and test with errors.Is.
var ErrFatal = errors.New("stt: fatal recognition error")

type fatalError struct{ err error }

func (e fatalError) Error() string   { return e.err.Error() }
func (e fatalError) Unwrap() []error { return []error{e.err, ErrFatal} }

// Fatal wraps err so that errors.Is(err, ErrFatal) reports true while the
// original cause stays inspectable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err: err}
}

// IsFatal reports whether err is a fatal recognition error.
func IsFatal(err error) bool { return errors.Is(err, ErrFatal) }

// StreamConfig describes the audio format and recognition hints for a new
// streaming session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Pages send 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// Empty lets the provider auto-detect, if supported.
	Language string
}

// SessionHandle represents an open streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian PCM. Calling it after
	// Close returns ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Partials emits interim results. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed results. Closed when the session ends.
	Finals() <-chan Transcript

	// Err returns the error that ended the session, or nil if it ended
	// because Close was called. Valid once Finals is closed.
	Err() error

	// Close terminates the session and releases its resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
type Provider interface {
	// StartStream opens a new streaming session. The caller owns the returned
	// handle and must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// Transcriber transcribes a single captured window.
type Transcriber interface {
	// Transcribe returns the recognised text for seg. An empty Text with a
	// nil error means no speech was recognised.
	Transcribe(ctx context.Context, seg audio.Segment) (Transcript, error)
}
