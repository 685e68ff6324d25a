package stt

import "time"

// Transcript represents a speech-to-text result. Both partial (interim) and
// final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a committed result.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero if the
	// provider does not report one.
	Confidence float64

	// Language is the detected or requested language, when known.
	Language string

	// Duration is the length of the recognised audio.
	Duration time.Duration
}
