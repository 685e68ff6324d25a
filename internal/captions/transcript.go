package captions

import (
	"strings"
	"sync"
	"time"
)

// DefaultHistorySize is the number of final lines kept per run.
const DefaultHistorySize = 10

// TranscriptState holds the latest caption line and a bounded history of
// final lines, newest first. It is safe for concurrent use.
//
// Once a line has been shown, transient errors leave it on screen instead of
// reverting to a placeholder; callers check [TranscriptState.Empty] first.
type TranscriptState struct {
	mu      sync.Mutex
	size    int
	latest  string
	history []string
}

// NewTranscriptState returns a state keeping at most size lines. Non-positive
// sizes use [DefaultHistorySize].
func NewTranscriptState(size int) *TranscriptState {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &TranscriptState{size: size}
}

// AddFinal records a committed line spoken at at and returns it formatted.
// Blank text is ignored and returns "".
func (s *TranscriptState) AddFinal(text string, at time.Duration) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	line := Line(at, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = line
	s.history = append([]string{line}, s.history...)
	if len(s.history) > s.size {
		s.history = s.history[:s.size]
	}
	return line
}

// Interim formats an interim result. Interim text becomes the latest line
// but never enters the history.
func (s *TranscriptState) Interim(text string, at time.Duration) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	line := Line(at, text)
	s.mu.Lock()
	s.latest = line
	s.mu.Unlock()
	return line
}

// Latest returns the most recent line, final or interim.
func (s *TranscriptState) Latest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// History returns the final lines, newest first.
func (s *TranscriptState) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// Empty reports whether no line has been shown yet.
func (s *TranscriptState) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest == ""
}

// Reset clears all lines.
func (s *TranscriptState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = ""
	s.history = nil
}
