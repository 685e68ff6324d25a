// Package events publishes notifications about finished rewrites and
// committed caption lines to downstream consumers.
package events

import (
	"context"
	"sync"
	"time"
)

// Routing keys.
const (
	TopicRewriteCompleted = "rewrite.completed"
	TopicCaptionFinal     = "caption.final"
)

// RewriteCompleted is published after a page shows rewritten markup.
type RewriteCompleted struct {
	Session     string `json:"session,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Bytes       int    `json:"bytes"`
	Cached      bool   `json:"cached"`
}

// CaptionFinal is published for every committed caption line.
type CaptionFinal struct {
	Session string `json:"session"`
	Video   string `json:"video,omitempty"`
	Text    string `json:"text"`
	// At is the playback position in milliseconds.
	At int64 `json:"at"`
}

// NewCaptionFinal builds a CaptionFinal for a line spoken at playback
// position at.
func NewCaptionFinal(session, video, text string, at time.Duration) CaptionFinal {
	return CaptionFinal{Session: session, Video: video, Text: text, At: at.Milliseconds()}
}

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

var _ Publisher = Nop{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, any) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Message is one event captured by [Memory].
type Message struct {
	Topic   string
	Payload any
}

// Memory keeps published events in memory. Useful for tests and local runs.
type Memory struct {
	mu   sync.Mutex
	msgs []Message
}

var _ Publisher = (*Memory)(nil)

// Publish implements Publisher.
func (m *Memory) Publish(_ context.Context, topic string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, Message{Topic: topic, Payload: payload})
	return nil
}

// Close implements Publisher.
func (m *Memory) Close() error { return nil }

// Messages returns a copy of everything published so far.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.msgs...)
}
