// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to feed controlled Transcript values and inspect
// which audio chunks were delivered. Use Transcriber for segment mode.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Sessions: []*mock.Session{sess}}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.FinalsCh <- stt.Transcript{Text: "hello", IsFinal: true}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/eclectech/pkg/audio"
	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Sessions are handed out by StartStream in order. Once exhausted,
	// StartStream returns fresh sessions from NewSession.
	Sessions []*Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	next int
}

// StartStream records the call and returns the next session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.next < len(p.Sessions) {
		s := p.Sessions[p.next]
		p.next++
		return s, nil
	}
	s := NewSession()
	p.Sessions = append(p.Sessions, s)
	p.next++
	return s, nil
}

// CallCount returns how many times StartStream was called. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Tests push results
// into PartialsCh and FinalsCh and end the session with End.
type Session struct {
	mu sync.Mutex

	// PartialsCh is the channel returned by Partials().
	PartialsCh chan stt.Transcript

	// FinalsCh is the channel returned by Finals().
	FinalsCh chan stt.Transcript

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// --- Call records ---

	// Audio records a copy of every chunk passed to SendAudio.
	Audio [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	endErr error
	ended  bool
}

// NewSession returns a Session with buffered channels.
func NewSession() *Session {
	return &Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return stt.ErrSessionClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.Audio = append(s.Audio, cp)
	return s.SendAudioErr
}

// Partials returns PartialsCh.
func (s *Session) Partials() <-chan stt.Transcript { return s.PartialsCh }

// Finals returns FinalsCh.
func (s *Session) Finals() <-chan stt.Transcript { return s.FinalsCh }

// Err returns the error passed to End.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

// End simulates the provider terminating the session with err (nil for a
// clean end). Both channels are closed. Safe to call once.
func (s *Session) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.endErr = err
	close(s.PartialsCh)
	close(s.FinalsCh)
}

// Close records the call and ends the session cleanly.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	s.mu.Unlock()
	s.End(nil)
	return nil
}

// AudioCount returns how many chunks SendAudio accepted. Thread-safe.
func (s *Session) AudioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Audio)
}

// Closed reports whether Close has been called at least once.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount > 0
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	Ctx     context.Context
	Segment audio.Segment
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by Transcribe.
	Result stt.Transcript

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// TranscribeFunc, if set, takes precedence over Result and Err. It is
	// called without the mock's lock held.
	TranscribeFunc func(ctx context.Context, seg audio.Segment) (stt.Transcript, error)

	// Calls records every invocation in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (m *Transcriber) Transcribe(ctx context.Context, seg audio.Segment) (stt.Transcript, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, TranscribeCall{Ctx: ctx, Segment: seg})
	fn, res, err := m.TranscribeFunc, m.Result, m.Err
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, seg)
	}
	return res, err
}

// CallCount returns how many times Transcribe was called. Thread-safe.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
