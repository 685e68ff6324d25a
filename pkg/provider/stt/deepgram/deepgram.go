// Package deepgram provides a Deepgram-backed streaming STT provider using the
// Deepgram live WebSocket API. It implements the stt.Provider interface and
// drives the streaming caption mode.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the provider-level default sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpoint overrides the streaming endpoint. Used by tests and for
// self-hosted Deepgram deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
// Authentication failures are reported as fatal (see stt.IsFatal).
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			err = stt.Fatal(err)
		}
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	// The session outlives the dial context; Close owns teardown.
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{
		conn:     conn,
		cancel:   cancel,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(sessCtx)
	go sess.writeLoop(sessCtx)

	return sess, nil
}

func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

type deepgramResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type session struct {
	conn     *websocket.Conn
	cancel   context.CancelFunc
	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	errMu sync.Mutex
	err   error
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// CloseStream asks Deepgram to flush pending results before closing.
		wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.conn.Write(wctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Closed by us.
			default:
				s.setErr(classify(err))
			}
			return
		}

		t, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}

		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-s.done:
			return
		}
	}
}

// classify marks close codes that indicate rejected credentials or policy
// violations as fatal. Everything else is worth a restart.
func classify(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusPolicyViolation, websocket.StatusUnsupportedData:
		return fmt.Errorf("deepgram: %w", stt.Fatal(err))
	case websocket.StatusNormalClosure:
		return nil
	}
	return fmt.Errorf("deepgram: read: %w", err)
}

func parseDeepgramResponse(data []byte) (stt.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return stt.Transcript{}, false
	}
	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Duration:   time.Duration(resp.Duration * float64(time.Second)),
	}, true
}

var _ stt.Provider = (*Provider)(nil)
