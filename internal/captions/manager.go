package captions

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/eclectech/internal/observe"
	"github.com/MrWong99/eclectech/pkg/audio"
)

// Mode selects how captions are produced when no built-in track exists.
type Mode string

const (
	// ModeAuto streams when a streaming provider is available and falls back
	// to segments otherwise.
	ModeAuto Mode = "auto"
	// ModeStreaming only streams.
	ModeStreaming Mode = "streaming"
	// ModeSegment only transcribes recorded windows.
	ModeSegment Mode = "segment"
)

// Config tunes a [Manager]. Zero values select the defaults.
type Config struct {
	Window          time.Duration
	MinSegmentBytes int
	HistorySize     int
	Mode            Mode
	Language        string
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MinSegmentBytes <= 0 {
		c.MinSegmentBytes = DefaultMinSegmentBytes
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.Mode == "" {
		c.Mode = ModeAuto
	}
	return c
}

// Final is a committed caption line.
type Final struct {
	VideoID string
	Text    string
	At      time.Duration
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithConfig sets the capture configuration.
func WithConfig(c Config) ManagerOption {
	return func(m *Manager) { m.cfg = c }
}

// WithOnFinal registers fn to receive every committed line. fn must not
// block.
func WithOnFinal(fn func(Final)) ManagerOption {
	return func(m *Manager) { m.onFinal = fn }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithManagerMetrics records on m instead of [observe.DefaultMetrics].
func WithManagerMetrics(met *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = met }
}

// Manager owns at most one caption run at a time. It is safe for concurrent
// use.
type Manager struct {
	bridge  *Bridge
	cfg     Config
	msgs    *Messages
	onFinal func(Final)
	log     *slog.Logger
	metrics *observe.Metrics

	mu  sync.Mutex
	cur *run
}

// NewManager returns a manager transcribing through bridge, which may be nil
// when no recognition backend is configured.
func NewManager(bridge *Bridge, opts ...ManagerOption) *Manager {
	m := &Manager{bridge: bridge}
	for _, o := range opts {
		o(m)
	}
	m.cfg = m.cfg.withDefaults()
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	m.msgs = NewMessages(m.cfg.Language)
	return m
}

// Active reports whether a run is attached.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil
}

// Transcript returns the final lines of the current run, newest first.
func (m *Manager) Transcript() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return nil
	}
	return m.cur.transcript.History()
}

// Start attaches captions to host's video, replacing any current run. A page
// without a video is left alone. ctx bounds the run.
func (m *Manager) Start(ctx context.Context, host Host) {
	m.Stop()

	video, ok := host.Video()
	if !ok {
		m.log.Warn("no video element found for captions")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		video:      video,
		display:    host.NewDisplay(),
		transcript: NewTranscriptState(m.cfg.HistorySize),
		msgs:       m.msgs,
		log:        m.log.With("video", video.ID()),
		onFinal:    m.onFinal,
		cancel:     cancel,
		done:       make(chan struct{}),
		metrics:    m.metrics,
	}
	r.display.Update(m.msgs.Get(MsgInitialising), false)
	r.events, r.detach = video.Subscribe()

	loop := m.plan(runCtx, r)

	m.mu.Lock()
	m.cur = r
	m.mu.Unlock()
	m.metrics.ActiveCaptionSessions.Add(ctx, 1)

	go func() {
		defer close(r.done)
		loop(runCtx)
	}()
}

// plan selects the caption source and returns the loop that drives it.
func (m *Manager) plan(ctx context.Context, r *run) func(context.Context) {
	sel := Select(r.video)
	if !sel.FallbackNeeded {
		return func(ctx context.Context) { runTrack(ctx, r, sel) }
	}
	if sel.HadTracks {
		r.reveal(m.msgs.Get(MsgNoSuitableTracks))
	}

	unsupported := func(reason string, args ...any) func(context.Context) {
		r.log.Info("speech recognition unavailable: "+reason, args...)
		r.reveal(m.msgs.Get(MsgNotSupported))
		return r.idle
	}

	if !m.bridge.CanStream() && !m.bridge.CanSegment() {
		return unsupported("no recognition provider configured")
	}

	tap, err := r.video.OpenTap(ctx)
	if errors.Is(err, ErrNoAudioCapture) {
		return unsupported("page cannot tap audio")
	}
	if err != nil {
		r.log.Warn("opening audio tap", "err", err)
		r.reveal(m.msgs.Error(err))
		return r.idle
	}
	r.tap = tap

	formats := tap.RecorderFormats()
	if len(formats) == 0 {
		return unsupported("page has no recorder")
	}

	if m.cfg.Mode != ModeSegment && m.bridge.CanStream() {
		if mime, ok := audio.Negotiate(audio.RawMIMETypes, formats); ok {
			f := audio.ParseMIME(mime)
			dec, err := audio.NewStreamDecoder(f)
			if err == nil {
				r.log.Debug("captions via streaming recognition", "mime", mime)
				l := &streamLoop{r: r, bridge: m.bridge, format: f, dec: dec}
				return l.Run
			}
			r.log.Warn("creating stream decoder", "mime", mime, "err", err)
		}
		if m.cfg.Mode == ModeStreaming {
			return unsupported("no raw recorder format for streaming", "formats", formats)
		}
	}

	if m.cfg.Mode != ModeStreaming && m.bridge.CanSegment() {
		prefs := slices.Concat(audio.RawMIMETypes, audio.RecorderMIMETypes)
		if mime, ok := audio.Negotiate(prefs, formats); ok {
			r.log.Debug("captions via segment transcription", "mime", mime, "window", m.cfg.Window)
			l := &captureLoop{
				r:        r,
				bridge:   m.bridge,
				format:   audio.ParseMIME(mime),
				window:   m.cfg.Window,
				minBytes: m.cfg.MinSegmentBytes,
			}
			return l.Run
		}
	}

	return unsupported("no usable recorder format", "formats", formats, "mode", m.cfg.Mode)
}

// Stop ends the current run, if any, and releases everything it acquired:
// the active recording first, then the video listeners, the audio tap and
// finally the display. It is idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	r := m.cur
	m.cur = nil
	m.mu.Unlock()
	if r == nil {
		return
	}
	r.cleanup()
}

// run is one attachment of captions to a video.
type run struct {
	video      Video
	events     <-chan VideoEvent
	detach     func()
	tap        AudioTap
	display    Display
	transcript *TranscriptState
	msgs       *Messages
	log        *slog.Logger
	onFinal    func(Final)
	metrics    *observe.Metrics

	cancel    context.CancelFunc
	done      chan struct{}
	cleanOnce sync.Once

	mu      sync.Mutex
	text    string
	visible bool
}

// cleanup stops the loop (which stops any recording) and releases the run's
// resources in order.
func (r *run) cleanup() {
	r.cleanOnce.Do(func() {
		r.cancel()
		<-r.done
		r.detach()
		if r.tap != nil {
			if err := r.tap.Release(); err != nil {
				r.log.Debug("releasing audio tap", "err", err)
			}
		}
		r.display.Remove()
		r.metrics.ActiveCaptionSessions.Add(context.Background(), -1)
		r.log.Debug("caption run cleaned up")
	})
}

// idle keeps a run without a caption source attached until it is stopped.
func (r *run) idle(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-r.events:
			if !ok {
				return
			}
		}
	}
}

// show replaces the display text keeping the current visibility.
func (r *run) show(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = text
	r.display.Update(text, r.visible)
}

// reveal makes the display visible with text, or with the current text when
// text is empty.
func (r *run) reveal(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if text != "" {
		r.text = text
	} else if r.text == "" {
		r.text = r.msgs.Get(MsgListening)
	}
	r.visible = true
	r.display.Update(r.text, true)
}

// hide keeps the text but hides the display.
func (r *run) hide() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = false
	r.display.Update(r.text, false)
}

func (r *run) showError(err error) {
	r.show(r.msgs.Error(err))
}

func (r *run) emitFinal(text string, at time.Duration) {
	if r.onFinal != nil {
		r.onFinal(Final{VideoID: r.video.ID(), Text: text, At: at})
	}
}
