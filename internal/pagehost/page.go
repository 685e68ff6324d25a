// Package pagehost connects a page running the overlay script to the
// server over a websocket. A [Page] implements the controller's host and
// chrome interfaces as well as the caption video, audio tap and display, by
// translating calls into JSON messages and page messages back into state.
//
// Audio arrives as binary frames and is routed to the active recording.
// Frames are dropped when the consumer lags; the read loop never blocks on
// audio.
package pagehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/eclectech/internal/captions"
	"github.com/MrWong99/eclectech/internal/controller"
	"github.com/MrWong99/eclectech/internal/observe"
)

// ErrClosed is returned by calls on a page whose connection has ended.
var ErrClosed = errors.New("pagehost: page closed")

const (
	// DefaultAckTimeout bounds how long a replace or recorder start waits
	// for the page to answer.
	DefaultAckTimeout = 10 * time.Second

	// DefaultStopGrace is how long a stopped recording waits for the page to
	// flush before its channel is closed anyway.
	DefaultStopGrace = 2 * time.Second

	writeTimeout = 5 * time.Second

	// Documents travel in full, so text frames can be large.
	maxMessageBytes = 16 << 20

	chunkBuffer = 64
	eventBuffer = 32
)

var (
	_ controller.Host   = (*Page)(nil)
	_ controller.Chrome = (*Page)(nil)
)

// Option configures a [Page].
type Option func(*Page)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Page) { p.log = l }
}

// WithMetrics sets the metrics the page reports to.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Page) { p.metrics = m }
}

// WithAckTimeout overrides [DefaultAckTimeout].
func WithAckTimeout(d time.Duration) Option {
	return func(p *Page) { p.ackTimeout = d }
}

// WithStopGrace overrides [DefaultStopGrace].
func WithStopGrace(d time.Duration) Option {
	return func(p *Page) { p.stopGrace = d }
}

// Page is one connected page.
type Page struct {
	conn       *websocket.Conn
	log        *slog.Logger
	metrics    *observe.Metrics
	ackTimeout time.Duration
	stopGrace  time.Duration

	hello     chan struct{}
	helloOnce sync.Once
	changes   chan struct{}
	done      chan struct{}
	doneOnce  sync.Once

	mu          sync.Mutex
	url         string
	attrs       map[string]string
	markup      string
	video       *remoteVideo
	displays    int
	replaceAck  chan *VideoInfo
	recorderAck chan startResult
	rec         *recording
	dropped     int64
}

type startResult struct {
	chunks <-chan []byte
	err    error
}

// recording is the target of incoming audio frames. Its channel is only
// sent to and closed with Page.mu held.
type recording struct {
	chunks chan []byte
	closed bool
}

func (r *recording) close() {
	if !r.closed {
		r.closed = true
		close(r.chunks)
	}
}

// Accept upgrades the request to a websocket and wraps it in a Page.
// origins lists the host patterns allowed besides the request's own host.
func Accept(w http.ResponseWriter, r *http.Request, origins []string, opts ...Option) (*Page, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		return nil, fmt.Errorf("pagehost: accept: %w", err)
	}
	return New(conn, opts...), nil
}

// New wraps an established connection. Call [Page.Run] to start reading.
func New(conn *websocket.Conn, opts ...Option) *Page {
	p := &Page{
		conn:       conn,
		log:        slog.Default(),
		ackTimeout: DefaultAckTimeout,
		stopGrace:  DefaultStopGrace,
		hello:      make(chan struct{}),
		changes:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		attrs:      map[string]string{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	conn.SetReadLimit(maxMessageBytes)
	return p
}

// Run reads page messages until the connection ends, ctx is cancelled or
// the page reports that the overlay was removed. A normal close returns nil.
func (p *Page) Run(ctx context.Context) error {
	p.metrics.ActivePages.Add(ctx, 1)
	defer p.metrics.ActivePages.Add(context.WithoutCancel(ctx), -1)
	defer p.shutdown()

	for {
		typ, data, err := p.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pagehost: read: %w", err)
		}
		if typ == websocket.MessageBinary {
			p.deliver(data)
			continue
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			p.log.Warn("malformed page message", "err", err)
			continue
		}
		if p.handle(msg) {
			p.log.Info("overlay removed by page")
			return nil
		}
	}
}

// WaitHello blocks until the page introduced itself.
func (p *Page) WaitHello(ctx context.Context) error {
	select {
	case <-p.hello:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Changes fires after the hello and whenever the page reports new
// attributes. Bursts are coalesced.
func (p *Page) Changes() <-chan struct{} { return p.changes }

// Done is closed when [Page.Run] returns.
func (p *Page) Done() <-chan struct{} { return p.done }

// Dropped returns how many audio frames were discarded because the
// recording consumer lagged or no recording was active.
func (p *Page) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close closes the connection.
func (p *Page) Close(reason string) error {
	return p.conn.Close(websocket.StatusNormalClosure, reason)
}

func (p *Page) shutdown() {
	p.doneOnce.Do(func() { close(p.done) })
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec != nil {
		p.rec.close()
		p.rec = nil
	}
	if p.video != nil {
		p.video.gone()
	}
}

func (p *Page) signal() {
	select {
	case p.changes <- struct{}{}:
	default:
	}
}

// handle applies one page message. It reports true when the page is gone.
func (p *Page) handle(msg Inbound) bool {
	switch msg.Type {
	case TypeHello:
		p.mu.Lock()
		p.url = msg.URL
		p.attrs = cloneAttrs(msg.Attributes)
		p.markup = msg.Markup
		p.setVideoLocked(msg.Video)
		p.mu.Unlock()
		p.helloOnce.Do(func() { close(p.hello) })
		p.log.Debug("page hello", "url", msg.URL, "bytes", len(msg.Markup), "video", msg.Video != nil)
		p.signal()

	case TypeAttributes:
		p.mu.Lock()
		p.attrs = cloneAttrs(msg.Attributes)
		p.mu.Unlock()
		p.signal()

	case TypeVideo:
		kind := captions.ParseEventKind(msg.Event)
		if kind == 0 {
			p.log.Debug("ignoring video event", "event", msg.Event)
			break
		}
		if v := p.currentVideo(); v != nil {
			v.emit(captions.VideoEvent{Kind: kind, Time: seconds(msg.Time), Muted: msg.Muted})
		}

	case TypeCue:
		if v := p.currentVideo(); v != nil {
			st := v.State()
			v.emit(captions.VideoEvent{Kind: captions.EventCueChange, Time: st.Time, Muted: st.Muted, Text: msg.Text})
		}

	case TypeRecorder:
		p.handleRecorder(msg)

	case TypeReplaced:
		p.mu.Lock()
		p.setVideoLocked(msg.Video)
		ack := p.replaceAck
		p.replaceAck = nil
		p.mu.Unlock()
		if ack != nil {
			ack <- msg.Video
		}

	case TypeRemoved:
		return true

	default:
		p.log.Debug("unknown page message", "type", msg.Type)
	}
	return false
}

func (p *Page) handleRecorder(msg Inbound) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch msg.Event {
	case RecorderStarted:
		if p.rec != nil {
			p.rec.close()
		}
		p.rec = &recording{chunks: make(chan []byte, chunkBuffer)}
		if ack := p.recorderAck; ack != nil {
			p.recorderAck = nil
			ack <- startResult{chunks: p.rec.chunks}
		}

	case RecorderStopped:
		if p.rec != nil {
			p.rec.close()
			p.rec = nil
		}

	case RecorderError:
		err := errors.New(msg.Error)
		if ack := p.recorderAck; ack != nil {
			p.recorderAck = nil
			ack <- startResult{err: err}
			return
		}
		p.log.Warn("recorder failed", "err", err)
		if p.rec != nil {
			p.rec.close()
			p.rec = nil
		}
	}
}

// deliver hands an audio frame to the active recording without blocking.
func (p *Page) deliver(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec == nil {
		p.dropped++
		return
	}
	select {
	case p.rec.chunks <- chunk:
	default:
		p.dropped++
		if p.dropped%100 == 1 {
			p.log.Warn("dropping audio frames, consumer lagging", "dropped", p.dropped)
		}
	}
}

func (p *Page) setVideoLocked(info *VideoInfo) {
	if p.video != nil {
		p.video.gone()
	}
	p.video = nil
	if info != nil {
		p.video = newRemoteVideo(p, *info)
	}
}

func (p *Page) currentVideo() *remoteVideo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.video
}

func (p *Page) send(ctx context.Context, v any) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, p.conn, v); err != nil {
		return fmt.Errorf("pagehost: write: %w", err)
	}
	return nil
}

// sendAsync is for fire-and-forget UI updates.
func (p *Page) sendAsync(v any) {
	if err := p.send(context.Background(), v); err != nil && !errors.Is(err, ErrClosed) {
		p.log.Debug("page update not sent", "err", err)
	}
}

// URL implements controller.Host.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Attributes implements controller.Host.
func (p *Page) Attributes() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.attrs)
}

// SetAttributes implements controller.Host. The page is told about the new
// attributes so that its settings dialog shows them.
func (p *Page) SetAttributes(attrs map[string]string) {
	p.mu.Lock()
	p.attrs = cloneAttrs(attrs)
	p.mu.Unlock()
	p.sendAsync(AttributesMessage{Type: TypeAttributes, Attributes: cloneAttrs(attrs)})
}

// Markup implements controller.Host.
func (p *Page) Markup() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markup
}

// Replace implements controller.Host. It returns once the page confirmed the
// swap and reported the video of the new document.
func (p *Page) Replace(ctx context.Context, markup string) error {
	ack := make(chan *VideoInfo, 1)
	p.mu.Lock()
	p.replaceAck = ack
	p.mu.Unlock()

	if err := p.send(ctx, ReplaceMessage{Type: TypeReplace, Markup: markup}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()
	select {
	case <-ack:
		p.mu.Lock()
		p.markup = markup
		p.mu.Unlock()
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("pagehost: replace not confirmed: %w", ctx.Err())
	}
}

// Video implements captions.Host.
func (p *Page) Video() (captions.Video, bool) {
	v := p.currentVideo()
	if v == nil {
		return nil, false
	}
	return v, true
}

// NewDisplay implements captions.Host.
func (p *Page) NewDisplay() captions.Display {
	p.mu.Lock()
	p.displays++
	id := p.displays
	p.mu.Unlock()
	return &remoteDisplay{page: p, id: id}
}

// ShowLoading implements controller.Chrome.
func (p *Page) ShowLoading() {
	p.sendAsync(ChromeMessage{Type: TypeChrome, State: ChromeLoading})
}

// Restore implements controller.Chrome.
func (p *Page) Restore() {
	p.sendAsync(ChromeMessage{Type: TypeChrome, State: ChromeReady})
}

func (p *Page) startRecording(ctx context.Context, video, mime string, window time.Duration) (<-chan []byte, error) {
	ack := make(chan startResult, 1)
	p.mu.Lock()
	if p.recorderAck != nil {
		p.mu.Unlock()
		return nil, errors.New("pagehost: recorder start already pending")
	}
	p.recorderAck = ack
	p.mu.Unlock()

	clearPending := func() {
		p.mu.Lock()
		if p.recorderAck == ack {
			p.recorderAck = nil
		}
		p.mu.Unlock()
	}

	err := p.send(ctx, RecorderMessage{
		Type:     TypeRecorder,
		Action:   ActionStart,
		Video:    video,
		MIME:     mime,
		WindowMS: window.Milliseconds(),
	})
	if err != nil {
		clearPending()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()
	select {
	case res := <-ack:
		if res.err != nil {
			return nil, fmt.Errorf("pagehost: start recorder: %w", res.err)
		}
		return res.chunks, nil
	case <-p.done:
		clearPending()
		return nil, ErrClosed
	case <-ctx.Done():
		clearPending()
		return nil, fmt.Errorf("pagehost: recorder start not confirmed: %w", ctx.Err())
	}
}

func (p *Page) stopRecording(video string) error {
	p.mu.Lock()
	rec := p.rec
	p.mu.Unlock()
	if rec == nil {
		return nil
	}

	// The page flushes and answers with stopped; close anyway if it never
	// does.
	time.AfterFunc(p.stopGrace, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.rec == rec {
			p.rec = nil
		}
		rec.close()
	})

	err := p.send(context.Background(), RecorderMessage{Type: TypeRecorder, Action: ActionStop, Video: video})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func cloneAttrs(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
