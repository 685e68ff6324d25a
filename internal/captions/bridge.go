package captions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/eclectech/internal/observe"
	"github.com/MrWong99/eclectech/pkg/audio"
	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

// DefaultRestartDelay is how long streaming recognition waits before
// restarting after a non-fatal end.
const DefaultRestartDelay = time.Second

// ErrNoTranscriber is returned by [Bridge.Transcribe] when no segment
// transcriber is configured.
var ErrNoTranscriber = errors.New("captions: no transcriber configured")

// BridgeOption configures a [Bridge].
type BridgeOption func(*Bridge)

// WithLanguage sets the recognition language passed to streaming sessions.
func WithLanguage(lang string) BridgeOption {
	return func(b *Bridge) { b.language = lang }
}

// WithRestartDelay overrides [DefaultRestartDelay].
func WithRestartDelay(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.restartDelay = d
		}
	}
}

// WithProviderNames sets the provider labels recorded in metrics.
func WithProviderNames(transcriber, streamer string) BridgeOption {
	return func(b *Bridge) {
		b.transcriberName = transcriber
		b.streamerName = streamer
	}
}

// WithBridgeMetrics records on m instead of [observe.DefaultMetrics].
func WithBridgeMetrics(m *observe.Metrics) BridgeOption {
	return func(b *Bridge) { b.metrics = m }
}

// Bridge connects captured audio to speech recognition. Segment mode sends
// one finalised window at a time to an [stt.Transcriber]; streaming mode
// feeds live audio to an [stt.Provider] session.
type Bridge struct {
	transcriber     stt.Transcriber
	streamer        stt.Provider
	language        string
	restartDelay    time.Duration
	transcriberName string
	streamerName    string
	metrics         *observe.Metrics
}

// NewBridge returns a bridge. Either backend may be nil.
func NewBridge(t stt.Transcriber, p stt.Provider, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		transcriber:     t,
		streamer:        p,
		restartDelay:    DefaultRestartDelay,
		transcriberName: "transcriber",
		streamerName:    "stt",
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// CanSegment reports whether segment transcription is available.
func (b *Bridge) CanSegment() bool { return b != nil && b.transcriber != nil }

// CanStream reports whether streaming recognition is available.
func (b *Bridge) CanStream() bool { return b != nil && b.streamer != nil }

// Transcribe returns the text spoken in seg. Empty text with a nil error
// means nothing was recognised.
func (b *Bridge) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	if !b.CanSegment() {
		return "", ErrNoTranscriber
	}
	start := time.Now()
	tr, err := b.transcriber.Transcribe(ctx, seg)
	b.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		b.metrics.RecordProviderRequest(ctx, b.transcriberName, "transcriber", "error")
		b.metrics.RecordProviderError(ctx, b.transcriberName, "transcriber")
		return "", err
	}
	b.metrics.RecordProviderRequest(ctx, b.transcriberName, "transcriber", "ok")
	return strings.TrimSpace(tr.Text), nil
}

// streamLoop drives streaming recognition for one run. The recorder runs
// without windows; the recognition session restarts after non-fatal ends and
// keeps going while the video is paused.
type streamLoop struct {
	r      *run
	bridge *Bridge
	format audio.Format
	dec    *audio.StreamDecoder
}

func (l *streamLoop) Run(ctx context.Context) {
	var (
		sess     stt.SessionHandle
		chunks   <-chan []byte
		partials <-chan stt.Transcript
		finals   <-chan stt.Transcript
		restart  <-chan time.Time
		fatal    bool
	)

	stopRecorder := func() {
		if chunks == nil {
			return
		}
		if err := l.r.tap.StopRecording(); err != nil {
			l.r.log.Debug("stopping recorder", "err", err)
		}
		chunks = nil
	}
	closeSession := func() {
		if sess != nil {
			_ = sess.Close()
			sess = nil
		}
		partials, finals = nil, nil
	}
	shutdown := func() {
		stopRecorder()
		closeSession()
		restart = nil
	}
	scheduleRestart := func() {
		restart = time.After(l.bridge.restartDelay)
	}
	startSession := func() {
		s, err := l.bridge.streamer.StartStream(ctx, stt.StreamConfig{
			SampleRate: audio.STTSampleRate,
			Channels:   1,
			Language:   l.bridge.language,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.bridge.metrics.RecordProviderError(ctx, l.bridge.streamerName, "stt")
			if stt.IsFatal(err) {
				fatal = true
				l.r.log.Warn("streaming recognition failed", "err", errors.Join(ErrFatalRecognition, err))
				l.r.showError(err)
				stopRecorder()
				return
			}
			l.r.log.Warn("starting recognition session", "err", err)
			if l.r.transcript.Empty() {
				l.r.showError(err)
			}
			scheduleRestart()
			return
		}
		l.bridge.metrics.RecordProviderRequest(ctx, l.bridge.streamerName, "stt", "ok")
		sess = s
		partials, finals = s.Partials(), s.Finals()
		if l.r.transcript.Empty() {
			l.r.show(l.r.msgs.Get(MsgListening))
		}
	}
	begin := func() {
		if fatal {
			return
		}
		if chunks == nil {
			c, err := l.r.tap.StartRecording(ctx, l.format.MIME, 0)
			if err != nil {
				l.r.log.Warn("starting recorder", "mime", l.format.MIME, "err", err)
				l.r.reveal(l.r.msgs.Error(err))
				return
			}
			chunks = c
		}
		if sess == nil && restart == nil {
			startSession()
		}
	}
	sessionEnded := func() {
		err := sess.Err()
		closeSession()
		switch {
		case ctx.Err() != nil:
		case stt.IsFatal(err):
			fatal = true
			l.r.log.Warn("streaming recognition stopped", "err", errors.Join(ErrFatalRecognition, err))
			if l.r.transcript.Empty() {
				l.r.showError(err)
			}
			stopRecorder()
		default:
			if err != nil {
				l.r.log.Warn("recognition session ended", "err", err)
				if l.r.transcript.Empty() {
					l.r.showError(err)
				}
			}
			scheduleRestart()
		}
	}

	l.r.reveal(l.r.msgs.Get(MsgWaitingForSpeech))
	begin()

	for {
		select {
		case <-ctx.Done():
			shutdown()
			return

		case ev, ok := <-l.r.events:
			if !ok {
				shutdown()
				return
			}
			switch ev.Kind {
			case EventPlay:
				l.r.reveal("")
				begin()
			case EventEnded:
				shutdown()
				l.r.hide()
			case EventVolumeChange:
				if ev.Muted && l.r.transcript.Empty() {
					l.r.show(l.r.msgs.Get(MsgMuted))
				}
			}

		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if sess == nil || len(c) == 0 {
				continue
			}
			pcm, err := l.dec.Decode(c)
			if err != nil {
				l.r.log.Debug("dropping undecodable chunk", "err", err)
				continue
			}
			if err := sess.SendAudio(pcm); err != nil && !errors.Is(err, stt.ErrSessionClosed) {
				l.r.log.Debug("sending audio", "err", err)
			}

		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if line := l.r.transcript.Interim(t.Text, l.r.video.State().Time); line != "" {
				l.r.show(line)
			}

		case t, ok := <-finals:
			if !ok {
				sessionEnded()
				continue
			}
			at := l.r.video.State().Time
			if line := l.r.transcript.AddFinal(t.Text, at); line != "" {
				l.r.show(line)
				l.r.emitFinal(t.Text, at)
			}

		case <-restart:
			restart = nil
			if sess == nil && !fatal && chunks != nil {
				startSession()
			}
		}
	}
}
