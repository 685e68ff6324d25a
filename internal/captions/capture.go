package captions

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/eclectech/pkg/audio"
	"github.com/MrWong99/eclectech/pkg/provider/stt"
)

// Capture defaults.
const (
	DefaultWindow          = 3 * time.Second
	DefaultMinSegmentBytes = 1000
)

// captureLoop records the tapped audio in bounded windows while the video
// plays. Each finished window is handed to the bridge without waiting, so
// recording window N+1 overlaps transcription of window N.
type captureLoop struct {
	r        *run
	bridge   *Bridge
	format   audio.Format
	window   time.Duration
	minBytes int

	wg    sync.WaitGroup
	fatal atomic.Bool
}

// Run blocks until ctx ends or the video goes away. It stops any active
// recording and waits for pending transcriptions before returning.
func (l *captureLoop) Run(ctx context.Context) {
	defer l.wg.Wait()

	var (
		chunks  <-chan []byte
		buf     [][]byte
		start   time.Duration
		timer   *time.Timer
		timeout <-chan time.Time
		halted  bool
	)

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timeout = nil, nil
		}
	}
	startWindow := func() {
		c, err := l.r.tap.StartRecording(ctx, l.format.MIME, l.window)
		if err != nil {
			// No retry until the next play.
			halted = true
			l.r.log.Warn("starting recorder", "mime", l.format.MIME, "err", err)
			l.r.reveal(l.r.msgs.Error(err))
			return
		}
		chunks, buf = c, nil
		start = l.r.video.State().Time
		timer = time.NewTimer(l.window)
		timeout = timer.C
		l.r.log.Debug("recording window started", "at", start)
	}
	stopWindow := func() {
		stopTimer()
		if err := l.r.tap.StopRecording(); err != nil {
			l.r.log.Debug("stopping recorder", "err", err)
		}
	}

	if st := l.r.video.State(); st.Playing && !st.Ended {
		l.r.reveal(l.r.msgs.Get(MsgListening))
		startWindow()
	}

	for {
		select {
		case <-ctx.Done():
			if chunks != nil {
				stopWindow()
			}
			return

		case ev, ok := <-l.r.events:
			if !ok {
				if chunks != nil {
					stopWindow()
				}
				return
			}
			switch ev.Kind {
			case EventPlay:
				halted = false
				l.r.reveal("")
				if chunks == nil {
					startWindow()
				}
			case EventPause, EventEnded:
				if chunks != nil {
					stopWindow()
				}
				l.r.hide()
			case EventVolumeChange:
				if ev.Muted && l.r.transcript.Empty() {
					l.r.show(l.r.msgs.Get(MsgMuted))
				}
			}

		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				stopTimer()
				l.finalize(ctx, buf, start)
				buf = nil
				if st := l.r.video.State(); st.Playing && !st.Ended && !halted {
					startWindow()
				}
				continue
			}
			if len(c) > 0 {
				buf = append(buf, c)
			}

		case <-timeout:
			timer, timeout = nil, nil
			stopWindow()
		}
	}
}

// finalize turns one window into a segment and starts its transcription.
func (l *captureLoop) finalize(ctx context.Context, chunks [][]byte, start time.Duration) {
	if len(chunks) == 0 {
		l.r.show(l.r.msgs.Get(MsgNoAudio))
		return
	}
	seg := audio.Segment{Format: l.format, Chunks: chunks, Start: start}
	if seg.Size() < l.minBytes {
		l.r.log.Debug("segment below transcription threshold", "bytes", seg.Size(), "min", l.minBytes)
		l.r.show(l.r.msgs.Get(MsgAudioTooLow))
		return
	}
	if l.fatal.Load() {
		return
	}
	if l.r.transcript.Empty() {
		l.r.show(l.r.msgs.Get(MsgProcessingAudio))
	}

	at := l.r.video.State().Time
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.transcribe(ctx, seg, at)
	}()
}

func (l *captureLoop) transcribe(ctx context.Context, seg audio.Segment, at time.Duration) {
	text, err := l.bridge.Transcribe(ctx, seg)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if stt.IsFatal(err) {
			l.fatal.Store(true)
			l.r.log.Warn("transcription disabled for this run", "err", err)
			l.r.showError(err)
			return
		}
		l.r.log.Warn("transcribing segment", "bytes", seg.Size(), "err", err)
		if l.r.transcript.Empty() {
			l.r.showError(err)
		}
		return
	}
	if text == "" {
		if l.r.transcript.Empty() {
			l.r.show(l.r.msgs.Get(MsgWaitingForSpeech))
		}
		return
	}
	if line := l.r.transcript.AddFinal(text, at); line != "" {
		l.r.show(line)
		l.r.emitFinal(text, at)
	}
}
