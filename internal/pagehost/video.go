package pagehost

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/eclectech/internal/captions"
)

var (
	_ captions.Video    = (*remoteVideo)(nil)
	_ captions.AudioTap = (*remoteTap)(nil)
	_ captions.Display  = (*remoteDisplay)(nil)
)

// remoteVideo mirrors the page's video element. Its state follows the video
// messages of the page.
type remoteVideo struct {
	page *Page
	info VideoInfo

	mu     sync.Mutex
	state  captions.VideoState
	subs   map[int]chan captions.VideoEvent
	nextID int
	closed bool
}

func newRemoteVideo(p *Page, info VideoInfo) *remoteVideo {
	return &remoteVideo{
		page: p,
		info: info,
		state: captions.VideoState{
			Playing: info.Playing,
			Ended:   info.Ended,
			Muted:   info.Muted,
			Time:    seconds(info.Time),
		},
		subs: map[int]chan captions.VideoEvent{},
	}
}

func (v *remoteVideo) ID() string { return v.info.ID }

func (v *remoteVideo) TextTracks() []captions.TextTrack { return v.info.textTracks() }

func (v *remoteVideo) ShowTrack(index int) error {
	return v.page.send(context.Background(), TrackMessage{
		Type:  TypeTrack,
		Video: v.info.ID,
		Index: index,
		Mode:  "showing",
	})
}

func (v *remoteVideo) Subscribe() (<-chan captions.VideoEvent, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ch := make(chan captions.VideoEvent, eventBuffer)
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	id := v.nextID
	v.nextID++
	v.subs[id] = ch
	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if c, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(c)
		}
	}
}

func (v *remoteVideo) State() captions.VideoState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *remoteVideo) OpenTap(context.Context) (captions.AudioTap, error) {
	if !v.info.Capture {
		return nil, captions.ErrNoAudioCapture
	}
	return &remoteTap{page: v.page, video: v.info.ID, formats: v.info.Formats}, nil
}

func (v *remoteVideo) emit(ev captions.VideoEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.state.Time = ev.Time
	v.state.Muted = ev.Muted
	switch ev.Kind {
	case captions.EventPlay:
		v.state.Playing, v.state.Ended = true, false
	case captions.EventPause:
		v.state.Playing = false
	case captions.EventEnded:
		v.state.Playing, v.state.Ended = false, true
	}

	for _, ch := range v.subs {
		select {
		case ch <- ev:
		default:
			v.page.log.Warn("video event dropped, subscriber lagging", "video", v.info.ID, "event", ev.Kind)
		}
	}
}

// gone closes every subscription. The element left the document.
func (v *remoteVideo) gone() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}

type remoteTap struct {
	page    *Page
	video   string
	formats []string
}

func (t *remoteTap) RecorderFormats() []string { return t.formats }

func (t *remoteTap) StartRecording(ctx context.Context, mime string, window time.Duration) (<-chan []byte, error) {
	return t.page.startRecording(ctx, t.video, mime, window)
}

func (t *remoteTap) StopRecording() error {
	return t.page.stopRecording(t.video)
}

func (t *remoteTap) Release() error {
	err := t.page.send(context.Background(), RecorderMessage{Type: TypeRecorder, Action: ActionRelease, Video: t.video})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

type remoteDisplay struct {
	page *Page
	id   int
}

func (d *remoteDisplay) Update(text string, visible bool) {
	d.page.sendAsync(DisplayMessage{Type: TypeDisplay, ID: d.id, Text: text, Visible: visible})
}

func (d *remoteDisplay) Remove() {
	d.page.sendAsync(RemoveDisplayMessage{Type: TypeRemoveDisplay, ID: d.id})
}
