// Package fake provides in-memory implementations of the captions page
// interfaces for tests.
//
// Every fake can share a [Log] that records lifecycle operations in order,
// which lets tests assert the cleanup sequence.
package fake

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/eclectech/internal/captions"
)

// Operations recorded in a [Log].
const (
	OpStartRecording = "start-recording"
	OpStopRecording  = "stop-recording"
	OpDetach         = "detach"
	OpRelease        = "release"
	OpRemoveDisplay  = "remove-display"
)

// Log is an ordered, concurrency-safe record of operations.
type Log struct {
	mu  sync.Mutex
	ops []string
}

// Add appends op. A nil Log ignores the call.
func (l *Log) Add(op string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

// Ops returns a copy of the recorded operations.
func (l *Log) Ops() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.ops)
}

// Count returns how often op was recorded.
func (l *Log) Count(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, o := range l.ops {
		if o == op {
			n++
		}
	}
	return n
}

// Video is a fake captions.Video.
type Video struct {
	// Log receives detach operations. May be nil.
	Log *Log

	// IDValue is returned by ID.
	IDValue string

	// Tracks is returned by TextTracks.
	Tracks []captions.TextTrack

	// Tap is returned by OpenTap unless TapErr is set. A nil Tap with a nil
	// TapErr returns captions.ErrNoAudioCapture.
	Tap    *Tap
	TapErr error

	// ShowTrackErr is returned by ShowTrack.
	ShowTrackErr error

	mu       sync.Mutex
	state    captions.VideoState
	events   chan captions.VideoEvent
	detached bool
	shown    []int
}

var _ captions.Video = (*Video)(nil)

// ID implements captions.Video.
func (v *Video) ID() string {
	if v.IDValue == "" {
		return "video-0"
	}
	return v.IDValue
}

// TextTracks implements captions.Video.
func (v *Video) TextTracks() []captions.TextTrack { return v.Tracks }

// ShowTrack implements captions.Video.
func (v *Video) ShowTrack(index int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ShowTrackErr != nil {
		return v.ShowTrackErr
	}
	v.shown = append(v.shown, index)
	return nil
}

// Shown returns the indices passed to ShowTrack.
func (v *Video) Shown() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.shown)
}

// Subscribe implements captions.Video. Only one subscription is live at a
// time; a new one replaces the previous.
func (v *Video) Subscribe() (<-chan captions.VideoEvent, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ch := make(chan captions.VideoEvent, 64)
	v.events = ch
	v.detached = false
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			if v.events == ch {
				v.events = nil
				v.detached = true
			}
			v.mu.Unlock()
			v.Log.Add(OpDetach)
		})
	}
}

// Subscribed reports whether listeners are attached.
func (v *Video) Subscribed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.events != nil
}

// Detached reports whether the last subscription was detached.
func (v *Video) Detached() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.detached
}

// State implements captions.Video.
func (v *Video) State() captions.VideoState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SetState replaces the playback state without emitting an event.
func (v *Video) SetState(s captions.VideoState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = s
}

// OpenTap implements captions.Video.
func (v *Video) OpenTap(context.Context) (captions.AudioTap, error) {
	if v.TapErr != nil {
		return nil, v.TapErr
	}
	if v.Tap == nil {
		return nil, captions.ErrNoAudioCapture
	}
	return v.Tap, nil
}

// Play marks the video playing and emits EventPlay.
func (v *Video) Play() { v.transition(captions.EventPlay, true, false) }

// Pause marks the video paused and emits EventPause.
func (v *Video) Pause() { v.transition(captions.EventPause, false, false) }

// End marks the video ended and emits EventEnded.
func (v *Video) End() { v.transition(captions.EventEnded, false, true) }

// SetMuted updates the muted state and emits EventVolumeChange.
func (v *Video) SetMuted(muted bool) {
	v.mu.Lock()
	v.state.Muted = muted
	ev := captions.VideoEvent{Kind: captions.EventVolumeChange, Time: v.state.Time, Muted: muted}
	v.mu.Unlock()
	v.Emit(ev)
}

// Cue emits EventCueChange with text.
func (v *Video) Cue(text string) {
	v.Emit(captions.VideoEvent{Kind: captions.EventCueChange, Time: v.State().Time, Text: text})
}

// Seek sets the playback position.
func (v *Video) Seek(t time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Time = t
}

func (v *Video) transition(kind captions.EventKind, playing, ended bool) {
	v.mu.Lock()
	v.state.Playing = playing
	v.state.Ended = ended
	ev := captions.VideoEvent{Kind: kind, Time: v.state.Time, Muted: v.state.Muted}
	v.mu.Unlock()
	v.Emit(ev)
}

// Emit delivers ev to the live subscription, if any.
func (v *Video) Emit(ev captions.VideoEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.events != nil {
		v.events <- ev
	}
}

// Tap is a fake captions.AudioTap. Chunks are pushed with Send while a
// recording is active.
type Tap struct {
	// Log receives recording and release operations. May be nil.
	Log *Log

	// Formats is returned by RecorderFormats.
	Formats []string

	mu       sync.Mutex
	startErr error
	attempts int
	chunks   chan []byte
	starts   []string
	windows  []time.Duration
	released bool
}

var _ captions.AudioTap = (*Tap)(nil)

// FailStart makes subsequent StartRecording calls return err. Pass nil to
// let them succeed again.
func (t *Tap) FailStart(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startErr = err
}

// RecorderFormats implements captions.AudioTap.
func (t *Tap) RecorderFormats() []string { return t.Formats }

// StartRecording implements captions.AudioTap.
func (t *Tap) StartRecording(_ context.Context, mime string, window time.Duration) (<-chan []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	if t.startErr != nil {
		return nil, t.startErr
	}
	if t.chunks != nil {
		close(t.chunks)
	}
	t.chunks = make(chan []byte, 256)
	t.starts = append(t.starts, mime)
	t.windows = append(t.windows, window)
	t.Log.Add(OpStartRecording)
	return t.chunks, nil
}

// StopRecording implements captions.AudioTap.
func (t *Tap) StopRecording() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.chunks == nil {
		return nil
	}
	close(t.chunks)
	t.chunks = nil
	t.Log.Add(OpStopRecording)
	return nil
}

// Release implements captions.AudioTap.
func (t *Tap) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
	t.Log.Add(OpRelease)
	return nil
}

// Send delivers chunk to the active recording. It reports false when no
// recording is active.
func (t *Tap) Send(chunk []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.chunks == nil {
		return false
	}
	t.chunks <- chunk
	return true
}

// Recording reports whether a recording is active.
func (t *Tap) Recording() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chunks != nil
}

// Attempts returns how many times StartRecording was called, including
// failed calls.
func (t *Tap) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// Starts returns the MIME type of every StartRecording call.
func (t *Tap) Starts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.starts)
}

// Windows returns the window of every StartRecording call.
func (t *Tap) Windows() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.windows)
}

// Released reports whether Release was called.
func (t *Tap) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// Display is a fake captions.Display.
type Display struct {
	// Log receives the remove operation. May be nil.
	Log *Log

	mu      sync.Mutex
	text    string
	visible bool
	texts   []string
	removed bool
}

var _ captions.Display = (*Display)(nil)

// Update implements captions.Display.
func (d *Display) Update(text string, visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text, d.visible = text, visible
	d.texts = append(d.texts, text)
}

// Remove implements captions.Display.
func (d *Display) Remove() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.removed {
		d.removed = true
		d.Log.Add(OpRemoveDisplay)
	}
}

// Text returns the current text.
func (d *Display) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Visible reports whether the display is visible.
func (d *Display) Visible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible
}

// Texts returns every text shown, in order.
func (d *Display) Texts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.texts)
}

// Removed reports whether Remove was called.
func (d *Display) Removed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed
}

// Host is a fake captions.Host.
type Host struct {
	// Log is handed to displays created by NewDisplay. May be nil.
	Log *Log

	mu       sync.Mutex
	video    *Video
	displays []*Display
}

var _ captions.Host = (*Host)(nil)

// NewHost returns a host showing v, which may be nil for a page without
// video.
func NewHost(v *Video, log *Log) *Host {
	return &Host{video: v, Log: log}
}

// SetVideo replaces the page's video, as a document swap would.
func (h *Host) SetVideo(v *Video) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.video = v
}

// Video implements captions.Host.
func (h *Host) Video() (captions.Video, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.video == nil {
		return nil, false
	}
	return h.video, true
}

// NewDisplay implements captions.Host.
func (h *Host) NewDisplay() captions.Display {
	h.mu.Lock()
	defer h.mu.Unlock()
	d := &Display{Log: h.Log}
	h.displays = append(h.displays, d)
	return d
}

// Display returns the most recently created display, or nil.
func (h *Host) Display() *Display {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.displays) == 0 {
		return nil
	}
	return h.displays[len(h.displays)-1]
}

// Displays returns every display created so far.
func (h *Host) Displays() []*Display {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.displays)
}
