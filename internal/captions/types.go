// Package captions overlays live captions on a page's video.
//
// A caption run prefers a caption or subtitle track built into the video.
// Without one it taps the video's audio and either cycles bounded recording
// windows through a segment [stt.Transcriber] or streams the audio to an
// [stt.Provider]. The [Manager] owns the run and guarantees that everything
// it acquired is released, in a fixed order, when the run ends.
package captions

import (
	"context"
	"errors"
	"time"
)

// ErrNoAudioCapture is returned by [Video.OpenTap] when the page cannot tap
// the video's audio.
var ErrNoAudioCapture = errors.New("captions: audio capture not supported")

// ErrFatalRecognition is reported when streaming recognition stopped for good
// and will not be restarted for the current run.
var ErrFatalRecognition = errors.New("captions: fatal recognition error")

// EventKind identifies a video event.
type EventKind int

const (
	// EventPlay fires when playback starts or resumes.
	EventPlay EventKind = iota + 1
	// EventPause fires when playback pauses.
	EventPause
	// EventEnded fires when playback reaches the end.
	EventEnded
	// EventVolumeChange fires when the volume or muted state changes.
	EventVolumeChange
	// EventCueChange fires when the active cues of the shown track change.
	EventCueChange
)

func (k EventKind) String() string {
	switch k {
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventEnded:
		return "ended"
	case EventVolumeChange:
		return "volumechange"
	case EventCueChange:
		return "cuechange"
	default:
		return "unknown"
	}
}

// ParseEventKind maps a DOM event name to an [EventKind]. It returns 0 for
// unknown names.
func ParseEventKind(s string) EventKind {
	for k := EventPlay; k <= EventCueChange; k++ {
		if k.String() == s {
			return k
		}
	}
	return 0
}

// VideoEvent is one event observed on the video element.
type VideoEvent struct {
	Kind EventKind

	// Time is the playback position when the event fired.
	Time time.Duration

	// Muted is the muted state after the event.
	Muted bool

	// Text is the joined text of the active cues for EventCueChange.
	Text string
}

// VideoState is a snapshot of the video element.
type VideoState struct {
	Playing bool
	Ended   bool
	Muted   bool
	Time    time.Duration
}

// TextTrack describes one text track of the video.
type TextTrack struct {
	Index    int
	Kind     string
	Label    string
	Language string
}

// Video is the single video element a caption run is attached to.
type Video interface {
	// ID distinguishes videos across document replacements.
	ID() string

	// TextTracks lists the video's text tracks in document order.
	TextTracks() []TextTrack

	// ShowTrack switches the track at index to showing mode.
	ShowTrack(index int) error

	// Subscribe attaches listeners for play, pause, ended, volumechange and
	// cue changes. detach removes them; it is safe to call more than once.
	Subscribe() (events <-chan VideoEvent, detach func())

	// State returns the current playback state.
	State() VideoState

	// OpenTap taps the video's audio. It returns [ErrNoAudioCapture] when the
	// page cannot do so.
	OpenTap(ctx context.Context) (AudioTap, error)
}

// AudioTap is a tapped audio stream with an attached recorder.
type AudioTap interface {
	// RecorderFormats lists the MIME types the recorder can produce. An
	// empty list means the page has no recorder.
	RecorderFormats() []string

	// StartRecording starts the recorder. Chunks arrive on the returned
	// channel, which is closed once the recorder has stopped and flushed.
	// window is advisory; zero records until stopped.
	StartRecording(ctx context.Context, mime string, window time.Duration) (<-chan []byte, error)

	// StopRecording stops the active recorder. It is a no-op when idle.
	StopRecording() error

	// Release disconnects the tap.
	Release() error
}

// Display is the caption text region. Each update replaces it wholesale.
type Display interface {
	Update(text string, visible bool)
	Remove()
}

// Host is the page a caption run draws on.
type Host interface {
	// Video returns the video captions attach to, the first on the page.
	Video() (Video, bool)

	// NewDisplay creates the caption region. Any previous region is replaced.
	NewDisplay() Display
}
