package pagehost

import (
	"time"

	"github.com/MrWong99/eclectech/internal/captions"
)

// Message types sent by the page.
const (
	TypeHello      = "hello"
	TypeAttributes = "attributes"
	TypeVideo      = "video"
	TypeCue        = "cue"
	TypeRecorder   = "recorder"
	TypeReplaced   = "replaced"
	TypeRemoved    = "removed"
)

// Message types sent to the page.
const (
	TypeReplace       = "replace"
	TypeChrome        = "chrome"
	TypeDisplay       = "display"
	TypeTrack         = "track"
	TypeRemoveDisplay = "remove-display"
)

// Recorder events reported by the page.
const (
	RecorderStarted = "started"
	RecorderStopped = "stopped"
	RecorderError   = "error"
)

// Recorder actions requested from the page.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRelease = "release"
)

// Chrome states.
const (
	ChromeLoading = "loading"
	ChromeReady   = "ready"
)

// Inbound is any text message sent by the page. Only the fields of its
// Type are set.
type Inbound struct {
	Type string `json:"type"`

	// hello
	URL    string `json:"url,omitempty"`
	Markup string `json:"markup,omitempty"`

	// hello, attributes
	Attributes map[string]string `json:"attributes,omitempty"`

	// hello, replaced
	Video *VideoInfo `json:"video,omitempty"`

	// video, recorder
	Event string `json:"event,omitempty"`

	// video: playback position in seconds.
	Time  float64 `json:"time,omitempty"`
	Muted bool    `json:"muted,omitempty"`

	// cue
	Text string `json:"text,omitempty"`

	// recorder
	Error string `json:"error,omitempty"`
}

// VideoInfo describes the first video element of the document.
type VideoInfo struct {
	ID     string      `json:"id"`
	Tracks []TrackInfo `json:"tracks,omitempty"`

	// Capture reports whether the page can tap the video's audio.
	Capture bool `json:"capture"`

	// Formats lists the recorder MIME types the page supports.
	Formats []string `json:"formats,omitempty"`

	Playing bool    `json:"playing"`
	Ended   bool    `json:"ended"`
	Muted   bool    `json:"muted"`
	Time    float64 `json:"time"`
}

// TrackInfo describes one text track.
type TrackInfo struct {
	Index    int    `json:"index"`
	Kind     string `json:"kind"`
	Label    string `json:"label,omitempty"`
	Language string `json:"language,omitempty"`
}

func (v VideoInfo) textTracks() []captions.TextTrack {
	out := make([]captions.TextTrack, len(v.Tracks))
	for i, t := range v.Tracks {
		out[i] = captions.TextTrack{Index: t.Index, Kind: t.Kind, Label: t.Label, Language: t.Language}
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ReplaceMessage asks the page to swap its document. The page answers with
// a replaced message.
type ReplaceMessage struct {
	Type   string `json:"type"`
	Markup string `json:"markup"`
}

// ChromeMessage switches the overlay between loading and ready.
type ChromeMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

// DisplayMessage updates a caption region.
type DisplayMessage struct {
	Type    string `json:"type"`
	ID      int    `json:"id"`
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

// RemoveDisplayMessage removes a caption region.
type RemoveDisplayMessage struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
}

// TrackMessage sets the mode of a text track.
type TrackMessage struct {
	Type  string `json:"type"`
	Video string `json:"video"`
	Index int    `json:"index"`
	Mode  string `json:"mode"`
}

// RecorderMessage controls the audio recorder.
type RecorderMessage struct {
	Type     string `json:"type"`
	Action   string `json:"action"`
	Video    string `json:"video,omitempty"`
	MIME     string `json:"mime,omitempty"`
	WindowMS int64  `json:"window_ms,omitempty"`
}

// AttributesMessage replaces the feature attributes of the overlay element.
type AttributesMessage struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
