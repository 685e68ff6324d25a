package captions

import (
	"embed"
	"log/slog"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Message IDs of the status texts shown in the caption display.
const (
	MsgListening        = "Listening"
	MsgWaitingForSpeech = "WaitingForSpeech"
	MsgProcessingAudio  = "ProcessingAudio"
	MsgAudioTooLow      = "AudioTooLow"
	MsgNoAudio          = "NoAudio"
	MsgNotSupported     = "NotSupported"
	MsgBuiltInCaptions  = "BuiltInCaptions"
	MsgNoSuitableTracks = "NoSuitableTracks"
	MsgMuted            = "Muted"
	MsgError            = "Error"
	MsgInitialising     = "Initialising"
)

var defaultMessages = []*i18n.Message{
	{ID: MsgListening, Other: "Listening..."},
	{ID: MsgWaitingForSpeech, Other: "Waiting for speech..."},
	{ID: MsgProcessingAudio, Other: "Processing audio..."},
	{ID: MsgAudioTooLow, Other: "Audio level too low"},
	{ID: MsgNoAudio, Other: "No audio detected"},
	{ID: MsgNotSupported, Other: "Speech recognition is not supported."},
	{ID: MsgBuiltInCaptions, Other: "Using built-in video captions"},
	{ID: MsgNoSuitableTracks, Other: "No suitable caption tracks found in video."},
	{ID: MsgMuted, Other: "Video is muted. Speech recognition continues for ambient audio."},
	{ID: MsgError, Other: "Error: {{.Err}}"},
	{ID: MsgInitialising, Other: "Initializing video subtitles..."},
}

//go:embed locales/*.toml
var localeFS embed.FS

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
)

func loadBundle() *i18n.Bundle {
	bundleOnce.Do(func() {
		bundle = i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
		bundle.MustAddMessages(language.English, defaultMessages...)

		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			slog.Warn("captions: reading embedded locales", "err", err)
			return
		}
		for _, e := range entries {
			if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+e.Name()); err != nil {
				slog.Warn("captions: loading locale", "file", e.Name(), "err", err)
			}
		}
	})
	return bundle
}

// Messages renders the status texts shown in the caption display in one
// language.
type Messages struct {
	loc *i18n.Localizer
}

// NewMessages returns messages for the BCP-47 tags in langs, falling back to
// English.
func NewMessages(langs ...string) *Messages {
	return &Messages{loc: i18n.NewLocalizer(loadBundle(), langs...)}
}

// Get returns the text for id.
func (m *Messages) Get(id string) string {
	return m.localize(id, nil)
}

// Error renders the inline error message for err.
func (m *Messages) Error(err error) string {
	return m.localize(MsgError, map[string]any{"Err": err.Error()})
}

func (m *Messages) localize(id string, data map[string]any) string {
	var def *i18n.Message
	for _, d := range defaultMessages {
		if d.ID == id {
			def = d
			break
		}
	}
	s, err := m.loc.Localize(&i18n.LocalizeConfig{
		MessageID:      id,
		TemplateData:   data,
		DefaultMessage: def,
	})
	if err != nil && s == "" {
		slog.Debug("captions: missing message", "id", id, "err", err)
		return id
	}
	return s
}
