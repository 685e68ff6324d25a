package captions_test

import (
	"testing"

	"github.com/MrWong99/eclectech/internal/captions"
	"github.com/MrWong99/eclectech/internal/captions/fake"
)

func TestSelect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		tracks    []captions.TextTrack
		fallback  bool
		hadTracks bool
		index     int
	}{
		{name: "no tracks", fallback: true},
		{
			name:      "metadata only",
			tracks:    []captions.TextTrack{{Index: 0, Kind: "metadata"}, {Index: 1, Kind: "chapters"}},
			fallback:  true,
			hadTracks: true,
		},
		{
			name:      "first suitable wins",
			tracks:    []captions.TextTrack{{Index: 0, Kind: "chapters"}, {Index: 1, Kind: "subtitles"}, {Index: 2, Kind: "captions"}},
			hadTracks: true,
			index:     1,
		},
		{
			name:      "captions",
			tracks:    []captions.TextTrack{{Index: 0, Kind: "captions"}},
			hadTracks: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sel := captions.Select(&fake.Video{Tracks: tt.tracks})
			if sel.FallbackNeeded != tt.fallback {
				t.Errorf("FallbackNeeded = %v, want %v", sel.FallbackNeeded, tt.fallback)
			}
			if sel.HadTracks != tt.hadTracks {
				t.Errorf("HadTracks = %v, want %v", sel.HadTracks, tt.hadTracks)
			}
			if !tt.fallback && sel.Track.Index != tt.index {
				t.Errorf("Track.Index = %d, want %d", sel.Track.Index, tt.index)
			}
		})
	}
}

func TestParseEventKind(t *testing.T) {
	t.Parallel()
	for _, k := range []captions.EventKind{
		captions.EventPlay, captions.EventPause, captions.EventEnded,
		captions.EventVolumeChange, captions.EventCueChange,
	} {
		if got := captions.ParseEventKind(k.String()); got != k {
			t.Errorf("ParseEventKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if got := captions.ParseEventKind("seeking"); got != 0 {
		t.Errorf("ParseEventKind(seeking) = %v, want 0", got)
	}
}
