package captions

import "context"

// Selection is the outcome of [Select].
type Selection struct {
	// Track is the chosen caption track. Valid only when FallbackNeeded is
	// false.
	Track TextTrack

	// FallbackNeeded is true when no suitable track exists and captions must
	// come from the audio.
	FallbackNeeded bool

	// HadTracks reports whether the video carried any text tracks at all.
	HadTracks bool
}

// Select picks the first text track of kind captions or subtitles.
func Select(v Video) Selection {
	tracks := v.TextTracks()
	for _, t := range tracks {
		if t.Kind == "captions" || t.Kind == "subtitles" {
			return Selection{Track: t, HadTracks: true}
		}
	}
	return Selection{FallbackNeeded: true, HadTracks: len(tracks) > 0}
}

// runTrack shows sel's track and mirrors its cues into the display verbatim
// until ctx ends or the video goes away.
func runTrack(ctx context.Context, r *run, sel Selection) {
	if err := r.video.ShowTrack(sel.Track.Index); err != nil {
		r.log.Warn("showing caption track", "index", sel.Track.Index, "err", err)
		r.display.Update(r.msgs.Error(err), true)
		return
	}
	r.log.Debug("using built-in caption track", "index", sel.Track.Index, "label", sel.Track.Label)
	r.display.Update(r.msgs.Get(MsgBuiltInCaptions), true)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			if ev.Kind == EventCueChange {
				r.display.Update(ev.Text, true)
			}
		}
	}
}
