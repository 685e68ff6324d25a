package captions

import (
	"fmt"
	"time"
)

// FormatTimestamp renders a playback position as MM:SS. Minutes are not
// wrapped into hours.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Line formats a caption line for text spoken at position at.
func Line(at time.Duration, text string) string {
	return "[" + FormatTimestamp(at) + "] " + text
}
