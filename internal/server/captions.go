package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/eclectech/internal/captions"
	"github.com/MrWong99/eclectech/internal/controller"
	"github.com/MrWong99/eclectech/internal/events"
	"github.com/MrWong99/eclectech/internal/session"
)

// publishTimeout bounds a single caption event publish.
const publishTimeout = 5 * time.Second

// NewCaptionFactory returns a [CaptionFactory] that gives every page session
// its own [captions.Manager] over the shared bridge. Committed caption lines
// are published as [events.CaptionFinal] tagged with the session ID.
func NewCaptionFactory(bridge *captions.Bridge, cfg captions.Config, pub events.Publisher, opts ...captions.ManagerOption) CaptionFactory {
	if pub == nil {
		pub = events.Nop{}
	}
	return func(sess *session.Context) controller.Captions {
		id := sess.ID()
		onFinal := func(f captions.Final) {
			// The manager's callback must not block.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
				defer cancel()
				if err := pub.Publish(ctx, events.TopicCaptionFinal, events.NewCaptionFinal(id, f.VideoID, f.Text, f.At)); err != nil {
					slog.Warn("publishing caption event failed", "session", id, "err", err)
				}
			}()
		}
		all := append([]captions.ManagerOption{captions.WithConfig(cfg), captions.WithOnFinal(onFinal)}, opts...)
		return captions.NewManager(bridge, all...)
	}
}
