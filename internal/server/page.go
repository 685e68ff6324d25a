package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/eclectech/internal/controller"
	"github.com/MrWong99/eclectech/internal/observe"
	"github.com/MrWong99/eclectech/internal/pagehost"
	"github.com/MrWong99/eclectech/internal/session"
)

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	opts := append([]pagehost.Option{pagehost.WithLogger(log), pagehost.WithMetrics(s.metrics)}, s.pageOpts...)
	page, err := pagehost.Accept(w, r, s.origins, opts...)
	if err != nil {
		log.Warn("page upgrade failed", "err", err)
		return
	}

	s.pages.Add(1)
	defer s.pages.Done()

	g, ctx := errgroup.WithContext(s.base)
	g.Go(func() error { return page.Run(ctx) })
	g.Go(func() error {
		defer page.Close("session ended")
		return s.runSession(ctx, page, log)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("page session ended with error", "err", err)
	}
}

// runSession drives one controller for the lifetime of the page. Attribute
// changes are handled one cycle at a time; bursts that arrive while a cycle
// runs collapse into a single follow-up cycle.
func (s *Server) runSession(ctx context.Context, page *pagehost.Page, log *slog.Logger) error {
	hctx, cancel := context.WithTimeout(ctx, s.helloTimeout)
	err := page.WaitHello(hctx)
	cancel()
	switch {
	case errors.Is(err, pagehost.ErrClosed):
		return nil
	case err != nil:
		return fmt.Errorf("server: waiting for hello: %w", err)
	}

	sess := session.New()
	ctx = observe.WithSession(ctx, sess.ID())
	log = log.With("session", sess.ID(), "url", page.URL())
	opts := []controller.Option{
		controller.WithChrome(page),
		controller.WithPublisher(s.pub),
		controller.WithLogger(log),
	}
	if s.captions != nil {
		opts = append(opts, controller.WithCaptions(s.captions(sess)))
	}
	ctrl := controller.New(page, sess, s.rewriter, s.cache, opts...)
	defer ctrl.Close()
	log.Info("page session started")

	for {
		select {
		case <-page.Done():
			log.Info("page session closed")
			return nil
		case <-ctx.Done():
			return nil
		case <-page.Changes():
			res := ctrl.Process(ctx)
			log.Debug("accessibility cycle finished",
				"state", res.State.String(),
				"fingerprint", res.Fingerprint,
				"cached", res.Cached,
			)
		}
	}
}
