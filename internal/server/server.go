// Package server exposes eclectech over HTTP: the websocket endpoint pages
// connect to, a small REST API for one-shot rewrites, health probes and the
// Prometheus scrape endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/eclectech/internal/controller"
	"github.com/MrWong99/eclectech/internal/events"
	"github.com/MrWong99/eclectech/internal/health"
	"github.com/MrWong99/eclectech/internal/observe"
	"github.com/MrWong99/eclectech/internal/pagehost"
	"github.com/MrWong99/eclectech/internal/session"
)

// DefaultHelloTimeout bounds how long a freshly connected page may take to
// introduce itself.
const DefaultHelloTimeout = 10 * time.Second

// DefaultShutdownTimeout bounds [Server.Serve]'s graceful shutdown.
const DefaultShutdownTimeout = 15 * time.Second

// CaptionFactory builds the caption component of one page session.
type CaptionFactory func(sess *session.Context) controller.Captions

// Option configures a [Server].
type Option func(*Server)

// WithCaptions enables live captions for page sessions.
func WithCaptions(f CaptionFactory) Option {
	return func(s *Server) { s.captions = f }
}

// WithPublisher sets the event sink. Default: [events.Nop].
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) { s.pub = p }
}

// WithHealth mounts h on /healthz and /readyz and flips it to draining on
// shutdown.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithAllowedOrigins lists origin patterns allowed to open page sessions
// besides the server's own host.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHelloTimeout overrides [DefaultHelloTimeout].
func WithHelloTimeout(d time.Duration) Option {
	return func(s *Server) { s.helloTimeout = d }
}

// WithPageOptions passes extra options to every [pagehost.Page].
func WithPageOptions(opts ...pagehost.Option) Option {
	return func(s *Server) { s.pageOpts = append(s.pageOpts, opts...) }
}

// Server serves page sessions and the REST API.
type Server struct {
	rewriter controller.Rewriter
	cache    controller.Cache

	captions     CaptionFactory
	pub          events.Publisher
	health       *health.Handler
	origins      []string
	log          *slog.Logger
	metrics      *observe.Metrics
	helloTimeout time.Duration
	pageOpts     []pagehost.Option

	// base outlives requests; page sessions hijack their connection and
	// are ended by cancelling it.
	base   context.Context
	cancel context.CancelFunc
	pages  sync.WaitGroup
}

// New returns a server rewriting through rw and caching in cache.
func New(rw controller.Rewriter, cache controller.Cache, opts ...Option) *Server {
	s := &Server{
		rewriter:     rw,
		cache:        cache,
		pub:          events.Nop{},
		log:          slog.Default(),
		helloTimeout: DefaultHelloTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	return s
}

// Handler returns the routed handler wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handlePage)
	mux.HandleFunc("POST /api/v1/rewrite", s.handleRewrite)
	mux.HandleFunc("DELETE /api/v1/cache/{fingerprint}", s.handleInvalidate)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}
	return observe.Middleware(s.metrics)(mux)
}

// TLS holds certificate paths. A zero value serves plain HTTP.
type TLS struct {
	CertFile string
	KeyFile  string
}

// Serve listens on addr until ctx is cancelled, then drains: readiness
// turns unhealthy, HTTP requests finish and page sessions are closed.
func (s *Server) Serve(ctx context.Context, addr string, tls TLS) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.serve(ctx, ln, tls)
}

func (s *Server) serve(ctx context.Context, ln net.Listener, tls TLS) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.base },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", ln.Addr().String(), "tls", tls.CertFile != "")
		var err error
		if tls.CertFile != "" {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
		defer cancel()
		return s.Shutdown(sctx, srv)
	})
	return g.Wait()
}

// Shutdown drains srv and every page session. srv may be nil when the
// handler is mounted elsewhere.
func (s *Server) Shutdown(ctx context.Context, srv *http.Server) error {
	if s.health != nil {
		s.health.SetDraining(true)
	}
	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server: http shutdown: %w", err))
		}
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.pages.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("server: page sessions still open: %w", ctx.Err()))
	}
	s.log.Info("server stopped")
	return errors.Join(errs...)
}
