// Package app wires all eclectech subsystems into a running service.
//
// The App struct owns the full lifecycle: New opens the cache store and
// builds the rewrite pipeline, caption bridge, event publisher and HTTP
// server; Run serves until the context ends; Shutdown releases everything
// in reverse order.
//
// For testing, inject doubles via functional options (WithStore,
// WithPublisher). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/eclectech/internal/captions"
	"github.com/MrWong99/eclectech/internal/config"
	"github.com/MrWong99/eclectech/internal/controller"
	"github.com/MrWong99/eclectech/internal/events"
	"github.com/MrWong99/eclectech/internal/feature"
	"github.com/MrWong99/eclectech/internal/health"
	"github.com/MrWong99/eclectech/internal/observe"
	"github.com/MrWong99/eclectech/internal/rewrite"
	"github.com/MrWong99/eclectech/internal/server"
	"github.com/MrWong99/eclectech/internal/session"
	"github.com/MrWong99/eclectech/pkg/store"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	kv      store.KV
	cache   *rewrite.Cache
	service *rewrite.LLMService
	coord   *rewrite.Coordinator
	bridge  *captions.Bridge
	pub     events.Publisher
	health  *health.Handler
	srv     *server.Server
	metrics *observe.Metrics
	level   *slog.LevelVar

	// captionCfg applies to caption runs started after a reload.
	captionCfg atomic.Pointer[captions.Config]

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStore injects a cache store instead of opening cfg.Cache. The caller
// keeps ownership; Shutdown does not close it.
func WithStore(kv store.KV) Option {
	return func(a *App) { a.kv = kv }
}

// WithPublisher injects an event publisher instead of dialing
// cfg.Events.AMQPURL.
func WithPublisher(p events.Publisher) Option {
	return func(a *App) { a.pub = p }
}

// WithLevelVar lets config reloads change the log level of the logger built
// around lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App from cfg and the providers built by [BuildProviders].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.closers = append(a.closers, providers.Close)

	if a.kv == nil {
		kv, err := OpenStore(ctx, cfg.Cache)
		if err != nil {
			_ = a.Shutdown(ctx)
			return nil, fmt.Errorf("app: open cache store: %w", err)
		}
		a.kv = kv
		a.closers = append(a.closers, kv.Close)
	}
	a.cache = rewrite.NewCache(a.kv,
		rewrite.WithMinLength(cfg.Rewrite.MinCacheLength),
		rewrite.WithCacheMetrics(a.metrics),
	)

	if a.pub == nil {
		pub, err := openPublisher(cfg.Events)
		if err != nil {
			_ = a.Shutdown(ctx)
			return nil, fmt.Errorf("app: events: %w", err)
		}
		a.pub = pub
		a.closers = append(a.closers, pub.Close)
	}

	a.initRewrite()
	a.initCaptions()

	a.health = health.New(
		health.Ping("cache", a.kv),
		health.Configured("providers", map[string]bool{"llm": providers.LLM != nil}),
	)

	srvOpts := []server.Option{
		server.WithPublisher(a.pub),
		server.WithHealth(a.health),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		server.WithMetrics(a.metrics),
	}
	if a.bridge.CanSegment() || a.bridge.CanStream() {
		srvOpts = append(srvOpts, server.WithCaptions(a.newCaptions))
	}
	a.srv = server.New(a.coord, a.cache, srvOpts...)

	return a, nil
}

func (a *App) initRewrite() {
	var svc rewrite.Service = unconfiguredService{}
	if a.providers.LLM != nil {
		a.service = rewrite.NewLLMService(a.providers.LLM,
			rewrite.WithSystemPrompt(a.cfg.Rewrite.SystemPrompt),
			rewrite.WithProviderName(a.providers.LLMName),
			rewrite.WithServiceMetrics(a.metrics),
		)
		svc = a.service
	}
	a.coord = rewrite.NewCoordinator(svc,
		rewrite.WithInstructions(instructions(a.cfg.Rewrite)),
		rewrite.WithOrder(order(a.cfg.Rewrite)),
		rewrite.WithCoordinatorMetrics(a.metrics),
		rewrite.WithRunTimeout(a.cfg.Rewrite.RunTimeout),
	)
}

func (a *App) initCaptions() {
	c := a.cfg.Captions
	a.bridge = captions.NewBridge(a.providers.Transcriber, a.providers.STT,
		captions.WithLanguage(c.Language),
		captions.WithRestartDelay(c.RestartDelay),
		captions.WithProviderNames(a.providers.TranscriberName, a.providers.STTName),
		captions.WithBridgeMetrics(a.metrics),
	)
	cc := captionConfig(c)
	a.captionCfg.Store(&cc)
}

func (a *App) newCaptions(sess *session.Context) controller.Captions {
	factory := server.NewCaptionFactory(a.bridge, *a.captionCfg.Load(), a.pub,
		captions.WithManagerMetrics(a.metrics),
	)
	return factory(sess)
}

// Cache returns the rewrite cache.
func (a *App) Cache() *rewrite.Cache { return a.cache }

// Rewriter returns the rewrite pipeline.
func (a *App) Rewriter() *rewrite.Coordinator { return a.coord }

// Publisher returns the event sink.
func (a *App) Publisher() events.Publisher { return a.pub }

// Handler returns the HTTP handler of the service.
func (a *App) Handler() http.Handler { return a.srv.Handler() }

// Run serves on cfg.Server.ListenAddr until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	var tls server.TLS
	if t := a.cfg.Server.TLS; t != nil {
		tls = server.TLS{CertFile: t.CertFile, KeyFile: t.KeyFile}
	}
	return a.srv.Serve(ctx, a.cfg.Server.ListenAddr, tls)
}

// ApplyConfig applies the live-reloadable parts of next. Rewrite prompt
// changes purge the cache because cached documents were produced with the
// old prompts.
func (a *App) ApplyConfig(ctx context.Context, prev, next *config.Config) {
	d := config.Diff(prev, next)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.InstructionsChanged {
		a.coord.SetInstructions(instructions(next.Rewrite))
		a.coord.SetOrder(order(next.Rewrite))
		if a.service != nil {
			a.service.SetSystemPrompt(next.Rewrite.SystemPrompt)
		}
		n, err := a.cache.Purge(ctx)
		if err != nil {
			slog.Warn("cache purge after prompt change incomplete", "purged", n, "err", err)
		} else {
			slog.Info("rewrite prompts reloaded", "purged", n)
		}
	}
	if d.CaptionsChanged {
		cc := captionConfig(next.Captions)
		a.captionCfg.Store(&cc)
		slog.Info("caption settings reloaded")
	}
	if sections := d.RestartRequired(); len(sections) > 0 {
		slog.Warn("config changes take effect after restart", "sections", sections)
	}
	a.cfg = next
}

// Shutdown runs the closers in reverse order. If ctx expires first, the
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = err
				return
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func instructions(c config.RewriteConfig) rewrite.Instructions {
	in, unknown := rewrite.DefaultInstructions().WithOverrides(c.Instructions)
	if len(unknown) > 0 {
		slog.Warn("ignoring instructions for unknown features", "keys", unknown)
	}
	return in
}

func order(c config.RewriteConfig) []feature.Feature {
	var out []feature.Feature
	for _, name := range c.Order {
		if f, ok := feature.Parse(name); ok && f.Rewrites() {
			out = append(out, f)
		}
	}
	return out
}

func captionConfig(c config.CaptionsConfig) captions.Config {
	return captions.Config{
		Window:          c.Window,
		MinSegmentBytes: c.MinSegmentBytes,
		HistorySize:     c.HistorySize,
		Mode:            captions.Mode(c.Mode),
		Language:        c.Language,
	}
}

// unconfiguredService fails every rewrite when no LLM provider is set.
type unconfiguredService struct{}

func (unconfiguredService) Rewrite(context.Context, string, string) (string, error) {
	return "", ErrNoLLM
}
