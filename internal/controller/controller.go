// Package controller drives the accessibility cycle of one page: it reads the
// active feature set, consults the rewrite cache, runs the rewrite pipeline
// when needed, swaps the document and keeps the caption session in step.
//
// A [Controller] runs at most one cycle at a time. A call to
// [Controller.Process] while a cycle is in flight attaches to that cycle and
// receives its result.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/eclectech/internal/captions"
	"github.com/MrWong99/eclectech/internal/events"
	"github.com/MrWong99/eclectech/internal/feature"
	"github.com/MrWong99/eclectech/internal/observe"
	"github.com/MrWong99/eclectech/internal/session"
)

// State is the lifecycle state of the controller.
type State int

const (
	Idle State = iota
	Processing
	Done
	Failed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Host is the page the controller works on.
type Host interface {
	captions.Host

	// URL returns the page address including its query.
	URL() string

	// Attributes returns the current attributes of the overlay element.
	Attributes() map[string]string

	// SetAttributes replaces every feature attribute of the overlay element.
	SetAttributes(attrs map[string]string)

	// Markup returns the current document markup.
	Markup() string

	// Replace swaps the document for markup.
	Replace(ctx context.Context, markup string) error
}

// Chrome is the overlay UI around the document: the loading indicator and
// the settings button.
type Chrome interface {
	ShowLoading()
	Restore()
}

// Cache stores rewritten documents by feature fingerprint.
type Cache interface {
	Get(ctx context.Context, fp string) (string, bool, error)
	Put(ctx context.Context, fp, markup string) error
	Invalidate(ctx context.Context, fp string) error
}

// Rewriter applies the rewrite features of a set to base markup.
type Rewriter interface {
	Rewrite(ctx context.Context, base string, set feature.Set) (string, error)
}

// Captions attaches live captions to the page's video.
type Captions interface {
	Start(ctx context.Context, host captions.Host)
	Stop()
	Active() bool
}

// Result is the outcome of one cycle.
type Result struct {
	State    State
	Features feature.Set

	// Fingerprint identifies the rewrite features of Features. It is empty
	// when no rewrite feature is active.
	Fingerprint string

	// Cached reports whether the shown markup came from the cache.
	Cached bool

	// Err is set when State is Failed.
	Err error
}

// Option configures a [Controller].
type Option func(*Controller)

// WithChrome sets the overlay UI. Without it chrome calls are dropped.
func WithChrome(ch Chrome) Option {
	return func(c *Controller) { c.chrome = ch }
}

// WithCaptions sets the caption session driver. Without it the
// live-captions feature has no effect.
func WithCaptions(caps Captions) Option {
	return func(c *Controller) { c.caps = caps }
}

// WithPublisher sets where rewrite events go.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) { c.pub = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithOnState registers fn to observe every state transition. fn runs
// synchronously and must not call back into the controller.
func WithOnState(fn func(State)) Option {
	return func(c *Controller) { c.onState = fn }
}

// Controller runs accessibility cycles for one page session.
type Controller struct {
	host     Host
	sess     *session.Context
	rewriter Rewriter
	cache    Cache
	chrome   Chrome
	caps     Captions
	pub      events.Publisher
	log      *slog.Logger
	onState  func(State)

	// snapshot is the markup the page was loaded with. Every rewrite
	// starts from it, never from an already rewritten document.
	snapshot string

	// ctx bounds caption sessions, which outlive a single cycle.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	inflight *cycle
	last     Result
	// shown is the fingerprint of the rewrite in the document, or "" while
	// the original markup is shown. Only the running cycle touches it.
	shown string
}

type cycle struct {
	done chan struct{}
	res  Result
}

// New returns a controller for host. The document snapshot is taken now.
func New(host Host, sess *session.Context, rw Rewriter, cache Cache, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		host:     host,
		sess:     sess,
		rewriter: rw,
		cache:    cache,
		chrome:   nopChrome{},
		pub:      events.Nop{},
		log:      slog.Default(),
		snapshot: host.Markup(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("session", sess.ID())
	return c
}

// Snapshot returns the markup captured when the controller was created.
func (c *Controller) Snapshot() string { return c.snapshot }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Last returns the result of the most recent finished cycle.
func (c *Controller) Last() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Process runs one cycle, or waits for the cycle already in flight. A
// waiting caller whose ctx ends gets a Failed result carrying ctx.Err(); the
// cycle itself keeps running.
func (c *Controller) Process(ctx context.Context) Result {
	c.mu.Lock()
	if cy := c.inflight; cy != nil {
		c.mu.Unlock()
		c.log.Info("attaching to in-flight accessibility cycle")
		select {
		case <-cy.done:
			return cy.res
		case <-ctx.Done():
			return Result{State: Failed, Err: ctx.Err()}
		}
	}
	cy := &cycle{done: make(chan struct{})}
	c.inflight = cy
	c.setStateLocked(Processing)
	c.mu.Unlock()

	res := c.process(ctx)

	c.mu.Lock()
	cy.res = res
	c.last = res
	c.inflight = nil
	c.setStateLocked(res.State)
	close(cy.done)
	c.setStateLocked(Idle)
	c.mu.Unlock()
	return res
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}

// Close stops any caption session. The controller must not be used
// afterwards.
func (c *Controller) Close() {
	c.cancel()
	if c.caps != nil {
		c.caps.Stop()
	}
}

func (c *Controller) process(ctx context.Context) Result {
	ctx, span := observe.StartSpan(ctx, "controller.process")
	defer span.End()

	c.applyOneTimeConfig(ctx)

	set := feature.FromAttributes(c.host.Attributes())
	rs := set.RewriteSet()
	res := Result{Features: set, Fingerprint: rs.Fingerprint()}
	span.SetAttributes(
		attribute.String("features", set.Fingerprint()),
		attribute.String("session", c.sess.ID()),
	)

	// Without rewrite features there is nothing to fetch: no cache read and
	// no service call.
	if rs.IsEmpty() {
		if err := c.showOriginal(ctx); err != nil {
			return c.fail(span, res, err)
		}
		c.syncCaptions(set)
		res.State = Done
		return res
	}

	// The document already carries this rewrite; only captions can differ.
	if c.shown == res.Fingerprint {
		c.syncCaptions(set)
		c.log.Debug("rewrite already shown", "fingerprint", res.Fingerprint)
		res.State = Done
		return res
	}

	if c.sess.RewriteApplied() {
		markup, ok, err := c.cache.Get(ctx, res.Fingerprint)
		if err != nil {
			c.log.Warn("rewrite cache read failed", "fingerprint", res.Fingerprint, "err", err)
		}
		if ok {
			if err := c.swap(ctx, markup, res.Fingerprint, set); err != nil {
				return c.fail(span, res, err)
			}
			c.log.Info("applied cached rewrite", "fingerprint", res.Fingerprint, "bytes", len(markup))
			c.publish(ctx, res.Fingerprint, len(markup), true)
			res.State = Done
			res.Cached = true
			return res
		}
	}

	c.chrome.ShowLoading()
	markup, err := c.rewriter.Rewrite(ctx, c.snapshot, set)
	if err != nil {
		c.chrome.Restore()
		c.syncCaptions(set)
		return c.fail(span, res, err)
	}
	if err := c.swap(ctx, markup, res.Fingerprint, set); err != nil {
		c.chrome.Restore()
		return c.fail(span, res, err)
	}
	if err := c.cache.Put(ctx, res.Fingerprint, markup); err != nil {
		c.log.Warn("rewrite not cached", "fingerprint", res.Fingerprint, "err", err)
	}
	c.sess.MarkRewriteApplied()
	c.log.Info("applied fresh rewrite", "fingerprint", res.Fingerprint, "bytes", len(markup))
	c.publish(ctx, res.Fingerprint, len(markup), false)
	res.State = Done
	return res
}

func (c *Controller) fail(span trace.Span, res Result, err error) Result {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.log.Error("accessibility cycle failed", "features", res.Features.String(), "err", err)
	res.State = Failed
	res.Err = err
	return res
}

// applyOneTimeConfig replaces the feature attributes with the URL payload
// the first time a session sees one.
func (c *Controller) applyOneTimeConfig(ctx context.Context) {
	if c.sess.ConfigConsumed() {
		return
	}
	p, err := feature.ParseConfigURL(c.host.URL())
	if errors.Is(err, feature.ErrNoPayload) {
		return
	}
	if !c.sess.ConsumeOneTimeConfig() {
		return
	}
	if err != nil {
		c.log.Warn("ignoring malformed config payload", "err", err)
		return
	}

	prev := feature.FromAttributes(c.host.Attributes()).RewriteSet().Fingerprint()
	if prev != "" {
		if err := c.cache.Invalidate(ctx, prev); err != nil {
			c.log.Warn("invalidating previous rewrite failed", "fingerprint", prev, "err", err)
		}
	}
	c.host.SetAttributes(feature.ToAttributes(p.Features))
	c.log.Info("applied one-time config", "features", p.Features.String(), "previous", prev)
}

// showOriginal puts the snapshot back if a rewrite is currently shown.
func (c *Controller) showOriginal(ctx context.Context) error {
	if c.shown == "" {
		return nil
	}
	if err := c.host.Replace(ctx, c.snapshot); err != nil {
		return fmt.Errorf("controller: restore document: %w", err)
	}
	c.shown = ""
	c.chrome.Restore()
	if c.caps != nil {
		c.caps.Stop()
	}
	return nil
}

// swap replaces the document and re-establishes everything that lived in
// the old one.
func (c *Controller) swap(ctx context.Context, markup, fp string, set feature.Set) error {
	if err := c.host.Replace(ctx, markup); err != nil {
		return fmt.Errorf("controller: replace document: %w", err)
	}
	c.shown = fp
	c.chrome.Restore()
	if c.caps != nil {
		// The new document may hold a different video.
		c.caps.Stop()
		if set.Has(feature.LiveCaptions) {
			c.caps.Start(c.ctx, c.host)
		}
	}
	return nil
}

// syncCaptions starts or stops captions to match set without a swap.
func (c *Controller) syncCaptions(set feature.Set) {
	if c.caps == nil {
		return
	}
	switch {
	case set.Has(feature.LiveCaptions) && !c.caps.Active():
		c.caps.Start(c.ctx, c.host)
	case !set.Has(feature.LiveCaptions) && c.caps.Active():
		c.caps.Stop()
	}
}

func (c *Controller) publish(ctx context.Context, fp string, size int, cached bool) {
	ev := events.RewriteCompleted{
		Session:     c.sess.ID(),
		Fingerprint: fp,
		Bytes:       size,
		Cached:      cached,
	}
	if err := c.pub.Publish(ctx, events.TopicRewriteCompleted, ev); err != nil {
		c.log.Warn("publishing rewrite event failed", "err", err)
	}
}

type nopChrome struct{}

func (nopChrome) ShowLoading() {}
func (nopChrome) Restore()     {}
