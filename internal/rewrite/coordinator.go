package rewrite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/eclectech/internal/feature"
	"github.com/MrWong99/eclectech/internal/observe"
)

// DefaultRunTimeout bounds a shared pipeline run once it no longer follows
// the ctx of the caller that started it.
const DefaultRunTimeout = 5 * time.Minute

// ErrNoInstruction is returned when a requested rewrite feature has no
// configured prompt.
var ErrNoInstruction = errors.New("rewrite: no instruction for feature")

// CoordinatorOption configures a [Coordinator].
type CoordinatorOption func(*Coordinator)

// WithInstructions replaces [DefaultInstructions].
func WithInstructions(in Instructions) CoordinatorOption {
	return func(c *Coordinator) { c.instructions = in }
}

// WithOrder replaces [feature.DefaultOrder].
func WithOrder(order []feature.Feature) CoordinatorOption {
	return func(c *Coordinator) {
		if len(order) > 0 {
			c.order = order
		}
	}
}

// WithCoordinatorMetrics records durations on m instead of
// [observe.DefaultMetrics].
func WithCoordinatorMetrics(m *observe.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithRunTimeout bounds every pipeline run. Non-positive values keep
// [DefaultRunTimeout].
func WithRunTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.runTimeout = d
		}
	}
}

// Coordinator runs the per-feature rewrite pipeline. Concurrent calls for
// the same base markup and fingerprint share a single run.
type Coordinator struct {
	svc     Service
	metrics *observe.Metrics
	group   singleflight.Group

	runTimeout time.Duration
	flightMu   sync.Mutex
	flights    map[string]*flight

	mu           sync.RWMutex
	instructions Instructions
	order        []feature.Feature
}

// NewCoordinator returns a coordinator calling svc.
func NewCoordinator(svc Service, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		svc:          svc,
		instructions: DefaultInstructions(),
		order:        feature.DefaultOrder,
		runTimeout:   DefaultRunTimeout,
		flights:      make(map[string]*flight),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// SetInstructions swaps the prompt table. Runs already in flight keep the
// table they started with.
func (c *Coordinator) SetInstructions(in Instructions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instructions = in
}

// SetOrder swaps the step order. An empty order restores
// [feature.DefaultOrder].
func (c *Coordinator) SetOrder(order []feature.Feature) {
	if len(order) == 0 {
		order = feature.DefaultOrder
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = order
}

// Instructions returns the current prompt table.
func (c *Coordinator) Instructions() Instructions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instructions
}

// Steps returns the rewrite features of set in the order they are applied.
func (c *Coordinator) Steps(set feature.Set) []feature.Feature {
	c.mu.RLock()
	order := c.order
	c.mu.RUnlock()
	return set.RewriteSet().Ordered(order)
}

// Rewrite applies every rewrite feature of set to base, one service call per
// feature, each call receiving the previous output. The first failure aborts
// the chain and no partial result is returned. A set without rewrite
// features returns base unchanged.
//
// Callers sharing a run stop waiting when their ctx ends. The run keeps
// going while at least one caller still waits and is cancelled once the
// last one has left.
func (c *Coordinator) Rewrite(ctx context.Context, base string, set feature.Set) (string, error) {
	rs := set.RewriteSet()
	if rs.IsEmpty() {
		return base, nil
	}

	key := flightKey(base, rs.Fingerprint())
	out, err := c.await(ctx, key, base, rs)
	// Joined a run that was cancelled after every earlier caller left.
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		out, err = c.await(ctx, key, base, rs)
	}
	return out, err
}

// flight is the detached context of one shared run and the number of
// callers waiting on it.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (c *Coordinator) await(ctx context.Context, key, base string, rs feature.Set) (string, error) {
	f := c.join(ctx, key)
	defer c.leave(key, f)

	ch := c.group.DoChan(key, func() (any, error) {
		return c.run(f.ctx, base, rs)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			slog.Debug("rewrite result shared with concurrent caller", "fingerprint", rs.Fingerprint())
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) join(ctx context.Context, key string) *flight {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.runTimeout)
		f = &flight{ctx: runCtx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *Coordinator) leave(key string, f *flight) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

func (c *Coordinator) run(ctx context.Context, base string, rs feature.Set) (string, error) {
	fp := rs.Fingerprint()
	ctx, span := observe.StartSpan(ctx, "rewrite.pipeline")
	defer span.End()
	span.SetAttributes(attribute.String("rewrite.fingerprint", fp))

	instructions := c.Instructions()
	steps := c.Steps(rs)

	// Resolve every prompt before the first call so a misconfiguration
	// never costs a partial run.
	prompts := make([]string, len(steps))
	for i, f := range steps {
		p, ok := instructions.For(f)
		if !ok {
			err := fmt.Errorf("%w: %s", ErrNoInstruction, f)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		prompts[i] = p
	}

	start := time.Now()
	current := base
	for i, f := range steps {
		stepStart := time.Now()
		out, err := c.svc.Rewrite(ctx, current, prompts[i])
		c.metrics.RewriteStepDuration.Record(ctx, time.Since(stepStart).Seconds(),
			metric.WithAttributes(attribute.String("feature", string(f))))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("rewrite step failed", "feature", f, "step", i+1, "steps", len(steps), "err", err)
			return "", fmt.Errorf("rewrite: %s: %w", f, err)
		}
		slog.Debug("rewrite step done", "feature", f, "bytes", len(out))
		current = out
	}

	c.metrics.RewriteDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("fingerprint", fp)))
	return current, nil
}

func flightKey(base, fp string) string {
	sum := sha256.Sum256([]byte(base))
	return fp + "@" + hex.EncodeToString(sum[:])
}
