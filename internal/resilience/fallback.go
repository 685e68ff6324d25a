package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or
// had an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is the breaker template applied to every entry of a
// [FallbackGroup]. The entry name replaces CircuitBreaker.Name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary provider and its fallbacks in preference
// order. Register every fallback before the group is shared; after that it
// is safe for concurrent use.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a provider that is tried after all earlier entries.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{name: name, value: fallback, breaker: NewCircuitBreaker(bc)})
}

// Names lists the entries in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Primary returns the first entry.
func (fg *FallbackGroup[T]) Primary() T { return fg.entries[0].value }

// Breaker returns the breaker guarding the named entry, or nil.
func (fg *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for _, e := range fg.entries {
		if e.name == name {
			return e.breaker
		}
	}
	return nil
}

// Execute is [ExecuteWithResult] for calls without a result value.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult calls fn on each entry in order until one succeeds.
// Entries with an open breaker are skipped. Once ctx is done no further
// entry is tried and the context error is returned as is; otherwise total
// failure yields [ErrAllFailed] wrapping the last provider error.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		e := &fg.entries[i]
		var res R
		err := e.breaker.Execute(func() error {
			var err error
			res, err = fn(e.value)
			return err
		})
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider skipped, circuit open", "provider", e.name)
		case ctx.Err() != nil:
			return zero, err
		default:
			slog.Warn("provider failed, trying next", "provider", e.name, "err", err)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
