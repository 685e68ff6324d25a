// Package resilience guards calls to rewrite and speech providers.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops hammering a provider after repeated failures. [FallbackGroup] chains a
// primary provider with fallbacks, each behind its own breaker. The typed
// wrappers [LLMFallback], [STTFallback] and [TranscriberFallback] implement
// the provider interfaces on top of a group.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a few probe calls through. Enough successes close
	// the breaker; any failure opens it again.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds the tuning knobs of a [CircuitBreaker]. Zero
// values select the defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls admitted in half-open state,
	// and the number of successes needed to close. Default: 3.
	HalfOpenMax int

	// Ignore reports errors that say nothing about the provider's health.
	// They neither count as failure nor as success. Default: the caller
	// cancelled ([context.Canceled]).
	Ignore func(error) bool

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	successes int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Ignore == nil {
		cfg.Ignore = func(err error) bool { return errors.Is(err, context.Canceled) }
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn unless the breaker is open or the half-open probe budget
// is spent, in which case it returns [ErrCircuitOpen].
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	var changed func()
	defer func() {
		cb.mu.Unlock()
		if changed != nil {
			changed()
		}
	}()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		changed = cb.setLocked(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return ErrCircuitOpen
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	if err != nil && cb.cfg.Ignore(err) {
		cb.mu.Lock()
		if cb.state == StateHalfOpen && cb.probes > 0 {
			cb.probes--
		}
		cb.mu.Unlock()
		return
	}

	cb.mu.Lock()
	var changed func()
	switch {
	case err != nil && cb.state == StateHalfOpen:
		changed = cb.setLocked(StateOpen)
	case err != nil:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures && cb.state == StateClosed {
			changed = cb.setLocked(StateOpen)
		}
	case cb.state == StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			changed = cb.setLocked(StateClosed)
		}
	default:
		cb.failures = 0
	}
	cb.mu.Unlock()

	if changed != nil {
		changed()
	}
}

// setLocked moves to state and resets the counters of the new state. It
// returns the notification to run once the lock is released.
func (cb *CircuitBreaker) setLocked(to State) func() {
	from := cb.state
	cb.state = to
	cb.probes, cb.successes = 0, 0
	switch to {
	case StateOpen:
		cb.openedAt = time.Now()
		slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "from", from, "consecutive_failures", cb.failures)
	case StateClosed:
		cb.failures = 0
		slog.Info("circuit breaker closed", "name", cb.cfg.Name, "from", from)
	case StateHalfOpen:
		slog.Info("circuit breaker probing", "name", cb.cfg.Name)
	}
	if cb.cfg.OnStateChange == nil {
		return nil
	}
	notify, name := cb.cfg.OnStateChange, cb.cfg.Name
	return func() { notify(name, from, to) }
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.setLocked(StateClosed)
	cb.mu.Unlock()
	if changed != nil {
		changed()
	}
}
