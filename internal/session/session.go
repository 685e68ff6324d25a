// Package session holds the per-page flags that live for the lifetime of a
// page session and never reach persistent storage.
package session

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Context is the process-lifetime state of one page session. It is safe for
// concurrent use, although in practice only the controller mutates it.
type Context struct {
	id      string
	started time.Time

	mu                    sync.Mutex
	consumedOneTimeConfig bool
	rewriteApplied        bool
}

// New returns a fresh session with a time-ordered ID.
func New() *Context {
	now := time.Now()
	return &Context{
		id:      ulid.MustNew(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0)).String(),
		started: now,
	}
}

// ID returns the session identifier.
func (c *Context) ID() string { return c.id }

// Started returns when the session was created.
func (c *Context) Started() time.Time { return c.started }

// ConsumeOneTimeConfig marks the URL configuration payload as consumed. It
// returns true only for the first call of the session.
func (c *Context) ConsumeOneTimeConfig() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumedOneTimeConfig {
		return false
	}
	c.consumedOneTimeConfig = true
	return true
}

// ConfigConsumed reports whether the one-time payload has been consumed.
func (c *Context) ConfigConsumed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumedOneTimeConfig
}

// MarkRewriteApplied records that a fresh rewrite succeeded in this session.
func (c *Context) MarkRewriteApplied() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rewriteApplied = true
}

// RewriteApplied reports whether a fresh rewrite has succeeded in this
// session. Cached rewrites are only consulted once it is set.
func (c *Context) RewriteApplied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rewriteApplied
}
