// Package store defines the key-value persistence used to keep rewritten
// documents between page loads.
//
// Backends live in sub-packages: sqlite (local file, the default), postgres
// (shared across service instances) and memstore (process memory). All
// implementations are safe for concurrent use.
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("store: closed")

// Entry is a single stored value together with its bookkeeping metadata.
type Entry struct {
	// Key is the lookup key.
	Key string

	// ID identifies the write that produced Value. Every Put assigns a new ID.
	ID string

	// Value is the stored string.
	Value string

	// UpdatedAt is the time of the last Put.
	UpdatedAt time.Time
}

// KV is a string-valued key-value store.
type KV interface {
	// Get returns the value stored under key. ok is false when the key is
	// absent; err is reserved for backend failures.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all entries whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend. Further calls return ErrClosed.
	Close() error
}

// NewID returns a fresh, time-ordered write identifier.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
