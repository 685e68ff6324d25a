// Package memstore provides an in-process [store.KV]. Nothing survives a
// restart; it suits tests and single-shot CLI runs.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/eclectech/pkg/store"
)

// Compile-time interface assertion.
var _ store.KV = (*Store)(nil)

// Store is a map-backed key-value store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]store.Entry
	closed  bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]store.Entry)}
}

// Get implements store.KV.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, store.ErrClosed
	}
	e, ok := s.entries[key]
	return e.Value, ok, nil
}

// Put implements store.KV.
func (s *Store) Put(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	s.entries[key] = store.Entry{Key: key, ID: store.NewID(), Value: value, UpdatedAt: time.Now()}
	return nil
}

// Delete implements store.KV.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	delete(s.entries, key)
	return nil
}

// List implements store.KV.
func (s *Store) List(_ context.Context, prefix string) ([]store.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	var out []store.Entry
	for k, e := range s.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b store.Entry) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Ping implements store.KV.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Close implements store.KV.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
